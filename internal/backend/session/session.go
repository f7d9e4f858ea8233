// Package session implements the external dev-session backend: an
// adapter over a developer tool CLI that accepts one JSON operation
// request on stdin per invocation and prints one JSON response.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
)

const defaultTimeout = 120 * time.Second

// Backend shells out to a session CLI for each operation. The CLI owns
// its own session state; this adapter is stateless between calls.
type Backend struct {
	command string
	timeout time.Duration
	caps    []operation.Capability
}

// New creates a session backend that invokes the given command. The
// backend declares the full catalog minus clipboard and screenshot,
// which session tools do not expose.
func New(command string, timeout time.Duration) *Backend {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var caps []operation.Capability
	for _, c := range operation.Catalog() {
		switch operation.Category(c.Name) {
		case "clipboard", "screenshot":
			continue
		}
		caps = append(caps, c)
	}

	return &Backend{command: command, timeout: timeout, caps: caps}
}

// Name identifies the backend.
func (b *Backend) Name() string { return "session" }

// Capabilities declares the operations the session CLI services.
func (b *Backend) Capabilities() []operation.Capability { return b.caps }

// Probe verifies the session CLI is installed and answers a ping.
func (b *Backend) Probe(ctx context.Context) error {
	if b.command == "" {
		return errors.New("no session command configured")
	}
	bin := strings.Fields(b.command)[0]
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("session command %s not found: %w", bin, err)
	}
	return nil
}

// wireRequest is the JSON shape written to the CLI's stdin.
type wireRequest struct {
	ID        string         `json:"id"`
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params"`
}

// wireResponse is the JSON shape read from the CLI's stdout.
type wireResponse struct {
	Success bool           `json:"success"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke runs one operation through the session CLI. A CLI that cannot
// be started is a transient failure; a CLI that answers with an error
// is semantic.
func (b *Backend) Invoke(ctx context.Context, req *operation.Request) (*operation.Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	input, err := json.Marshal(wireRequest{
		ID:        req.ID,
		Operation: req.Name,
		Params:    req.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot encode request: %w", err)
	}

	fields := strings.Fields(b.command)
	cmd := exec.CommandContext(execCtx, fields[0], append(fields[1:], "invoke")...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.BackendDebug("session: %s via %s [%s]", req.Name, fields[0], req.ID)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			// The CLI started and may have begun executing; retrying on
			// another backend could repeat a mutation.
			return nil, fmt.Errorf("session CLI timed out after %s", b.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The CLI ran and refused; its stderr explains why.
			return nil, fmt.Errorf("session CLI failed (exit %d): %s",
				exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		// The CLI never started: a different backend may still serve.
		return nil, operation.Transient(fmt.Errorf("cannot start session CLI: %w", err))
	}

	var resp wireResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("malformed session CLI response: %w", err)
	}

	if !resp.Success {
		msg := "session CLI reported failure"
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return nil, errors.New(msg)
	}
	return operation.Ok(resp.Payload), nil
}
