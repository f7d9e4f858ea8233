package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
)

const connectTimeout = 10 * time.Second

// Backend speaks the remote protocol to a server process spawned from a
// configured command line. The connection is established lazily on
// probe and kept for the lifetime of the backend.
type Backend struct {
	command string

	mu        sync.Mutex
	cmd       *exec.Cmd
	transport *Transport
	caps      []operation.Capability
}

// New creates a remote backend for the given server command line.
func New(command string) *Backend {
	return &Backend{command: command}
}

// Name identifies the backend.
func (b *Backend) Name() string { return "remote" }

// Capabilities declares the operations the remote server advertised at
// probe time. Before a successful probe, the full catalog is declared;
// the registry withholds unprobed backends anyway.
func (b *Backend) Capabilities() []operation.Capability {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.caps != nil {
		return b.caps
	}
	return operation.Catalog()
}

// Probe connects to the remote server and verifies it answers a ping.
// The server's advertised capability names replace the default catalog.
func (b *Backend) Probe(ctx context.Context) error {
	t, err := b.connect()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if _, err := t.Call(ctx, "ping", nil); err != nil {
		b.disconnect()
		return fmt.Errorf("remote server not responding: %w", err)
	}

	raw, err := t.Call(ctx, "capabilities", nil)
	if err != nil {
		// A server without a capability listing still serves; keep the
		// full catalog.
		logging.BackendWarn("remote: capability listing failed, assuming full catalog: %v", err)
		return nil
	}

	var listed struct {
		Operations []string `json:"operations"`
	}
	if err := json.Unmarshal(raw, &listed); err != nil {
		return nil
	}

	var caps []operation.Capability
	for _, name := range listed.Operations {
		if c, ok := operation.Lookup(name); ok {
			caps = append(caps, c)
		}
	}

	b.mu.Lock()
	b.caps = caps
	b.mu.Unlock()

	logging.Backend("remote: connected, %d operations advertised", len(caps))
	return nil
}

// connect spawns the server process and wires the transport, once.
func (b *Backend) connect() (*Transport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.transport != nil && !b.transport.Closed() {
		return b.transport, nil
	}
	if b.command == "" {
		return nil, errors.New("no remote command configured")
	}

	fields := strings.Fields(b.command)
	cmd := exec.Command(fields[0], fields[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("cannot open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cannot open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("cannot start remote server %s: %w", fields[0], err)
	}

	b.cmd = cmd
	b.transport = NewTransport(stdin, stdout)
	go cmd.Wait()

	return b.transport, nil
}

func (b *Backend) disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd != nil && b.cmd.Process != nil {
		b.cmd.Process.Kill()
	}
	b.cmd = nil
	b.transport = nil
}

// SetTransport wires an existing transport instead of spawning a
// process. Used by tests and by callers that own the connection.
func (b *Backend) SetTransport(t *Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transport = t
}

// invokeResult is the remote protocol's answer to an invoke call.
type invokeResult struct {
	Success bool           `json:"success"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke forwards one operation over the wire. Transport-level failures
// are transient (a lower-priority backend can still serve); failures
// reported by the server are semantic.
func (b *Backend) Invoke(ctx context.Context, req *operation.Request) (*operation.Result, error) {
	b.mu.Lock()
	t := b.transport
	b.mu.Unlock()

	if t == nil || t.Closed() {
		return nil, operation.Transient(errors.New("remote connection not established"))
	}

	logging.BackendDebug("remote: %s [%s]", req.Name, req.ID)

	raw, err := t.Call(ctx, "invoke", map[string]any{
		"operation": req.Name,
		"params":    req.Args,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrClosed) {
			return nil, operation.Transient(fmt.Errorf("remote connection lost: %w", err))
		}
		return nil, err
	}

	var result invokeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("malformed remote response: %w", err)
	}
	if !result.Success {
		msg := "remote server reported failure"
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return nil, errors.New(msg)
	}
	return operation.Ok(result.Payload), nil
}

// Close tears down the connection and server process.
func (b *Backend) Close() error {
	b.disconnect()
	return nil
}
