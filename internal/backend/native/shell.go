package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
)

// executeShell runs one command line through the platform shell with a
// timeout and capped output capture.
func (b *Backend) executeShell(ctx context.Context, req *operation.Request) (*operation.Result, error) {
	command := req.StringArg("command")
	if command == "" {
		return nil, fmt.Errorf("%w: command", operation.ErrMissingParameter)
	}

	timeout := b.shellTimeout
	if t := req.IntArg("timeout_seconds", 0); t > 0 {
		timeout = time.Duration(t) * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", command)
	}

	workdir := req.StringArg("workdir")
	if workdir == "" {
		workdir = b.workspace
	}
	cmd.Dir = workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Backend("shell.execute: %q (dir=%s, timeout=%s)", command, workdir, timeout)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(execCtx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("command timed out after %s: %q", timeout, command)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			// The shell itself failed to start.
			return nil, operation.Transient(fmt.Errorf("cannot start shell: %w", err))
		}
	}

	return operation.Ok(map[string]any{
		"command":     command,
		"exit_code":   exitCode,
		"stdout":      capOutput(stdout.Bytes()),
		"stderr":      capOutput(stderr.Bytes()),
		"duration_ms": elapsed.Milliseconds(),
	}), nil
}

// capOutput truncates captured output to maxOutputBytes.
func capOutput(out []byte) string {
	if len(out) <= maxOutputBytes {
		return string(out)
	}
	return string(out[:maxOutputBytes]) + "\n... [output truncated]"
}
