// Package native implements the in-process backend: direct host access
// via os, os/exec and the system clipboard. It is the fallback of last
// resort and the only backend guaranteed to probe available.
package native

import (
	"context"
	"fmt"
	"time"

	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
)

const (
	defaultShellTimeout = 60 * time.Second
	maxOutputBytes      = 1 << 20
)

// Backend executes operations directly on the host.
type Backend struct {
	workspace    string
	shellTimeout time.Duration
}

// Option configures the backend.
type Option func(*Backend)

// WithShellTimeout overrides the default shell execution timeout.
func WithShellTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.shellTimeout = d
		}
	}
}

// New creates a native backend rooted at the given workspace.
func New(workspace string, opts ...Option) *Backend {
	b := &Backend{
		workspace:    workspace,
		shellTimeout: defaultShellTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name identifies the backend.
func (b *Backend) Name() string { return "native" }

// Capabilities declares every catalog operation: the native backend is
// the universal fallback.
func (b *Backend) Capabilities() []operation.Capability {
	return operation.Catalog()
}

// Probe always succeeds; the process hosting it is the capability.
func (b *Backend) Probe(ctx context.Context) error { return nil }

// Invoke executes one operation on the host.
func (b *Backend) Invoke(ctx context.Context, req *operation.Request) (*operation.Result, error) {
	logging.BackendDebug("native: %s [%s]", req.Name, req.ID)

	switch req.Name {
	case operation.OpFileRead:
		return b.readFile(req)
	case operation.OpFileWrite:
		return b.writeFile(req)
	case operation.OpFileList:
		return b.listFiles(req)
	case operation.OpFileExplorer:
		return b.openExplorer(ctx, req)
	case operation.OpAppOpen:
		return b.openApp(ctx, req)
	case operation.OpShellExecute:
		return b.executeShell(ctx, req)
	case operation.OpClipboardGet:
		return b.clipboardGet()
	case operation.OpClipboardSet:
		return b.clipboardSet(req)
	case operation.OpScreenshotCapture:
		return b.captureScreenshot(ctx, req)
	case operation.OpEnvGet:
		return b.envGet(req)
	case operation.OpSystemInfo:
		return b.systemInfo()
	default:
		return nil, fmt.Errorf("%w: %s", operation.ErrUnknownOperation, req.Name)
	}
}
