package router

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/hanzoai/aci/internal/capability"
	"github.com/hanzoai/aci/internal/operation"
	"github.com/hanzoai/aci/internal/permission"
)

// stubBackend counts invocations and returns canned outcomes.
type stubBackend struct {
	name     string
	caps     []operation.Capability
	probeErr error

	invokeErr    error
	invokeResult *operation.Result
	invokeFn     func(ctx context.Context, req *operation.Request) (*operation.Result, error)

	invoked atomic.Int64
}

func (s *stubBackend) Name() string                           { return s.name }
func (s *stubBackend) Capabilities() []operation.Capability   { return s.caps }
func (s *stubBackend) Probe(ctx context.Context) error        { return s.probeErr }

func (s *stubBackend) Invoke(ctx context.Context, req *operation.Request) (*operation.Result, error) {
	s.invoked.Add(1)
	if s.invokeFn != nil {
		return s.invokeFn(ctx, req)
	}
	if s.invokeErr != nil {
		return nil, s.invokeErr
	}
	if s.invokeResult != nil {
		return s.invokeResult, nil
	}
	return operation.Ok(map[string]any{"from": s.name}), nil
}

func readCaps() []operation.Capability {
	c, _ := operation.Lookup(operation.OpFileRead)
	return []operation.Capability{c}
}

func shellCaps() []operation.Capability {
	c, _ := operation.Lookup(operation.OpShellExecute)
	return []operation.Capability{c}
}

// newTestRouter wires a router with an allow-everything gate.
func newTestRouter(t *testing.T, backends ...*stubBackend) (*Router, *capability.Registry) {
	t.Helper()
	reg := capability.NewRegistry()
	for i, b := range backends {
		if err := reg.Register(b, i+1); err != nil {
			t.Fatalf("register %s: %v", b.name, err)
		}
	}
	reg.ProbeAll(context.Background())

	gate := permission.NewGate(permission.Policy{
		Confirm: func(op, resource string) bool { return true },
	})
	return New(reg, gate), reg
}

func TestDispatchUnknownOperation(t *testing.T) {
	b := &stubBackend{name: "native", caps: readCaps()}
	r, _ := newTestRouter(t, b)

	res := r.Dispatch(context.Background(), operation.NewRequest("file.shred", nil))
	if res.Success {
		t.Fatal("unknown operation should fail")
	}
	if res.Kind != operation.KindUnknownOperation {
		t.Errorf("kind = %s, want UnknownOperation", res.Kind)
	}
	if n := b.invoked.Load(); n != 0 {
		t.Errorf("no backend should be invoked, got %d calls", n)
	}
}

func TestDispatchNoBackendAvailable(t *testing.T) {
	// Backend declares the capability but its probe fails.
	b := &stubBackend{name: "native", caps: readCaps(), probeErr: errors.New("down")}
	r, _ := newTestRouter(t, b)

	res := r.Dispatch(context.Background(), operation.NewRequest(operation.OpFileRead, map[string]any{"path": "/tmp/x"}))
	if res.Kind != operation.KindNoBackendAvailable {
		t.Errorf("kind = %s, want NoBackendAvailable", res.Kind)
	}
	if n := b.invoked.Load(); n != 0 {
		t.Errorf("unavailable backend must not be invoked, got %d calls", n)
	}
}

func TestDispatchPermissionDeniedShortCircuits(t *testing.T) {
	b := &stubBackend{name: "native", caps: shellCaps()}
	reg := capability.NewRegistry()
	reg.Register(b, 1)
	reg.ProbeAll(context.Background())

	// No confirmation hook: elevated shell.execute is denied.
	r := New(reg, permission.NewGate(permission.Policy{}))

	res := r.Dispatch(context.Background(), operation.NewRequest(operation.OpShellExecute, map[string]any{"command": "echo hi"}))
	if res.Kind != operation.KindPermissionDenied {
		t.Fatalf("kind = %s, want PermissionDenied", res.Kind)
	}
	if res.Message == "" {
		t.Error("permission denial should carry the gate's reason")
	}
	if n := b.invoked.Load(); n != 0 {
		t.Errorf("denied request must never reach a backend, got %d calls", n)
	}
}

func TestDispatchSelectsByPriorityAndProbe(t *testing.T) {
	// Backend A: priority 1, probe fails. Backend B: priority 2, healthy.
	a := &stubBackend{name: "a", caps: shellCaps(), probeErr: errors.New("unreachable")}
	b := &stubBackend{name: "b", caps: shellCaps()}
	r, _ := newTestRouter(t, a, b)

	res := r.Dispatch(context.Background(), operation.NewRequest(operation.OpShellExecute, map[string]any{"command": "echo hi"}))
	if !res.Success {
		t.Fatalf("dispatch failed: %s %s", res.Kind, res.Message)
	}
	if res.Backend != "b" {
		t.Errorf("backend = %s, want b", res.Backend)
	}
	if a.invoked.Load() != 0 {
		t.Error("probe-failed backend must never be invoked")
	}
	if b.invoked.Load() != 1 {
		t.Errorf("backend b should be invoked once, got %d", b.invoked.Load())
	}
}

func TestTransientFailureRetriesNextBackendOnce(t *testing.T) {
	a := &stubBackend{name: "a", caps: readCaps(), invokeErr: operation.Transient(errors.New("connection reset"))}
	b := &stubBackend{name: "b", caps: readCaps()}
	r, _ := newTestRouter(t, a, b)

	res := r.Dispatch(context.Background(), operation.NewRequest(operation.OpFileRead, map[string]any{"path": "/tmp/x"}))
	if !res.Success {
		t.Fatalf("retry on next backend should succeed: %s", res.Message)
	}
	if res.Backend != "b" {
		t.Errorf("backend = %s, want b", res.Backend)
	}
	if a.invoked.Load() != 1 || b.invoked.Load() != 1 {
		t.Errorf("invocations a=%d b=%d, want 1/1", a.invoked.Load(), b.invoked.Load())
	}
}

func TestTransientFailureOnBothBackends(t *testing.T) {
	a := &stubBackend{name: "a", caps: readCaps(), invokeErr: operation.Transient(errors.New("reset"))}
	b := &stubBackend{name: "b", caps: readCaps(), invokeErr: operation.Transient(errors.New("reset"))}
	c := &stubBackend{name: "c", caps: readCaps()}
	r, _ := newTestRouter(t, a, b, c)

	res := r.Dispatch(context.Background(), operation.NewRequest(operation.OpFileRead, map[string]any{"path": "/tmp/x"}))
	// Exactly one retry: the third backend is never consulted.
	if res.Success {
		t.Fatal("second transient failure should end the dispatch")
	}
	if res.Kind != operation.KindBackendTransient {
		t.Errorf("kind = %s, want BackendTransientFailure", res.Kind)
	}
	if c.invoked.Load() != 0 {
		t.Error("router must not retry beyond the next-priority backend")
	}
}

func TestSemanticFailureNeverRetried(t *testing.T) {
	a := &stubBackend{name: "a", caps: readCaps(), invokeErr: errors.New("file not found: /tmp/x")}
	b := &stubBackend{name: "b", caps: readCaps()}
	r, _ := newTestRouter(t, a, b)

	res := r.Dispatch(context.Background(), operation.NewRequest(operation.OpFileRead, map[string]any{"path": "/tmp/x"}))
	if res.Success {
		t.Fatal("semantic failure should be returned, not retried")
	}
	if res.Kind != operation.KindBackendSemantic {
		t.Errorf("kind = %s, want BackendSemanticFailure", res.Kind)
	}
	if b.invoked.Load() != 0 {
		t.Error("semantic failure must not be retried on another backend")
	}
}

func TestEqualPriorityTieBreakIsRegistrationOrder(t *testing.T) {
	first := &stubBackend{name: "first", caps: readCaps()}
	second := &stubBackend{name: "second", caps: readCaps()}

	reg := capability.NewRegistry()
	reg.Register(first, 1)
	reg.Register(second, 1)
	reg.ProbeAll(context.Background())
	r := New(reg, permission.NewGate(permission.Policy{}))

	res := r.Dispatch(context.Background(), operation.NewRequest(operation.OpFileRead, map[string]any{"path": "/tmp/x"}))
	if res.Backend != "first" {
		t.Errorf("equal priority should resolve by registration order, got %s", res.Backend)
	}
}

func TestBackendPanicBecomesSemanticFailure(t *testing.T) {
	a := &stubBackend{
		name: "a",
		caps: readCaps(),
		invokeFn: func(ctx context.Context, req *operation.Request) (*operation.Result, error) {
			panic("nil map write")
		},
	}
	r, _ := newTestRouter(t, a)

	res := r.Dispatch(context.Background(), operation.NewRequest(operation.OpFileRead, map[string]any{"path": "/tmp/x"}))
	if res.Success {
		t.Fatal("panicking backend should yield a failure result")
	}
	if res.Kind != operation.KindBackendSemantic {
		t.Errorf("kind = %s, want BackendSemanticFailure", res.Kind)
	}
	if res.Message == "" {
		t.Error("panic message should be preserved")
	}
}

func TestCancelledContextSurfacesAsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &stubBackend{
		name: "a",
		caps: readCaps(),
		invokeFn: func(ctx context.Context, req *operation.Request) (*operation.Result, error) {
			cancel()
			return nil, ctx.Err()
		},
	}
	b := &stubBackend{name: "b", caps: readCaps()}
	r, _ := newTestRouter(t, a, b)

	res := r.Dispatch(ctx, operation.NewRequest(operation.OpFileRead, map[string]any{"path": "/tmp/x"}))
	if res.Kind != operation.KindCancelled {
		t.Errorf("kind = %s, want Cancelled", res.Kind)
	}
	if b.invoked.Load() != 0 {
		t.Error("cancellation must not trigger a retry")
	}
}

func TestDispatchStampsDuration(t *testing.T) {
	a := &stubBackend{name: "a", caps: readCaps()}
	r, _ := newTestRouter(t, a)

	res := r.Dispatch(context.Background(), operation.NewRequest(operation.OpFileRead, map[string]any{"path": "/tmp/x"}))
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Message)
	}
	if res.DurationMs < 0 {
		t.Errorf("duration should be non-negative, got %d", res.DurationMs)
	}
}
