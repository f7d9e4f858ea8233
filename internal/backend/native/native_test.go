package native

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hanzoai/aci/internal/operation"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	return New(t.TempDir())
}

func TestProbeAlwaysAvailable(t *testing.T) {
	b := newTestBackend(t)
	if err := b.Probe(context.Background()); err != nil {
		t.Fatalf("native probe should never fail: %v", err)
	}
}

func TestDeclaresFullCatalog(t *testing.T) {
	b := newTestBackend(t)
	if got, want := len(b.Capabilities()), len(operation.Catalog()); got != want {
		t.Errorf("capabilities = %d, want the full catalog of %d", got, want)
	}
}

func TestFileWriteReadRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	res, err := b.Invoke(ctx, operation.NewRequest(operation.OpFileWrite,
		map[string]any{"path": "notes/todo.txt", "content": "ship it"}))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Payload["written"] != 7 {
		t.Errorf("written = %v, want 7", res.Payload["written"])
	}

	res, err = b.Invoke(ctx, operation.NewRequest(operation.OpFileRead,
		map[string]any{"path": "notes/todo.txt"}))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if res.Payload["content"] != "ship it" {
		t.Errorf("content = %q, want %q", res.Payload["content"], "ship it")
	}
}

func TestFileReadMissing(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.Invoke(context.Background(), operation.NewRequest(operation.OpFileRead,
		map[string]any{"path": "does-not-exist.txt"}))
	if err == nil {
		t.Fatal("reading a missing file should fail")
	}
	if operation.IsTransient(err) {
		t.Error("a missing file is semantic, not transient")
	}
}

func TestFileList(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(b.workspace, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	res, err := b.Invoke(ctx, operation.NewRequest(operation.OpFileList, nil))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if res.Payload["count"] != 2 {
		t.Errorf("count = %v, want 2", res.Payload["count"])
	}
}

func TestShellExecute(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh semantics")
	}
	b := newTestBackend(t)

	res, err := b.Invoke(context.Background(), operation.NewRequest(operation.OpShellExecute,
		map[string]any{"command": "echo hello"}))
	if err != nil {
		t.Fatalf("shell: %v", err)
	}
	if res.Payload["exit_code"] != 0 {
		t.Errorf("exit_code = %v, want 0", res.Payload["exit_code"])
	}
	if res.Payload["stdout"] != "hello\n" {
		t.Errorf("stdout = %q, want %q", res.Payload["stdout"], "hello\n")
	}
}

func TestShellNonZeroExitIsNotAnError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh semantics")
	}
	b := newTestBackend(t)

	res, err := b.Invoke(context.Background(), operation.NewRequest(operation.OpShellExecute,
		map[string]any{"command": "exit 3"}))
	if err != nil {
		t.Fatalf("a non-zero exit is a valid outcome, not an error: %v", err)
	}
	if res.Payload["exit_code"] != 3 {
		t.Errorf("exit_code = %v, want 3", res.Payload["exit_code"])
	}
}

func TestShellMissingCommand(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.Invoke(context.Background(), operation.NewRequest(operation.OpShellExecute, nil))
	if operation.KindOf(err) != operation.KindInvalidParameters {
		t.Errorf("kind = %s, want InvalidParameters", operation.KindOf(err))
	}
}

func TestEnvGet(t *testing.T) {
	b := newTestBackend(t)
	t.Setenv("ACI_TEST_SENTINEL", "42")

	res, err := b.Invoke(context.Background(), operation.NewRequest(operation.OpEnvGet,
		map[string]any{"name": "ACI_TEST_SENTINEL"}))
	if err != nil {
		t.Fatalf("env.get: %v", err)
	}
	if res.Payload["value"] != "42" || res.Payload["set"] != true {
		t.Errorf("payload = %v, want value=42 set=true", res.Payload)
	}
}

func TestSystemInfo(t *testing.T) {
	b := newTestBackend(t)

	res, err := b.Invoke(context.Background(), operation.NewRequest(operation.OpSystemInfo, nil))
	if err != nil {
		t.Fatalf("system.info: %v", err)
	}
	if res.Payload["os"] != runtime.GOOS {
		t.Errorf("os = %v, want %s", res.Payload["os"], runtime.GOOS)
	}
}

func TestUnknownOperation(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.Invoke(context.Background(), operation.NewRequest("file.shred", nil))
	if operation.KindOf(err) != operation.KindUnknownOperation {
		t.Errorf("kind = %s, want UnknownOperation", operation.KindOf(err))
	}
}
