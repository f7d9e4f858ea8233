package native

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hanzoai/aci/internal/operation"
)

// openApp launches an application or opens a target with the platform's
// default handler.
func (b *Backend) openApp(ctx context.Context, req *operation.Request) (*operation.Result, error) {
	target := req.StringArg("name")
	if target == "" {
		target = req.StringArg("path")
	}
	if target == "" {
		return nil, fmt.Errorf("%w: name", operation.ErrMissingParameter)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", "-a", target)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/C", "start", "", target)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", target)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", target, err)
	}
	// Detach: the launched application outlives the request.
	go cmd.Wait()

	return operation.Ok(map[string]any{
		"opened": target,
	}), nil
}

// openExplorer reveals a path in the platform file manager.
func (b *Backend) openExplorer(ctx context.Context, req *operation.Request) (*operation.Result, error) {
	path := req.StringArg("path")
	if path == "" {
		path = b.workspace
	}
	path = b.resolve(path)

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot reveal %s: %w", path, err)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", path)
	case "windows":
		cmd = exec.CommandContext(ctx, "explorer", path)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("cannot open file manager for %s: %w", path, err)
	}
	go cmd.Wait()

	return operation.Ok(map[string]any{
		"path": path,
	}), nil
}

// captureScreenshot writes a screenshot to the requested (or a
// temporary) path using the platform's capture tool.
func (b *Backend) captureScreenshot(ctx context.Context, req *operation.Request) (*operation.Result, error) {
	out := req.StringArg("path")
	if out == "" {
		out = filepath.Join(os.TempDir(), fmt.Sprintf("screenshot-%d.png", time.Now().UnixNano()))
	}
	out = b.resolve(out)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "screencapture", "-x", out)
	case "windows":
		return nil, fmt.Errorf("screenshot capture is not supported on windows without a remote backend")
	default:
		if _, err := exec.LookPath("scrot"); err == nil {
			cmd = exec.CommandContext(ctx, "scrot", out)
		} else {
			cmd = exec.CommandContext(ctx, "import", "-window", "root", out)
		}
	}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return operation.Ok(map[string]any{
		"path": out,
	}), nil
}

// envGet reads one environment variable, or all of them as a map when
// no name is given.
func (b *Backend) envGet(req *operation.Request) (*operation.Result, error) {
	name := req.StringArg("name")
	if name != "" {
		value, ok := os.LookupEnv(name)
		return operation.Ok(map[string]any{
			"name":  name,
			"value": value,
			"set":   ok,
		}), nil
	}

	env := make(map[string]any)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return operation.Ok(map[string]any{
		"environment": env,
		"count":       len(env),
	}), nil
}

func (b *Backend) systemInfo() (*operation.Result, error) {
	hostname, _ := os.Hostname()
	wd, _ := os.Getwd()

	return operation.Ok(map[string]any{
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
		"cpus":      runtime.NumCPU(),
		"hostname":  hostname,
		"cwd":       wd,
		"workspace": b.workspace,
		"pid":       os.Getpid(),
	}), nil
}
