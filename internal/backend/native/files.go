package native

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hanzoai/aci/internal/operation"
)

// resolve expands relative paths against the workspace root.
func (b *Backend) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(b.workspace, path)
}

func (b *Backend) readFile(req *operation.Request) (*operation.Result, error) {
	path := req.StringArg("path")
	if path == "" {
		return nil, fmt.Errorf("%w: path", operation.ErrMissingParameter)
	}
	path = b.resolve(path)

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return operation.Ok(map[string]any{
		"path":    path,
		"content": string(content),
		"size":    len(content),
	}), nil
}

func (b *Backend) writeFile(req *operation.Request) (*operation.Result, error) {
	path := req.StringArg("path")
	if path == "" {
		return nil, fmt.Errorf("%w: path", operation.ErrMissingParameter)
	}
	path = b.resolve(path)
	content := req.StringArg("content")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create parent directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("cannot write %s: %w", path, err)
	}
	return operation.Ok(map[string]any{
		"path":    path,
		"written": len(content),
	}), nil
}

func (b *Backend) listFiles(req *operation.Request) (*operation.Result, error) {
	path := req.StringArg("path")
	if path == "" {
		path = b.workspace
	}
	path = b.resolve(path)

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("cannot list %s: %w", path, err)
	}

	files := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		entry := map[string]any{
			"name":   e.Name(),
			"is_dir": e.IsDir(),
		}
		if info, err := e.Info(); err == nil {
			entry["size"] = info.Size()
			entry["mod_time"] = info.ModTime().UTC().Format("2006-01-02T15:04:05Z")
		}
		files = append(files, entry)
	}
	return operation.Ok(map[string]any{
		"path":    path,
		"entries": files,
		"count":   len(files),
	}), nil
}
