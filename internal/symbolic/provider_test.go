package symbolic

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanzoai/aci/internal/dispatch"
	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
)

const goSource = `package greeter

import (
	"fmt"
	"strings"
)

type Greeter struct {
	Prefix string
}

func (g *Greeter) Greet(name string) string {
	return fmt.Sprintf("%s %s", g.Prefix, strings.TrimSpace(name))
}

func NewGreeter(prefix string) *Greeter {
	return &Greeter{Prefix: prefix}
}
`

const pythonSource = `import os
from pathlib import Path

class Loader:
    def load(self, path):
        return Path(path).read_text()

def _helper():
    return os.getcwd()
`

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	parser := NewParser()
	t.Cleanup(parser.Close)
	return NewProvider(parser)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile(t *testing.T) {
	p := newTestProvider(t)
	path := writeFile(t, t.TempDir(), "greeter.go", goSource)

	res, err := p.Execute(context.Background(), operation.OpParseFile, map[string]any{"file_path": path})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "go", res.Payload["language"])
	require.Greater(t, res.Payload["node_count"].(int), 10)
}

func TestParseFileWithSyntaxError(t *testing.T) {
	p := newTestProvider(t)
	path := writeFile(t, t.TempDir(), "broken.go", "package x\n\nfunc oops( {\n")

	_, err := p.Execute(context.Background(), operation.OpParseFile, map[string]any{"file_path": path})
	require.Error(t, err)
	require.Equal(t, operation.KindParseError, operation.KindOf(err))
}

func TestFindSymbolsGo(t *testing.T) {
	p := newTestProvider(t)
	path := writeFile(t, t.TempDir(), "greeter.go", goSource)

	res, err := p.Execute(context.Background(), operation.OpFindSymbols, map[string]any{"file_path": path})
	require.NoError(t, err)

	symbols := res.Payload["symbols"].([]Symbol)
	byName := make(map[string]Symbol, len(symbols))
	for _, s := range symbols {
		byName[s.Name] = s
	}

	require.Contains(t, byName, "Greeter")
	require.Equal(t, "struct", byName["Greeter"].Kind)
	require.Equal(t, "public", byName["Greeter"].Visibility)

	require.Contains(t, byName, "Greet")
	require.Equal(t, "method", byName["Greet"].Kind)

	require.Contains(t, byName, "NewGreeter")
	require.Equal(t, "function", byName["NewGreeter"].Kind)
}

func TestFindSymbolsPython(t *testing.T) {
	p := newTestProvider(t)
	path := writeFile(t, t.TempDir(), "loader.py", pythonSource)

	res, err := p.Execute(context.Background(), operation.OpFindSymbols, map[string]any{"file_path": path})
	require.NoError(t, err)

	symbols := res.Payload["symbols"].([]Symbol)
	byName := make(map[string]Symbol, len(symbols))
	for _, s := range symbols {
		byName[s.Name] = s
	}

	require.Equal(t, "class", byName["Loader"].Kind)
	require.Equal(t, "function", byName["load"].Kind)
	require.Equal(t, "private", byName["_helper"].Visibility)
}

func TestFindSymbolsWalksDirectory(t *testing.T) {
	p := newTestProvider(t)
	dir := t.TempDir()
	writeFile(t, dir, "greeter.go", goSource)
	writeFile(t, dir, "loader.py", pythonSource)
	writeFile(t, dir, "notes.txt", "not source code")

	res, err := p.Execute(context.Background(), operation.OpFindSymbols, map[string]any{"file_path": dir})
	require.NoError(t, err)

	symbols := res.Payload["symbols"].([]Symbol)
	files := make(map[string]bool)
	for _, s := range symbols {
		files[filepath.Base(s.File)] = true
	}
	require.True(t, files["greeter.go"])
	require.True(t, files["loader.py"])
}

func TestFindReferences(t *testing.T) {
	p := newTestProvider(t)
	path := writeFile(t, t.TempDir(), "greeter.go", goSource)

	res, err := p.Execute(context.Background(), operation.OpFindReferences,
		map[string]any{"file_path": path, "symbol_name": "Greeter"})
	require.NoError(t, err)

	refs := res.Payload["references"].([]Reference)
	// Declaration, receiver, return type and composite literal.
	require.GreaterOrEqual(t, len(refs), 3)
	for _, r := range refs {
		require.Equal(t, path, r.File)
		require.Greater(t, r.Line, 0)
	}
}

func TestAnalyzeDependencies(t *testing.T) {
	p := newTestProvider(t)
	dir := t.TempDir()
	goPath := writeFile(t, dir, "greeter.go", goSource)
	pyPath := writeFile(t, dir, "loader.py", pythonSource)

	res, err := p.Execute(context.Background(), operation.OpAnalyzeDependencies, map[string]any{"file_path": dir})
	require.NoError(t, err)

	imports := res.Payload["imports"].(map[string][]string)
	require.ElementsMatch(t, []string{"fmt", "strings"}, imports[goPath])
	require.Contains(t, imports[pyPath], "os")
	require.Contains(t, imports[pyPath], "pathlib")
}

func TestMissingFileIsSemanticFailure(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.Execute(context.Background(), operation.OpParseFile,
		map[string]any{"file_path": "/nonexistent/file.go"})
	require.Error(t, err)
	require.Equal(t, operation.KindBackendSemantic, operation.KindOf(err))
}

func TestDispatcherIntegration(t *testing.T) {
	d := dispatch.New(newTestProvider(t), logging.CategorySymbolic)

	res := d.Execute(context.Background(), operation.OpFindReferences, map[string]any{"file_path": "/tmp/x.go"})
	require.Equal(t, operation.KindInvalidParameters, res.Kind)

	res = d.Execute(context.Background(), operation.OpFindSymbols, map[string]any{"path": "/tmp/x.go"})
	require.Equal(t, operation.KindInvalidParameters, res.Kind)

	res = d.Execute(context.Background(), "rename_symbol", map[string]any{"file_path": "/tmp/x.go"})
	require.Equal(t, operation.KindUnknownOperation, res.Kind)
}
