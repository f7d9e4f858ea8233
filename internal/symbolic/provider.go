package symbolic

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
)

// Walking a whole repository stays bounded; beyond this the caller
// should point at a subdirectory.
const maxWalkFiles = 2000

// Provider exposes symbolic reasoning operations over source trees.
// Paths may name a single file or a directory; directories are walked
// for supported source files.
type Provider struct {
	parser *Parser
}

// NewProvider creates a symbolic reasoning provider.
func NewProvider(parser *Parser) *Provider {
	return &Provider{parser: parser}
}

// Name identifies the provider.
func (p *Provider) Name() string { return "symbolic-reasoning" }

// Available reports whether a parser is wired in.
func (p *Provider) Available() bool { return p != nil && p.parser != nil }

// Operations maps supported operation names to their required keys.
func (p *Provider) Operations() map[string][]string {
	return map[string][]string{
		operation.OpParseFile:           {"file_path"},
		operation.OpFindSymbols:         {"file_path"},
		operation.OpFindReferences:      {"file_path", "symbol_name"},
		operation.OpAnalyzeDependencies: {"file_path"},
	}
}

// Execute runs one validated symbolic reasoning operation.
func (p *Provider) Execute(ctx context.Context, name string, params map[string]any) (*operation.Result, error) {
	path, _ := params["file_path"].(string)

	switch name {
	case operation.OpParseFile:
		return p.parseFile(ctx, path)
	case operation.OpFindSymbols:
		return p.findSymbols(ctx, path)
	case operation.OpFindReferences:
		symbol, _ := params["symbol_name"].(string)
		return p.findReferences(ctx, path, symbol)
	case operation.OpAnalyzeDependencies:
		return p.analyzeDependencies(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s", operation.ErrUnknownOperation, name)
	}
}

func (p *Provider) parseFile(ctx context.Context, path string) (*operation.Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	tree, lang, err := p.parser.Parse(ctx, path, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	return operation.Ok(map[string]any{
		"file":        path,
		"language":    lang,
		"node_count":  countNodes(root),
		"line_count":  int(root.EndPoint().Row) + 1,
		"parse_clean": true,
	}), nil
}

func (p *Provider) findSymbols(ctx context.Context, path string) (*operation.Result, error) {
	var symbols []Symbol
	err := p.eachSourceFile(path, func(file string, content []byte) error {
		syms, err := p.parser.ExtractSymbols(ctx, file, content)
		if err != nil {
			return err
		}
		symbols = append(symbols, syms...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.SymbolicDebug("find_symbols %s: %d symbols", path, len(symbols))
	return operation.Ok(map[string]any{
		"path":    path,
		"symbols": symbols,
		"count":   len(symbols),
	}), nil
}

func (p *Provider) findReferences(ctx context.Context, path, symbol string) (*operation.Result, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol_name must not be empty", operation.ErrMissingParameter)
	}

	var refs []Reference
	err := p.eachSourceFile(path, func(file string, content []byte) error {
		r, err := p.parser.FindReferences(ctx, file, content, symbol)
		if err != nil {
			return err
		}
		refs = append(refs, r...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return operation.Ok(map[string]any{
		"path":        path,
		"symbol_name": symbol,
		"references":  refs,
		"count":       len(refs),
	}), nil
}

func (p *Provider) analyzeDependencies(ctx context.Context, path string) (*operation.Result, error) {
	imports := make(map[string][]string)
	err := p.eachSourceFile(path, func(file string, content []byte) error {
		imps, err := p.parser.ExtractImports(ctx, file, content)
		if err != nil {
			return err
		}
		if len(imps) > 0 {
			imports[file] = imps
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	total := 0
	for _, imps := range imports {
		total += len(imps)
	}
	return operation.Ok(map[string]any{
		"path":    path,
		"imports": imports,
		"count":   total,
	}), nil
}

// eachSourceFile calls fn for path itself, or for every supported file
// under it when path is a directory. Hidden directories and dependency
// trees are skipped.
func (p *Provider) eachSourceFile(path string, fn func(file string, content []byte) error) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}

	if !info.IsDir() {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
		return fn(path, content)
	}

	seen := 0
	return filepath.WalkDir(path, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			base := d.Name()
			if file != path && (base == "node_modules" || base == "vendor" || base[0] == '.') {
				return filepath.SkipDir
			}
			return nil
		}
		if !SupportedFile(file) {
			return nil
		}
		if seen++; seen > maxWalkFiles {
			return fmt.Errorf("too many source files under %s (limit %d)", path, maxWalkFiles)
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", file, err)
		}
		return fn(file, content)
	})
}

func countNodes(n *sitter.Node) int {
	count := 1
	for i := 0; i < int(n.NamedChildCount()); i++ {
		count += countNodes(n.NamedChild(i))
	}
	return count
}
