// Package symbolic implements the symbolic reasoning provider: syntax
// trees parsed with tree-sitter, symbol extraction, reference lookup
// and import analysis across Go, Python, JavaScript, TypeScript and
// Rust sources.
package symbolic

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/hanzoai/aci/internal/operation"
)

// Symbol is one declaration found in a source file.
type Symbol struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Visibility string `json:"visibility,omitempty"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Signature  string `json:"signature,omitempty"`
}

// Reference is one occurrence of an identifier.
type Reference struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Text   string `json:"text"`
}

// Parser parses source files with tree-sitter. Each call parses fresh;
// no trees are cached between operations. Safe for concurrent use.
type Parser struct {
	mu      sync.Mutex
	parsers map[string]*sitter.Parser
}

// NewParser creates a parser with no languages pre-initialized.
func NewParser() *Parser {
	return &Parser{parsers: make(map[string]*sitter.Parser)}
}

// Close releases the underlying tree-sitter parsers.
func (p *Parser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sp := range p.parsers {
		sp.Close()
	}
	p.parsers = make(map[string]*sitter.Parser)
}

// languageFor maps a file extension to a tree-sitter language name.
func languageFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".jsx", ".mjs":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".rs":
		return "rust"
	default:
		return ""
	}
}

func grammarFor(lang string) *sitter.Language {
	switch lang {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		return typescript.GetLanguage()
	case "rust":
		return rust.GetLanguage()
	default:
		return nil
	}
}

// SupportedFile reports whether the path has a parseable extension.
func SupportedFile(path string) bool {
	return languageFor(path) != ""
}

// Parse parses one file's content. A tree whose root contains syntax
// errors fails with a parse error rather than returning partial data.
// The caller owns the returned tree and must Close it.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*sitter.Tree, string, error) {
	lang := languageFor(path)
	if lang == "" {
		return nil, "", fmt.Errorf("%w: unsupported file type %s", operation.ErrParse, filepath.Ext(path))
	}

	p.mu.Lock()
	sp, ok := p.parsers[lang]
	if !ok {
		sp = sitter.NewParser()
		sp.SetLanguage(grammarFor(lang))
		p.parsers[lang] = sp
	}
	tree, err := sp.ParseCtx(ctx, nil, content)
	p.mu.Unlock()

	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", operation.ErrParse, path, err)
	}
	if tree.RootNode().HasError() {
		tree.Close()
		return nil, "", fmt.Errorf("%w: %s contains syntax errors", operation.ErrParse, path)
	}
	return tree, lang, nil
}

// ExtractSymbols parses content and walks the tree collecting
// declarations per the file's language.
func (p *Parser) ExtractSymbols(ctx context.Context, path string, content []byte) ([]Symbol, error) {
	tree, lang, err := p.Parse(ctx, path, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var symbols []Symbol
	walk(tree.RootNode(), func(n *sitter.Node) {
		if sym, ok := symbolFromNode(n, lang, path, content); ok {
			symbols = append(symbols, sym)
		}
	})
	return symbols, nil
}

// FindReferences parses content and returns every identifier occurrence
// matching name.
func (p *Parser) FindReferences(ctx context.Context, path string, content []byte, name string) ([]Reference, error) {
	tree, _, err := p.Parse(ctx, path, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var refs []Reference
	walk(tree.RootNode(), func(n *sitter.Node) {
		t := n.Type()
		if t != "identifier" && t != "type_identifier" && t != "field_identifier" &&
			t != "property_identifier" && t != "package_identifier" {
			return
		}
		if n.Content(content) != name {
			return
		}
		refs = append(refs, Reference{
			File:   path,
			Line:   int(n.StartPoint().Row) + 1,
			Column: int(n.StartPoint().Column) + 1,
			Text:   lineAround(content, int(n.StartPoint().Row)),
		})
	})
	return refs, nil
}

// ExtractImports parses content and returns its import targets.
func (p *Parser) ExtractImports(ctx context.Context, path string, content []byte) ([]string, error) {
	tree, lang, err := p.Parse(ctx, path, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var imports []string
	walk(tree.RootNode(), func(n *sitter.Node) {
		if imp := importFromNode(n, lang, content); imp != "" {
			imports = append(imports, imp)
		}
	})
	return imports, nil
}

// walk visits every named node depth-first.
func walk(n *sitter.Node, visit func(*sitter.Node)) {
	visit(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), visit)
	}
}

// symbolFromNode maps one AST node to a Symbol when it is a declaration
// the given language cares about.
func symbolFromNode(n *sitter.Node, lang, path string, content []byte) (Symbol, bool) {
	text := func(node *sitter.Node) string {
		if node == nil {
			return ""
		}
		return node.Content(content)
	}

	var name, kind, signature string

	switch lang {
	case "go":
		switch n.Type() {
		case "function_declaration":
			name = text(n.ChildByFieldName("name"))
			kind = "function"
			signature = goSignature("func "+name, n, content)
		case "method_declaration":
			name = text(n.ChildByFieldName("name"))
			kind = "method"
			signature = goSignature(fmt.Sprintf("func %s %s", text(n.ChildByFieldName("receiver")), name), n, content)
		case "type_spec":
			name = text(n.ChildByFieldName("name"))
			kind = "type"
			if t := n.ChildByFieldName("type"); t != nil {
				switch t.Type() {
				case "struct_type":
					kind = "struct"
				case "interface_type":
					kind = "interface"
				}
			}
			signature = "type " + name
		}
		if name != "" {
			vis := "private"
			if name[0] >= 'A' && name[0] <= 'Z' {
				vis = "public"
			}
			return Symbol{
				Name: name, Kind: kind, Visibility: vis,
				File: path, Line: int(n.StartPoint().Row) + 1, Signature: signature,
			}, true
		}

	case "python":
		switch n.Type() {
		case "function_definition":
			name = text(n.ChildByFieldName("name"))
			kind = "function"
			signature = "def " + name + text(n.ChildByFieldName("parameters"))
		case "class_definition":
			name = text(n.ChildByFieldName("name"))
			kind = "class"
			signature = "class " + name
		}
		if name != "" {
			vis := "public"
			if strings.HasPrefix(name, "_") {
				vis = "private"
			}
			return Symbol{
				Name: name, Kind: kind, Visibility: vis,
				File: path, Line: int(n.StartPoint().Row) + 1, Signature: signature,
			}, true
		}

	case "javascript", "typescript":
		switch n.Type() {
		case "function_declaration":
			name = text(n.ChildByFieldName("name"))
			kind = "function"
		case "class_declaration":
			name = text(n.ChildByFieldName("name"))
			kind = "class"
		case "method_definition":
			name = text(n.ChildByFieldName("name"))
			kind = "method"
		case "interface_declaration":
			name = text(n.ChildByFieldName("name"))
			kind = "interface"
		}
		if name != "" {
			return Symbol{
				Name: name, Kind: kind,
				File: path, Line: int(n.StartPoint().Row) + 1,
			}, true
		}

	case "rust":
		switch n.Type() {
		case "function_item":
			name = text(n.ChildByFieldName("name"))
			kind = "function"
		case "struct_item":
			name = text(n.ChildByFieldName("name"))
			kind = "struct"
		case "enum_item":
			name = text(n.ChildByFieldName("name"))
			kind = "enum"
		case "trait_item":
			name = text(n.ChildByFieldName("name"))
			kind = "trait"
		}
		if name != "" {
			return Symbol{
				Name: name, Kind: kind,
				File: path, Line: int(n.StartPoint().Row) + 1,
			}, true
		}
	}

	return Symbol{}, false
}

// goSignature appends parameter and result text to a prefix.
func goSignature(prefix string, n *sitter.Node, content []byte) string {
	sig := prefix
	if params := n.ChildByFieldName("parameters"); params != nil {
		sig += params.Content(content)
	}
	if result := n.ChildByFieldName("result"); result != nil {
		sig += " " + result.Content(content)
	}
	return sig
}

// importFromNode maps one AST node to an import target, or "".
func importFromNode(n *sitter.Node, lang string, content []byte) string {
	text := func(node *sitter.Node) string {
		if node == nil {
			return ""
		}
		return node.Content(content)
	}

	switch lang {
	case "go":
		if n.Type() == "import_spec" {
			return strings.Trim(text(n.ChildByFieldName("path")), `"`)
		}
	case "python":
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if c := n.NamedChild(i); c.Type() == "dotted_name" || c.Type() == "aliased_import" {
					return text(c)
				}
			}
		case "import_from_statement":
			return text(n.ChildByFieldName("module_name"))
		}
	case "javascript", "typescript":
		if n.Type() == "import_statement" {
			return strings.Trim(text(n.ChildByFieldName("source")), `"'`)
		}
	case "rust":
		if n.Type() == "use_declaration" {
			return text(n.ChildByFieldName("argument"))
		}
	}
	return ""
}

// lineAround returns the trimmed source line at a zero-based row.
func lineAround(content []byte, row int) string {
	lines := strings.Split(string(content), "\n")
	if row < 0 || row >= len(lines) {
		return ""
	}
	return strings.TrimSpace(lines[row])
}
