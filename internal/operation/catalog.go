// Package operation defines the uniform operation contract shared by the
// backend router and the specialized dispatchers: stable operation
// identifiers, the capability catalog, request/result shapes, and the
// error kind taxonomy.
//
// Architecture:
//
//	caller → permission.Gate → router.Router → backend.Backend → Result
package operation

import (
	"sort"
	"strings"
)

// Operation identifiers. These are stable wire names; backends declare
// support for them and callers request them verbatim.
const (
	// File system operations.
	OpFileRead     = "file.read"
	OpFileWrite    = "file.write"
	OpFileList     = "file.list"
	OpFileExplorer = "file.explorer"

	// Application control.
	OpAppOpen = "app.open"

	// Command execution.
	OpShellExecute = "shell.execute"

	// Clipboard.
	OpClipboardGet = "clipboard.get"
	OpClipboardSet = "clipboard.set"

	// System.
	OpScreenshotCapture = "screenshot.capture"
	OpEnvGet            = "env.get"
	OpSystemInfo        = "system.info"

	// Semantic search dispatcher operations.
	OpLoadCollection   = "load_collection"
	OpUnloadCollection = "unload_collection"
	OpCollectionStats  = "collection_stats"
	OpVectorSearch     = "vector_search"
	OpSemanticSearch   = "semantic_search"
	OpVectorIndex      = "vector_index"

	// Symbolic reasoning dispatcher operations.
	OpParseFile           = "parse_file"
	OpFindSymbols         = "find_symbols"
	OpFindReferences      = "find_references"
	OpAnalyzeDependencies = "analyze_dependencies"
)

// Capability describes one operation kind a backend may support.
// Capabilities are immutable and come from the fixed catalog below.
type Capability struct {
	// Name is the operation identifier (e.g. "file.read").
	Name string

	// Elevated marks operations that require explicit confirmation
	// before dispatch when no allow-list entry covers them.
	Elevated bool

	// Mutating marks operations that change external state. The router
	// never retries a mutating operation on a second backend once the
	// first backend has started executing it.
	Mutating bool
}

// catalog is the fixed capability catalog, defined at startup.
// Specialized dispatcher operations are deliberately absent: they are
// routed by the dispatchers, not the backend router.
var catalog = map[string]Capability{
	OpFileRead:          {Name: OpFileRead},
	OpFileWrite:         {Name: OpFileWrite, Mutating: true},
	OpFileList:          {Name: OpFileList},
	OpFileExplorer:      {Name: OpFileExplorer, Elevated: true, Mutating: true},
	OpAppOpen:           {Name: OpAppOpen, Elevated: true, Mutating: true},
	OpShellExecute:      {Name: OpShellExecute, Elevated: true, Mutating: true},
	OpClipboardGet:      {Name: OpClipboardGet},
	OpClipboardSet:      {Name: OpClipboardSet, Mutating: true},
	OpScreenshotCapture: {Name: OpScreenshotCapture, Elevated: true},
	OpEnvGet:            {Name: OpEnvGet},
	OpSystemInfo:        {Name: OpSystemInfo},
}

// Lookup returns the capability for an operation identifier.
// The second return is false for operations outside the catalog.
func Lookup(name string) (Capability, bool) {
	cap, ok := catalog[name]
	return cap, ok
}

// Catalog returns a copy of the full capability catalog, sorted by name.
func Catalog() []Capability {
	caps := make([]Capability, 0, len(catalog))
	for _, c := range catalog {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Name < caps[j].Name })
	return caps
}

// Category returns the operation family ("file", "shell", "clipboard", ...).
// Used by the permission gate to cache confirmation decisions per
// (category, resource) pair.
func Category(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}
