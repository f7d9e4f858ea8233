package vecsearch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
)

// Provider exposes semantic search operations over collections keyed by
// path. A collection must be loaded before it can be searched; the most
// recently loaded one is the current collection, which search and index
// operations act on. Loading is idempotent and concurrent loads of the
// same path coalesce into one underlying load.
type Provider struct {
	store   *Store
	watcher *Watcher

	mu      sync.RWMutex
	loaded  map[string]*Collection
	current string
	group   singleflight.Group

	loadCount atomic.Int64
}

// NewProvider creates a semantic search provider over the given store.
// A nil store yields an unavailable provider: every operation fails
// with ProviderUnavailable instead of panicking.
func NewProvider(store *Store) *Provider {
	return &Provider{
		store:  store,
		loaded: make(map[string]*Collection),
	}
}

// SetWatcher attaches a staleness watcher; load and stats results then
// report whether watched sources changed since the last index.
func (p *Provider) SetWatcher(w *Watcher) { p.watcher = w }

// Name identifies the provider.
func (p *Provider) Name() string { return "semantic-search" }

// Available reports whether the vector store is usable.
func (p *Provider) Available() bool { return p != nil && p.store != nil }

// Operations maps supported operation names to their required keys.
// Search and index operations name no collection; they act on the one
// most recently loaded.
func (p *Provider) Operations() map[string][]string {
	return map[string][]string{
		operation.OpLoadCollection:   {"path"},
		operation.OpUnloadCollection: {"path"},
		operation.OpCollectionStats:  {"path"},
		operation.OpVectorSearch:     {"query"},
		operation.OpSemanticSearch:   {"text"},
		operation.OpVectorIndex:      {"documents"},
	}
}

// Execute runs one validated semantic search operation.
func (p *Provider) Execute(ctx context.Context, name string, params map[string]any) (*operation.Result, error) {
	switch name {
	case operation.OpLoadCollection:
		return p.loadCollection(ctx, stringParam(params, "path"))
	case operation.OpUnloadCollection:
		return p.unloadCollection(stringParam(params, "path"))
	case operation.OpCollectionStats:
		return p.collectionStats(ctx, stringParam(params, "path"))
	case operation.OpVectorSearch:
		return p.search(ctx, stringParam(params, "query"), intParam(params, "n_results"))
	case operation.OpSemanticSearch:
		// Conversational alias of vector_search: text and limit map onto
		// query and n_results.
		return p.search(ctx, stringParam(params, "text"), intParam(params, "limit"))
	case operation.OpVectorIndex:
		return p.index(ctx, params["documents"], params["metadatas"])
	default:
		return nil, fmt.Errorf("%w: %s", operation.ErrUnknownOperation, name)
	}
}

// Collection returns the loaded collection handle for a path, or nil.
func (p *Provider) Collection(path string) *Collection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded[path]
}

// Current returns the collection search and index operations act on,
// or nil when none is loaded.
func (p *Provider) Current() *Collection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded[p.current]
}

// LoadCount reports how many underlying loads have run. Coalesced and
// repeated loads of an already-loaded collection do not add to it.
func (p *Provider) LoadCount() int64 { return p.loadCount.Load() }

// loadCollection makes the collection at path searchable and current.
// Already-loaded collections return the existing handle; concurrent
// first loads of the same path share one underlying load.
func (p *Provider) loadCollection(ctx context.Context, path string) (*operation.Result, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: collection path must not be empty", operation.ErrMissingParameter)
	}

	p.mu.RLock()
	existing := p.loaded[path]
	p.mu.RUnlock()
	if existing != nil {
		p.mu.Lock()
		p.current = path
		p.mu.Unlock()
		return operation.Ok(map[string]any{
			"collection":     path,
			"already_loaded": true,
		}), nil
	}

	type loadResult struct {
		coll  *Collection
		stats map[string]any
	}
	v, err, _ := p.group.Do(path, func() (any, error) {
		// Re-check under the flight: a racing load may have finished.
		p.mu.RLock()
		coll := p.loaded[path]
		p.mu.RUnlock()
		if coll != nil {
			stats, err := coll.Stats(ctx)
			if err != nil {
				return nil, err
			}
			return loadResult{coll, stats}, nil
		}

		coll = p.store.Collection(path)
		// Warm the handle so a broken store surfaces at load time,
		// not at first search.
		stats, err := coll.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load collection %s: %w", path, err)
		}
		p.loadCount.Add(1)

		p.mu.Lock()
		p.loaded[path] = coll
		p.mu.Unlock()

		logging.Vector("Loaded collection %s", path)
		return loadResult{coll, stats}, nil
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = path
	p.mu.Unlock()

	payload := map[string]any{
		"collection":     path,
		"already_loaded": false,
		"stats":          v.(loadResult).stats,
	}
	if p.watcher != nil {
		payload["stale"] = p.watcher.Stale()
	}
	return operation.Ok(payload), nil
}

func (p *Provider) unloadCollection(path string) (*operation.Result, error) {
	p.mu.Lock()
	_, was := p.loaded[path]
	delete(p.loaded, path)
	if p.current == path {
		p.current = ""
	}
	p.mu.Unlock()

	if was {
		logging.Vector("Unloaded collection %s", path)
	}
	return operation.Ok(map[string]any{
		"collection": path,
		"was_loaded": was,
	}), nil
}

func (p *Provider) collectionStats(ctx context.Context, path string) (*operation.Result, error) {
	coll := p.Collection(path)
	if coll == nil {
		return nil, fmt.Errorf("%w: %s", operation.ErrCollectionNotLoaded, path)
	}

	stats, err := coll.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if p.watcher != nil {
		stats["stale"] = p.watcher.Stale()
	}
	return operation.Ok(stats), nil
}

func (p *Provider) search(ctx context.Context, query string, limit int) (*operation.Result, error) {
	coll := p.Current()
	if coll == nil {
		return nil, fmt.Errorf("%w: no collection loaded", operation.ErrCollectionNotLoaded)
	}

	results, err := coll.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]map[string]any, len(results))
	for i, r := range results {
		hits[i] = map[string]any{
			"content":    r.Content,
			"similarity": r.Similarity,
		}
		if r.Metadata != nil {
			hits[i]["metadata"] = r.Metadata
		}
	}
	return operation.Ok(map[string]any{
		"collection": coll.Name(),
		"query":      query,
		"results":    hits,
	}), nil
}

func (p *Provider) index(ctx context.Context, documents, metadatas any) (*operation.Result, error) {
	coll := p.Current()
	if coll == nil {
		return nil, fmt.Errorf("%w: no collection loaded", operation.ErrCollectionNotLoaded)
	}

	contents, err := documentList(documents)
	if err != nil {
		return nil, err
	}
	metas, err := metadataList(metadatas, len(contents))
	if err != nil {
		return nil, err
	}

	stored, err := coll.IndexBatch(ctx, contents, metas)
	if err != nil {
		return nil, err
	}
	if p.watcher != nil {
		p.watcher.Reset()
	}
	return operation.Ok(map[string]any{
		"collection": coll.Name(),
		"indexed":    stored,
	}), nil
}

// documentList accepts either a single string or a list of strings.
func documentList(v any) ([]string, error) {
	switch docs := v.(type) {
	case string:
		return []string{docs}, nil
	case []string:
		return docs, nil
	case []any:
		out := make([]string, 0, len(docs))
		for _, d := range docs {
			s, ok := d.(string)
			if !ok {
				return nil, fmt.Errorf("%w: documents must be strings, got %T", operation.ErrMissingParameter, d)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: documents must be a string or list of strings", operation.ErrMissingParameter)
	}
}

// metadataList accepts a nil or per-document list of metadata maps.
func metadataList(v any, n int) ([]map[string]any, error) {
	if v == nil {
		return nil, nil
	}

	var out []map[string]any
	switch metas := v.(type) {
	case []map[string]any:
		out = metas
	case []any:
		out = make([]map[string]any, 0, len(metas))
		for _, m := range metas {
			mm, ok := m.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: metadatas must be objects, got %T", operation.ErrMissingParameter, m)
			}
			out = append(out, mm)
		}
	default:
		return nil, fmt.Errorf("%w: metadatas must be a list of objects", operation.ErrMissingParameter)
	}

	if len(out) != n {
		return nil, fmt.Errorf("%w: %d metadatas for %d documents", operation.ErrMissingParameter, len(out), n)
	}
	return out, nil
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
