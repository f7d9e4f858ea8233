package vecsearch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hanzoai/aci/internal/dispatch"
	"github.com/hanzoai/aci/internal/logging"
	"github.com/hanzoai/aci/internal/operation"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()

	store, err := OpenStore(filepath.Join(t.TempDir(), "vectors.db"), NewHashEngine())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewProvider(store)
}

func TestLoadCollectionIsIdempotent(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	res, err := p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/docs"})
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if res.Payload["already_loaded"] != false {
		t.Error("first load should report already_loaded=false")
	}
	first := p.Collection("/ws/docs")

	res, err = p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/docs"})
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if res.Payload["already_loaded"] != true {
		t.Error("second load should report already_loaded=true")
	}

	if p.Collection("/ws/docs") != first {
		t.Error("repeated load should return the same collection handle")
	}
	if n := p.LoadCount(); n != 1 {
		t.Errorf("underlying load should run once, got %d", n)
	}
}

func TestSearchBeforeLoadFails(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.Execute(context.Background(), operation.OpVectorSearch,
		map[string]any{"query": "anything"})
	if err == nil {
		t.Fatal("search with no collection loaded should fail")
	}
	if operation.KindOf(err) != operation.KindCollectionNotLoaded {
		t.Errorf("kind = %s, want CollectionNotLoaded", operation.KindOf(err))
	}
}

func TestIndexAndSearchRoundTrip(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if _, err := p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/docs"}); err != nil {
		t.Fatalf("load: %v", err)
	}

	docs := []any{
		"the quick brown fox jumps over the lazy dog",
		"semantic search ranks documents by meaning",
		"sqlite is an embedded relational database",
	}
	res, err := p.Execute(ctx, operation.OpVectorIndex, map[string]any{"documents": docs})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if res.Payload["indexed"] != 3 {
		t.Errorf("indexed = %v, want 3", res.Payload["indexed"])
	}

	res, err = p.Execute(ctx, operation.OpVectorSearch,
		map[string]any{"query": "embedded sqlite database", "n_results": 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	hits, ok := res.Payload["results"].([]map[string]any)
	if !ok || len(hits) != 1 {
		t.Fatalf("expected exactly one hit, got %v", res.Payload["results"])
	}
	if hits[0]["content"] != "sqlite is an embedded relational database" {
		t.Errorf("top hit = %q, want the sqlite document", hits[0]["content"])
	}
}

func TestIndexStoresMetadatas(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	if _, err := p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/docs"}); err != nil {
		t.Fatalf("load: %v", err)
	}

	_, err := p.Execute(ctx, operation.OpVectorIndex, map[string]any{
		"documents": []any{"authentication middleware handles tokens"},
		"metadatas": []any{map[string]any{"source": "auth.go", "line": "42"}},
	})
	if err != nil {
		t.Fatalf("index with metadatas: %v", err)
	}

	res, err := p.Execute(ctx, operation.OpVectorSearch,
		map[string]any{"query": "authentication tokens", "n_results": 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	hits := res.Payload["results"].([]map[string]any)
	if len(hits) != 1 {
		t.Fatalf("expected one hit, got %d", len(hits))
	}
	meta, ok := hits[0]["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("hit carries no metadata: %v", hits[0])
	}
	if meta["source"] != "auth.go" {
		t.Errorf("metadata source = %v, want auth.go", meta["source"])
	}
}

func TestIndexRejectsMismatchedMetadatas(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/docs"})
	_, err := p.Execute(ctx, operation.OpVectorIndex, map[string]any{
		"documents": []any{"one", "two"},
		"metadatas": []any{map[string]any{"k": "v"}},
	})
	if operation.KindOf(err) != operation.KindInvalidParameters {
		t.Errorf("kind = %s, want InvalidParameters", operation.KindOf(err))
	}
}

func TestUnloadMakesCollectionUnsearchable(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/docs"})
	res, err := p.Execute(ctx, operation.OpUnloadCollection, map[string]any{"path": "/ws/docs"})
	if err != nil {
		t.Fatalf("unload: %v", err)
	}
	if res.Payload["was_loaded"] != true {
		t.Error("unload should report was_loaded=true")
	}

	_, err = p.Execute(ctx, operation.OpCollectionStats, map[string]any{"path": "/ws/docs"})
	if operation.KindOf(err) != operation.KindCollectionNotLoaded {
		t.Errorf("stats after unload: kind = %s, want CollectionNotLoaded", operation.KindOf(err))
	}

	_, err = p.Execute(ctx, operation.OpVectorSearch, map[string]any{"query": "anything"})
	if operation.KindOf(err) != operation.KindCollectionNotLoaded {
		t.Errorf("search after unload: kind = %s, want CollectionNotLoaded", operation.KindOf(err))
	}
}

func TestConcurrentLoadsCoalesce(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/shared"})
		}()
	}
	wg.Wait()

	if got := p.LoadCount(); got != 1 {
		t.Errorf("concurrent loads should coalesce to one, got %d", got)
	}
}

func TestLoadSwitchesCurrentCollection(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/a"})
	p.Execute(ctx, operation.OpVectorIndex, map[string]any{"documents": "alpha document"})

	p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/b"})
	p.Execute(ctx, operation.OpVectorIndex, map[string]any{"documents": "beta document"})

	res, err := p.Execute(ctx, operation.OpVectorSearch, map[string]any{"query": "document"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Payload["collection"] != "/ws/b" {
		t.Errorf("search should hit the most recently loaded collection, got %v",
			res.Payload["collection"])
	}

	// Re-loading an already-loaded collection makes it current again.
	p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/a"})
	res, err = p.Execute(ctx, operation.OpVectorSearch, map[string]any{"query": "document"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Payload["collection"] != "/ws/a" {
		t.Errorf("re-load should switch current back, got %v", res.Payload["collection"])
	}
}

func TestSemanticSearchRemapsTextAndLimit(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	p.Execute(ctx, operation.OpLoadCollection, map[string]any{"path": "/ws/docs"})
	p.Execute(ctx, operation.OpVectorIndex, map[string]any{
		"documents": []any{"hello world", "goodbye world", "hello again"},
	})

	res, err := p.Execute(ctx, operation.OpSemanticSearch,
		map[string]any{"text": "hello", "limit": 2})
	if err != nil {
		t.Fatalf("semantic_search: %v", err)
	}
	hits := res.Payload["results"].([]map[string]any)
	if len(hits) != 2 {
		t.Errorf("limit should cap results at 2, got %d", len(hits))
	}
	if res.Payload["query"] != "hello" {
		t.Errorf("text should map onto the query, got %v", res.Payload["query"])
	}
}

func TestDispatcherValidatesBeforeProvider(t *testing.T) {
	p := newTestProvider(t)
	d := dispatch.New(p, logging.CategoryVector)

	res := d.Execute(context.Background(), operation.OpVectorSearch,
		map[string]any{"n_results": 3})
	if res.Kind != operation.KindInvalidParameters {
		t.Errorf("kind = %s, want InvalidParameters", res.Kind)
	}

	res = d.Execute(context.Background(), operation.OpLoadCollection,
		map[string]any{"name": "docs"})
	if res.Kind != operation.KindInvalidParameters {
		t.Errorf("load without path: kind = %s, want InvalidParameters", res.Kind)
	}
}

func TestUnavailableProvider(t *testing.T) {
	d := dispatch.New(NewProvider(nil), logging.CategoryVector)

	res := d.Execute(context.Background(), operation.OpLoadCollection, map[string]any{"path": "/ws/docs"})
	if res.Kind != operation.KindProviderUnavailable {
		t.Errorf("kind = %s, want ProviderUnavailable", res.Kind)
	}
}
