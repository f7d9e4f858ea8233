package vecsearch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hanzoai/aci/internal/logging"
)

const collectionSchema = `
CREATE TABLE IF NOT EXISTS vectors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding TEXT,
	metadata TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_vectors_collection ON vectors(collection);
`

// Store holds all collections in one SQLite database. Collections are
// rows tagged with a collection name; a Collection handle scopes reads
// and writes to one name.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	engine Engine
}

// OpenStore opens (creating if needed) the vector database at path.
func OpenStore(path string, engine Engine) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	if _, err := db.Exec(collectionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize vector schema: %w", err)
	}

	logging.Vector("Opened vector store at %s (engine=%s)", path, engine.Name())
	return &Store{db: db, engine: engine}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Collection is a handle onto one named collection. Handles are cheap;
// identity of loaded collections is managed by the provider.
type Collection struct {
	store *Store
	name  string

	loadedAt time.Time
}

// Collection returns a handle scoped to the named collection.
func (s *Store) Collection(name string) *Collection {
	return &Collection{store: s, name: name, loadedAt: time.Now()}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// IndexBatch embeds and stores several documents in one transaction.
// metadatas is optional; when non-nil it must carry one map per
// document.
func (c *Collection) IndexBatch(ctx context.Context, contents []string, metadatas []map[string]any) (int, error) {
	if len(contents) == 0 {
		return 0, nil
	}
	if metadatas != nil && len(metadatas) != len(contents) {
		return 0, fmt.Errorf("%d metadatas for %d documents", len(metadatas), len(contents))
	}

	embeddings, err := c.store.engine.EmbedBatch(ctx, contents)
	if err != nil {
		return 0, fmt.Errorf("failed to generate batch embeddings: %w", err)
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stored := 0
	for i, content := range contents {
		embeddingJSON, err := json.Marshal(embeddings[i])
		if err != nil {
			continue
		}
		metaJSON := "{}"
		if metadatas != nil && metadatas[i] != nil {
			if raw, err := json.Marshal(metadatas[i]); err == nil {
				metaJSON = string(raw)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO vectors (collection, content, embedding, metadata) VALUES (?, ?, ?, ?)",
			c.name, content, string(embeddingJSON), metaJSON,
		); err != nil {
			return stored, err
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return stored, nil
}

// SearchResult is one ranked hit from a similarity search.
type SearchResult struct {
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Similarity float64        `json:"similarity"`
}

// Search embeds the query and ranks the collection's documents by
// cosine similarity, returning the top limit hits. Every stored vector
// is scanned; collections here are workspace-sized, not web-sized.
func (c *Collection) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := c.store.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	rows, err := c.store.db.QueryContext(ctx,
		"SELECT content, embedding, metadata FROM vectors WHERE collection = ? AND embedding IS NOT NULL",
		c.name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var content, embeddingJSON, metaJSON string
		if err := rows.Scan(&content, &embeddingJSON, &metaJSON); err != nil {
			continue
		}

		var vec []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &vec); err != nil {
			continue
		}

		similarity, err := CosineSimilarity(queryVec, vec)
		if err != nil {
			continue
		}

		r := SearchResult{Content: content, Similarity: similarity}
		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &r.Metadata)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sort by similarity descending.
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// Stats returns document counts and engine details for the collection.
func (c *Collection) Stats(ctx context.Context) (map[string]any, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var total, embedded int64
	c.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vectors WHERE collection = ?", c.name).Scan(&total)
	c.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vectors WHERE collection = ? AND embedding IS NOT NULL", c.name).Scan(&embedded)

	return map[string]any{
		"collection":           c.name,
		"total_documents":      total,
		"with_embeddings":      embedded,
		"embedding_engine":     c.store.engine.Name(),
		"embedding_dimensions": c.store.engine.Dimensions(),
		"loaded_at":            c.loadedAt.Format(time.RFC3339),
	}, nil
}
