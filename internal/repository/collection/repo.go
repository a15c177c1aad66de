// Package collection stores chunk collections in Redis/Valkey as HASH
// documents under an FT vector index.
package collection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/rulebook/internal/db"
	"github.com/kailas-cloud/rulebook/internal/domain"
)

// store is the consumer interface for chunk collections.
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo is the Redis/Valkey vector engine.
type Repo struct {
	store     store
	prefix    string
	vectorDim int
	algo      db.VectorAlgorithm
	hnsw      HNSWConfig
	backend   string
	now       func() time.Time
}

// New creates a collection repository. prefix namespaces every key, e.g. "rulebook:".
func New(s store, prefix string, vectorDim int) *Repo {
	return &Repo{
		store:     s,
		prefix:    prefix,
		vectorDim: vectorDim,
		algo:      db.VectorHNSW,
		hnsw:      HNSWConfig{M: 16, EFConstruct: 200},
		backend:   "redis",
		now:       time.Now,
	}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// WithBackend sets the name reported by Describe.
func (r *Repo) WithBackend(name string) *Repo {
	if name != "" {
		r.backend = name
	}
	return r
}

// WithAlgorithm switches the vector index algorithm.
func (r *Repo) WithAlgorithm(algo db.VectorAlgorithm) *Repo {
	if algo != "" {
		r.algo = algo
	}
	return r
}

// EnsureCollection creates the collection unless its index already exists.
func (r *Repo) EnsureCollection(ctx context.Context, name string) error {
	exists, err := r.store.IndexExists(ctx, r.indexName(name))
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if exists {
		return nil
	}
	err = r.create(ctx, name)
	if errors.Is(err, db.ErrIndexExists) {
		// lost a race with another process
		return nil
	}
	return err
}

// Recreate drops the collection together with its chunks, then creates it empty.
func (r *Repo) Recreate(ctx context.Context, name string) error {
	err := r.store.DropIndex(ctx, r.indexName(name), true)
	if err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", name, err)
	}
	if err := r.store.Del(ctx, r.metaKey(name)); err != nil {
		return fmt.Errorf("del collection %s: %w", name, err)
	}
	return r.create(ctx, name)
}

// create writes metadata then FT.CREATE, rolling the metadata back if the index fails.
func (r *Repo) create(ctx context.Context, name string) error {
	def, err := buildIndex(r.indexName(name), r.chunkPrefix(name), r.vectorDim, r.algo, r.hnsw)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	meta := db.HashSetItem{
		Key: r.metaKey(name),
		Fields: map[string]string{
			"name":       name,
			"vector_dim": strconv.Itoa(r.vectorDim),
			"algorithm":  string(r.algo),
			"created_at": strconv.FormatInt(r.now().UnixMilli(), 10),
		},
	}
	if err := r.store.HSetMulti(ctx, []db.HashSetItem{meta}); err != nil {
		return fmt.Errorf("hset collection %s: %w", name, err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		cleanupErr := r.store.Del(ctx, meta.Key)
		return errors.Join(err, cleanupErr)
	}
	return nil
}

// AddBulk writes all records in one pipelined round-trip.
func (r *Repo) AddBulk(ctx context.Context, name string, records []domain.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, len(records))
	for i := range records {
		if len(records[i].Vector) != r.vectorDim {
			return fmt.Errorf("record %s: vector has %d dimensions, collection expects %d",
				records[i].ID, len(records[i].Vector), r.vectorDim)
		}
		items[i] = db.HashSetItem{
			Key:    r.chunkKey(name, records[i].ID),
			Fields: recordToHash(&records[i]),
		}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("hset chunks %s: %w", name, err)
	}
	return nil
}

// Search returns up to k chunks ranked most similar first. A missing index
// yields no hits.
func (r *Repo) Search(ctx context.Context, name string, vector []float32, k int) ([]domain.ChunkHit, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(name),
		Field:        vectorField,
		Vector:       vector,
		K:            k,
		ReturnFields: []string{docIDField, textField},
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return []domain.ChunkHit{}, nil
		}
		return nil, fmt.Errorf("search %s: %w", name, err)
	}

	hits := make([]domain.ChunkHit, 0, len(res.Entries))
	for i := range res.Entries {
		hits = append(hits, hitFromEntry(&res.Entries[i]))
	}
	return hits, nil
}

// Exists reports whether the collection's index is present.
func (r *Repo) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := r.store.IndexExists(ctx, r.indexName(name))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	return ok, nil
}

// Count returns the number of chunks in the collection, 0 when absent.
func (r *Repo) Count(ctx context.Context, name string) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(name), "*")
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// Describe names the backend for status messages.
func (r *Repo) Describe() string { return r.backend }

// Key patterns: {prefix}collection:{name}, {prefix}{name}:idx, {prefix}{name}:{doc_id}

func (r *Repo) metaKey(name string) string {
	return fmt.Sprintf("%scollection:%s", r.prefix, name)
}

func (r *Repo) indexName(name string) string {
	return fmt.Sprintf("%s%s:idx", r.prefix, name)
}

func (r *Repo) chunkPrefix(name string) string {
	return fmt.Sprintf("%s%s:", r.prefix, name)
}

func (r *Repo) chunkKey(name, id string) string {
	return r.chunkPrefix(name) + id
}
