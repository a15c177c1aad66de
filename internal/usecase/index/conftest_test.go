package index

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/rulebook/internal/domain"
)

// memEngine is an in-memory Engine scoring by dot product.
type memEngine struct {
	mu          sync.Mutex
	collections map[string][]domain.ChunkRecord
	recreated   int

	ensureErr   error
	recreateErr error
	addErr      error
	searchErr   error
}

func newMemEngine() *memEngine {
	return &memEngine{collections: make(map[string][]domain.ChunkRecord)}
}

func (m *memEngine) EnsureCollection(_ context.Context, name string) error {
	if m.ensureErr != nil {
		return m.ensureErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = nil
	}
	return nil
}

func (m *memEngine) Recreate(_ context.Context, name string) error {
	if m.recreateErr != nil {
		return m.recreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = nil
	m.recreated++
	return nil
}

func (m *memEngine) AddBulk(_ context.Context, name string, records []domain.ChunkRecord) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		replaced := false
		for i, existing := range m.collections[name] {
			if existing.ID == rec.ID {
				m.collections[name][i] = rec
				replaced = true
			}
		}
		if !replaced {
			m.collections[name] = append(m.collections[name], rec)
		}
	}
	return nil
}

func (m *memEngine) Search(_ context.Context, name string, vector []float32, k int) ([]domain.ChunkHit, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := make([]domain.ChunkHit, 0, len(m.collections[name]))
	for _, rec := range m.collections[name] {
		var dot float64
		for i := range vector {
			dot += float64(vector[i]) * float64(rec.Vector[i])
		}
		hits = append(hits, domain.ChunkHit{ID: rec.ID, Text: rec.Text, Score: dot})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *memEngine) Exists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *memEngine) Count(_ context.Context, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[name]), nil
}

func (m *memEngine) Describe() string { return "memory" }

func (m *memEngine) ids(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.collections[name]))
	for i, rec := range m.collections[name] {
		out[i] = rec.ID
	}
	return out
}

type readyFunc func(ctx context.Context, timeout time.Duration) error

func (f readyFunc) WaitForReady(ctx context.Context, timeout time.Duration) error { return f(ctx, timeout) }

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New("provider down")
}
