package index

import (
	"context"
	"time"

	"github.com/kailas-cloud/rulebook/internal/domain"
)

// Engine is the vector storage contract. Implemented by the Redis/Valkey
// and Qdrant repositories.
type Engine interface {
	EnsureCollection(ctx context.Context, name string) error
	// Recreate drops the collection together with its records and creates it empty.
	Recreate(ctx context.Context, name string) error
	AddBulk(ctx context.Context, name string, records []domain.ChunkRecord) error
	// Search returns hits most similar first. A missing collection yields no hits.
	Search(ctx context.Context, name string, vector []float32, k int) ([]domain.ChunkHit, error)
	Exists(ctx context.Context, name string) (bool, error)
	Count(ctx context.Context, name string) (int, error)
	Describe() string
}

// Readiness blocks until the engine's backing server answers.
type Readiness interface {
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Connector opens the engine and its readiness check, which may be nil.
type Connector func(ctx context.Context) (Engine, Readiness, error)
