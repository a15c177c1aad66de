package health

import "context"

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexState reports whether the vector index finished initialization.
type IndexState interface {
	Initialized() bool
}
