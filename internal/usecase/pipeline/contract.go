package pipeline

import (
	"context"

	"github.com/samber/mo"

	"github.com/kailas-cloud/rulebook/internal/repository/querylog"
)

// Retriever returns the chunk texts most relevant to a query.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]string, error)
}

// Generator produces an answer from a query and its joined context.
type Generator interface {
	Generate(ctx context.Context, query, retrieved string) mo.Result[string]
}

// QueryLog records every served query.
type QueryLog interface {
	Append(ctx context.Context, e querylog.Entry) (int64, error)
	Describe() string
}
