package chi

import (
	"context"

	"github.com/kailas-cloud/rulebook/internal/repository/querylog"
	healthuc "github.com/kailas-cloud/rulebook/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/rulebook/internal/usecase/ingest"
	pipelineuc "github.com/kailas-cloud/rulebook/internal/usecase/pipeline"
)

// Authenticator verifies bearer headers and logs users in.
type Authenticator interface {
	SubjectFromHeader(header string) (string, error)
	Login(username, password string) (string, error)
}

// Ingester runs a document ingestion.
type Ingester interface {
	IngestFile(ctx context.Context) ingestuc.Result
}

// Answerer serves a query for an authenticated subject.
type Answerer interface {
	Answer(ctx context.Context, subject, query string) (pipelineuc.Response, error)
}

// HistoryReader lists logged queries.
type HistoryReader interface {
	List(ctx context.Context, userID string, limit int) ([]querylog.Entry, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
