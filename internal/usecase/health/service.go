package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	vectordb  Pinger
	index     IndexState
	querylog  Pinger
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil.
func New(vectordb Pinger, index IndexState, querylog Pinger, embedding EmbeddingChecker) *Service {
	return &Service{vectordb: vectordb, index: index, querylog: querylog, embedding: embedding}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{
		"vectordb": result(s.vectordb.Ping(ctx)),
		"querylog": result(s.querylog.Ping(ctx)),
		"index":    CheckOK,
	}
	if !s.index.Initialized() {
		checks["index"] = CheckError
	}
	if s.embedding != nil {
		checks["embedding"] = result(s.embedding.HealthCheck(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
