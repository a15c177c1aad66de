package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated signals a missing, malformed, tampered or expired credential.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrBadRequest signals a malformed request (bad header, bad login, malformed body).
	ErrBadRequest = errors.New("bad request")
	// ErrUnavailable signals that the vector index was never initialized.
	ErrUnavailable = errors.New("vector index is not initialized")
	// ErrIngestion signals a failed document ingestion. Reported in-band, never as an HTTP error.
	ErrIngestion = errors.New("ingestion failed")
	// ErrGeneration signals an answer generation failure. Recovered locally.
	ErrGeneration = errors.New("generation failed")
	// ErrStorage signals a query log write or read failure.
	ErrStorage = errors.New("storage error")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// IngestionError carries the stage at which ingestion stopped.
type IngestionError struct {
	Stage string
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrIngestion.Error(), e.Stage, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *IngestionError) Unwrap() []error { return []error{ErrIngestion, e.Err} }

// NewIngestionError wraps err as an ingestion failure at the given stage.
func NewIngestionError(stage string, err error) error {
	return &IngestionError{Stage: stage, Err: err}
}
