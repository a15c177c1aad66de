// Package pipeline answers an authenticated query: retrieve, generate, log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rulebook/internal/domain"
	"github.com/kailas-cloud/rulebook/internal/metrics"
	"github.com/kailas-cloud/rulebook/internal/repository/querylog"
)

// ContextSeparator joins retrieved chunks into the generation context.
const ContextSeparator = "\n\n---\n\n"

// Response is the outcome of a served query.
type Response struct {
	Query         string
	Result        string
	ContextChunks []string
	LogStatus     string
	LogID         int64
	// GenerationErr is kept for logs and metrics, not for the client.
	GenerationErr error
}

// Service orchestrates a single query.
type Service struct {
	retriever Retriever
	generator Generator
	log       QueryLog
	topK      int
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a Service. topK <= 0 leaves the retriever's default in place.
func New(r Retriever, g Generator, l QueryLog, topK int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{retriever: r, generator: g, log: l, topK: topK, logger: logger, now: time.Now}
}

// Answer runs retrieval, generation and logging for subject's query.
// Only an uninitialized index fails the request; every later failure is
// folded into the response.
func (s *Service) Answer(ctx context.Context, subject, query string) (Response, error) {
	start := s.now()

	chunks, err := s.retriever.Query(ctx, query, s.topK)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			return Response{}, err
		}
		s.logger.Warn("retrieval failed, answering without context",
			zap.String("user_id", subject),
			zap.Error(err),
		)
		chunks = []string{}
	}

	joined := strings.Join(chunks, ContextSeparator)
	resp := Response{Query: query, ContextChunks: chunks}

	if joined == "" {
		resp.Result = fmt.Sprintf("I couldn't find any information about '%s' in the rulebook.", query)
	} else {
		answer, genErr := s.generator.Generate(ctx, query, joined).Get()
		if genErr != nil {
			resp.GenerationErr = genErr
			resp.Result = fmt.Sprintf("LLM generation failed: %v", genErr)
		} else {
			resp.Result = answer
		}
	}

	id, err := s.log.Append(ctx, querylog.Entry{
		UserID:        subject,
		Timestamp:     start,
		Query:         query,
		FinalAnswer:   resp.Result,
		ContextChunks: joined,
	})
	if err != nil {
		metrics.QueryLogAppendsTotal.WithLabelValues("error").Inc()
		s.logger.Error("query log append failed", zap.String("user_id", subject), zap.Error(err))
		resp.LogStatus = fmt.Sprintf("Failed to log query: %v", err)
	} else {
		metrics.QueryLogAppendsTotal.WithLabelValues("success").Inc()
		resp.LogID = id
		resp.LogStatus = "Query logged successfully to " + s.log.Describe()
	}

	s.logger.Info("query answered",
		zap.String("user_id", subject),
		zap.Int("chunks", len(chunks)),
		zap.Bool("generation_failed", resp.GenerationErr != nil),
		zap.Int64("log_id", resp.LogID),
		zap.Duration("duration", s.now().Sub(start)),
	)
	return resp, nil
}
