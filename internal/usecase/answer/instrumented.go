package answer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rulebook/internal/domain"
	"github.com/kailas-cloud/rulebook/internal/metrics"
)

// DefaultTimeout bounds a single generation.
const DefaultTimeout = 30 * time.Second

// Instrumented bounds generation time and records metrics.
type Instrumented struct {
	inner   Generator
	backend string
	timeout time.Duration
	logger  *zap.Logger
}

// NewInstrumented wraps inner. timeout <= 0 selects DefaultTimeout.
func NewInstrumented(inner Generator, backend string, timeout time.Duration, logger *zap.Logger) *Instrumented {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{inner: inner, backend: backend, timeout: timeout, logger: logger}
}

// Generate runs inner under the timeout. Every failure wraps domain.ErrGeneration.
func (g *Instrumented) Generate(ctx context.Context, query, retrieved string) mo.Result[string] {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res := g.inner.Generate(ctx, query, retrieved)
	duration := time.Since(start)
	metrics.GenerationDuration.WithLabelValues(g.backend).Observe(duration.Seconds())

	if err := res.Error(); err != nil {
		status := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		metrics.GenerationTotal.WithLabelValues(g.backend, status).Inc()
		g.logger.Warn("answer generation failed",
			zap.String("backend", g.backend),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		if !errors.Is(err, domain.ErrGeneration) {
			err = fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
		return mo.Err[string](err)
	}

	metrics.GenerationTotal.WithLabelValues(g.backend, "success").Inc()
	g.logger.Debug("answer generated",
		zap.String("backend", g.backend),
		zap.Duration("duration", duration),
	)
	return res
}
