// Package index owns the single vector collection holding the document chunks.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rulebook/internal/domain"
	"github.com/kailas-cloud/rulebook/internal/metrics"
)

const (
	// DefaultCollection is the collection name used when none is configured.
	DefaultCollection = "monopoly_rules"
	// DefaultTopK is the number of chunks retrieved per query.
	DefaultTopK = 3

	defaultReadyTimeout = 30 * time.Second
)

// Config holds the collection settings.
type Config struct {
	Collection   string
	TopK         int
	MinScore     float64
	ReadyTimeout time.Duration
}

// Stats describes the collection state.
type Stats struct {
	Initialized bool
	Engine      string
	Collection  string
	Chunks      int
}

// Service manages the collection lifecycle. Reindex takes the write lock for
// the whole drop/create/add sequence, queries take the read lock.
type Service struct {
	connect  Connector
	engine   Engine
	ready    Readiness
	embedder domain.Embedder
	cfg      Config
	logger   *zap.Logger

	mu          sync.RWMutex
	initialized bool
}

// New creates a Service over an already opened engine. ready may be nil when
// the engine needs no warm-up.
func New(engine Engine, ready Readiness, embedder domain.Embedder, cfg Config, logger *zap.Logger) *Service {
	s := NewLazy(nil, embedder, cfg, logger)
	s.engine, s.ready = engine, ready
	return s
}

// NewLazy creates a Service that opens its engine on the first Init.
func NewLazy(connect Connector, embedder domain.Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{connect: connect, embedder: embedder, cfg: cfg, logger: logger}
}

// Collection returns the configured collection name.
func (s *Service) Collection() string { return s.cfg.Collection }

// Init waits for the engine and gets or creates the collection. On failure
// the service stays uninitialized and every operation returns ErrUnavailable.
func (s *Service) Init(ctx context.Context) error {
	engine, ready, err := s.open(ctx)
	if err != nil {
		return err
	}
	if ready != nil {
		if err := ready.WaitForReady(ctx, s.cfg.ReadyTimeout); err != nil {
			return fmt.Errorf("wait for %s: %w", engine.Describe(), err)
		}
	}
	if err := engine.EnsureCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("ensure collection %q: %w", s.cfg.Collection, err)
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("vector index initialized",
		zap.String("engine", engine.Describe()),
		zap.String("collection", s.cfg.Collection),
	)
	return nil
}

// open returns the engine, connecting it first when the Service is lazy.
// A failed connect leaves the Service without an engine; the next Init retries.
func (s *Service) open(ctx context.Context) (Engine, Readiness, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		return s.engine, s.ready, nil
	}
	if s.connect == nil {
		return nil, nil, errors.New("no vector engine configured")
	}
	engine, ready, err := s.connect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("connect vector engine: %w", err)
	}
	s.engine, s.ready = engine, ready
	return engine, ready, nil
}

// Initialized reports whether Init succeeded.
func (s *Service) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Reindex replaces the collection contents with chunks. Ids are doc_<i> in
// input order. Not atomic: a failure after the drop leaves the collection
// empty or partially filled.
func (s *Service) Reindex(ctx context.Context, chunks []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return 0, domain.ErrUnavailable
	}

	n, err := s.reindex(ctx, chunks)
	if err != nil {
		metrics.ReindexTotal.WithLabelValues("error").Inc()
		return 0, err
	}
	metrics.ReindexTotal.WithLabelValues("success").Inc()
	return n, nil
}

func (s *Service) reindex(ctx context.Context, chunks []string) (int, error) {
	var vectors [][]float32
	if len(chunks) > 0 {
		res, err := domain.EmbedAll(ctx, s.embedder, chunks)
		if err != nil {
			return 0, fmt.Errorf("embed chunks: %w", err)
		}
		if len(res.Embeddings) != len(chunks) {
			return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(res.Embeddings), len(chunks))
		}
		vectors = res.Embeddings
	}

	if err := s.engine.Recreate(ctx, s.cfg.Collection); err != nil {
		return 0, fmt.Errorf("recreate collection: %w", err)
	}

	records := make([]domain.ChunkRecord, len(chunks))
	for i, text := range chunks {
		records[i] = domain.ChunkRecord{
			ID:      fmt.Sprintf("doc_%d", i),
			Ordinal: i,
			Text:    text,
			Vector:  vectors[i],
		}
	}
	if err := s.engine.AddBulk(ctx, s.cfg.Collection, records); err != nil {
		return 0, fmt.Errorf("add chunks: %w", err)
	}

	s.logger.Info("collection reindexed",
		zap.String("collection", s.cfg.Collection),
		zap.Int("chunks", len(records)),
	)
	return len(records), nil
}

// Query returns the texts of the k most similar chunks, most relevant first.
// k <= 0 selects the configured top-k. Hits below the minimum score are dropped.
func (s *Service) Query(ctx context.Context, text string, k int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, domain.ErrUnavailable
	}
	if k <= 0 {
		k = s.cfg.TopK
	}

	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.engine.Search(ctx, s.cfg.Collection, emb.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Score < s.cfg.MinScore {
			continue
		}
		out = append(out, h.Text)
	}
	metrics.RetrievalChunks.Observe(float64(len(out)))
	return out, nil
}

// Stats reports the collection state. An uninitialized service returns
// Initialized=false and no error.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Initialized: s.initialized, Collection: s.cfg.Collection}
	if s.engine != nil {
		st.Engine = s.engine.Describe()
	}
	if !s.initialized {
		return st, nil
	}
	n, err := s.engine.Count(ctx, s.cfg.Collection)
	if err != nil {
		return st, fmt.Errorf("count chunks: %w", err)
	}
	st.Chunks = n
	return st, nil
}
