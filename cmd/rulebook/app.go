package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rulebook/internal/config"
	"github.com/kailas-cloud/rulebook/internal/db"
	dbRedis "github.com/kailas-cloud/rulebook/internal/db/redis"
	"github.com/kailas-cloud/rulebook/internal/db/valkey"
	"github.com/kailas-cloud/rulebook/internal/domain"
	"github.com/kailas-cloud/rulebook/internal/domain/chunk"
	"github.com/kailas-cloud/rulebook/internal/domain/hashembed"
	"github.com/kailas-cloud/rulebook/internal/metrics"
	collectionrepo "github.com/kailas-cloud/rulebook/internal/repository/collection"
	"github.com/kailas-cloud/rulebook/internal/repository/embcache"
	qdrantrepo "github.com/kailas-cloud/rulebook/internal/repository/qdrant"
	"github.com/kailas-cloud/rulebook/internal/repository/querylog"
	openaiTransport "github.com/kailas-cloud/rulebook/internal/transport/openai"
	"github.com/kailas-cloud/rulebook/internal/usecase/answer"
	authuc "github.com/kailas-cloud/rulebook/internal/usecase/auth"
	embeddinguc "github.com/kailas-cloud/rulebook/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/rulebook/internal/usecase/health"
	indexuc "github.com/kailas-cloud/rulebook/internal/usecase/index"
	ingestuc "github.com/kailas-cloud/rulebook/internal/usecase/ingest"
	pipelineuc "github.com/kailas-cloud/rulebook/internal/usecase/pipeline"
)

// app holds the shared handles. Created once, never reassigned.
type app struct {
	auth     *authuc.Service
	index    *indexuc.Service
	ingest   *ingestuc.Service
	pipeline *pipelineuc.Service
	queryLog querylog.Store
	health   *healthuc.Service
	closers  []func()
	// eng is set once index.Init connects the vector engine.
	eng atomic.Pointer[engine]
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if eng := a.eng.Load(); eng != nil {
		eng.close()
	}
}

// engine bundles a vector engine with its readiness and liveness checks.
type engine struct {
	indexuc.Engine
	ready indexuc.Readiness
	ping  healthuc.Pinger
	// kv is set for Redis/Valkey and backs the embedding cache.
	kv    db.KVStore
	close func()
}

var errEngineNotConnected = errors.New("vector engine not connected")

// connectEngine is the index connector. The engine is dialed on the first
// successful index.Init, so an unreachable backend leaves the app serving 503s.
func (a *app) connectEngine(cfg config.IndexConfig, dim int) indexuc.Connector {
	return func(context.Context) (indexuc.Engine, indexuc.Readiness, error) {
		eng, err := buildEngine(cfg, dim)
		if err != nil {
			return nil, nil, err
		}
		a.eng.Store(eng)
		return eng, eng.ready, nil
	}
}

// enginePinger reports vector engine liveness for the health check.
type enginePinger struct{ a *app }

func (p enginePinger) Ping(ctx context.Context) error {
	eng := p.a.eng.Load()
	if eng == nil {
		return errEngineNotConnected
	}
	return eng.ping.Ping(ctx)
}

// engineKV routes the embedding cache to the connected engine's store.
type engineKV struct{ a *app }

func (k engineKV) store() (db.KVStore, error) {
	eng := k.a.eng.Load()
	if eng == nil || eng.kv == nil {
		return nil, errEngineNotConnected
	}
	return eng.kv, nil
}

func (k engineKV) Get(ctx context.Context, key string) ([]byte, error) {
	s, err := k.store()
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, key)
}

func (k engineKV) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s, err := k.store()
	if err != nil {
		return err
	}
	return s.SetWithTTL(ctx, key, value, ttl)
}

// buildApp is the composition root.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	metrics.Register()

	a := &app{}

	auth, err := authuc.New(authuc.Config{
		SecretKey: cfg.Auth.SecretKey,
		Algorithm: cfg.Auth.Algorithm,
		TokenTTL:  cfg.Auth.TokenTTL(),
		LoginTTL:  cfg.Auth.LoginTTL(),
		Users:     cfg.Auth.Users,
	})
	if err != nil {
		return nil, err
	}
	a.auth = auth

	var kv db.KVStore
	if cfg.Index.Driver == "redis" || cfg.Index.Driver == "valkey" {
		kv = engineKV{a}
	}
	embedder := buildEmbedder(cfg.Embedding, cfg.Index.KeyPrefix, kv, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	a.index = indexuc.NewLazy(a.connectEngine(cfg.Index, cfg.Embedding.Dimensions), embedder, indexuc.Config{
		Collection:   cfg.Index.Collection,
		TopK:         cfg.Index.TopK,
		MinScore:     cfg.Index.MinScore,
		ReadyTimeout: time.Duration(cfg.Index.ReadinessTimeout) * time.Second,
	}, logger)

	splitter, err := chunk.NewSplitter(cfg.Chunking.MaxSize, cfg.Chunking.Overlap)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ingest = ingestuc.New(a.index, splitter, cfg.Ingest.PDFPath, logger)

	qlog, err := querylog.Open(ctx, querylog.Config{
		Driver: cfg.QueryLog.Driver,
		Path:   cfg.QueryLog.Path,
		DSN:    cfg.QueryLog.DSN,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open query log: %w", err)
	}
	a.queryLog = qlog
	a.closers = append(a.closers, func() { _ = qlog.Close() })

	generator := answer.NewInstrumented(
		buildGenerator(cfg.Generation, logger),
		cfg.Generation.Backend,
		time.Duration(cfg.Generation.TimeoutSec)*time.Second,
		logger,
	)
	a.pipeline = pipelineuc.New(a.index, generator, qlog, cfg.Index.TopK, logger)

	// the hash embedder has nothing to check
	var embCheck healthuc.EmbeddingChecker
	if cfg.Embedding.Provider == "openai" {
		embCheck = newEmbeddingHealthChecker(embedder)
	}
	a.health = healthuc.New(enginePinger{a}, a.index, qlog, embCheck)

	return a, nil
}

func buildEngine(cfg config.IndexConfig, dim int) (*engine, error) {
	switch cfg.Driver {
	case "redis", "valkey":
		algo, err := db.ParseVectorAlgorithm(strings.ToUpper(cfg.Algorithm))
		if err != nil {
			return nil, err
		}
		store, err := openStore(cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", cfg.Driver, err)
		}
		repo := collectionrepo.New(store, cfg.KeyPrefix, dim).
			WithBackend(cfg.Driver).
			WithAlgorithm(algo).
			WithHNSW(collectionrepo.HNSWConfig{M: cfg.HNSWM, EFConstruct: cfg.HNSWEFConstruct})
		return &engine{Engine: repo, ready: store, ping: store, kv: store, close: store.Close}, nil
	case "qdrant":
		repo, err := qdrantrepo.New(qdrantrepo.Config{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantTLS,
		}, dim)
		if err != nil {
			return nil, err
		}
		return &engine{Engine: repo, ready: repo, ping: repo, close: repo.Close}, nil
	default:
		return nil, fmt.Errorf("unknown index driver %q", cfg.Driver)
	}
}

// openStore dials Redis or Valkey. valkey-search gets its own driver since it
// rejects some RediSearch commands.
func openStore(cfg config.IndexConfig) (db.Store, error) {
	rcfg := dbRedis.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if cfg.Driver == "valkey" {
		store, err := valkey.NewStore(rcfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := dbRedis.NewStore(rcfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// buildEmbedder assembles the decorator chain: provider -> Cached -> Instrumented.
func buildEmbedder(cfg config.EmbeddingConfig, keyPrefix string, kv db.KVStore, logger *zap.Logger) domain.Embedder {
	if cfg.Provider != "openai" {
		return hashembed.New(cfg.Dimensions)
	}

	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if kv != nil && cfg.Cache.Enabled {
		embedder = embcache.New(base, kv, embcache.Config{
			Prefix:    keyPrefix + "emb_cache:",
			Namespace: cfg.Model,
			TTL:       time.Duration(cfg.Cache.TTLSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, cfg.MaxBatchSize, logger)
}

func buildGenerator(cfg config.GenerationConfig, logger *zap.Logger) answer.Generator {
	if cfg.Backend != "openai" {
		return answer.Template{}
	}
	return answer.NewChat(openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Logger:      logger,
	}), cfg.SystemPrompt)
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}
