package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rulebook/internal/domain"
)

func TestEmbed_MissThenHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	first, err := ce.Embed(ctx, "how do I get out of jail")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.TotalTokens != 10 {
		t.Errorf("expected tokens on miss, got %d", first.TotalTokens)
	}
	if len(ms.data) != 1 {
		t.Fatalf("expected 1 cached entry, got %d", len(ms.data))
	}
	for k, ttl := range ms.ttls {
		if !strings.HasPrefix(k, "rulebook:emb_cache:") {
			t.Errorf("unexpected key: %s", k)
		}
		if ttl != time.Hour {
			t.Errorf("unexpected ttl: %v", ttl)
		}
	}

	second, err := ce.Embed(ctx, "how do I get out of jail")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected inner called once, got %d", inner.calls)
	}
	if second.TotalTokens != 0 {
		t.Errorf("expected 0 tokens on hit, got %d", second.TotalTokens)
	}
	if len(second.Embedding) != 3 || second.Embedding[2] != 0.3 {
		t.Errorf("unexpected cached vector: %v", second.Embedding)
	}
}

func TestEmbed_NamespaceSeparatesModels(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ms := &mockKVStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
	a := New(inner, ms, Config{Namespace: "model-a"}, nil, zap.NewNop())
	b := New(inner, ms, Config{Namespace: "model-b"}, nil, zap.NewNop())

	if a.cacheKey("text") == b.cacheKey("text") {
		t.Fatal("expected different keys for different namespaces")
	}
}

func TestEmbed_InnerError(t *testing.T) {
	innerErr := errors.New("provider down")
	inner := &mockEmbedder{err: innerErr}
	ce, ms := newTestCachedEmbedder(t, inner)

	_, err := ce.Embed(context.Background(), "x")
	if !errors.Is(err, innerErr) {
		t.Fatalf("expected inner error, got %v", err)
	}
	if len(ms.data) != 0 {
		t.Error("nothing should be cached on error")
	}
}

func TestEmbed_StoreErrorsDegradeToMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 2}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) { return nil, errors.New("conn reset") }
	ms.setFn = func(_ context.Context, _ string, _ []byte, _ time.Duration) error { return errors.New("conn reset") }

	res, err := ce.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("cache failures must not fail the call: %v", err)
	}
	if len(res.Embedding) != 2 {
		t.Errorf("unexpected vector: %v", res.Embedding)
	}
}

func TestEmbed_CorruptEntryIgnored(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) { return []byte{1, 2, 3}, nil }

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Error("expected fallback to inner embedder")
	}
}

func TestBatchEmbed_OnlyMissesReachProvider(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.5}, TotalTokens: 2}}
	ce, _ := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	if _, err := ce.Embed(ctx, "cached"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	res, err := ce.BatchEmbed(ctx, []string{"new-1", "cached", "new-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if inner.batchCalls != 1 || inner.batchSizes[0] != 2 {
		t.Errorf("expected one batch of 2 misses, got %v", inner.batchSizes)
	}
	if res.TotalTokens != 4 {
		t.Errorf("expected tokens for misses only, got %d", res.TotalTokens)
	}

	again, err := ce.BatchEmbed(ctx, []string{"new-1", "new-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchCalls != 1 || again.TotalTokens != 0 {
		t.Error("expected fully cached batch to skip the provider")
	}
}

func TestCacheMetrics(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	ms := &mockKVStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
	ce := New(inner, ms, Config{}, counter, zap.NewNop())

	_, _ = ce.Embed(context.Background(), "a")
	_, _ = ce.Embed(context.Background(), "a")

	if got := testutil.ToFloat64(counter.WithLabelValues("miss")); got != 1 {
		t.Errorf("miss = %v, want 1", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("hit")); got != 1 {
		t.Errorf("hit = %v, want 1", got)
	}
}

func TestVectorBytesRoundTrip(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for length not multiple of 4")
	}
	vec, err := bytesToVector(vectorToCacheBytes([]float32{-1.5, 0, 3.25}))
	if err != nil || len(vec) != 3 || vec[0] != -1.5 || vec[2] != 3.25 {
		t.Errorf("unexpected vector: %v, %v", vec, err)
	}
}
