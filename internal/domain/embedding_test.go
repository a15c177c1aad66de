package domain

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	calls  []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.calls = append(s.calls, text)
	return s.result, s.err
}

type stubBatchEmbedder struct {
	stubEmbedder
	batchCalls int
}

func (s *stubBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (BatchEmbeddingResult, error) {
	s.batchCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

func TestBatchFallback_CallsEmbedPerText(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{1}, PromptTokens: 2, TotalTokens: 3}}

	res, err := BatchFallback(context.Background(), inner, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.calls) != 3 {
		t.Fatalf("expected 3 Embed calls, got %d", len(inner.calls))
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.PromptTokens != 6 || res.TotalTokens != 9 {
		t.Errorf("unexpected usage: prompt=%d total=%d", res.PromptTokens, res.TotalTokens)
	}
}

func TestBatchFallback_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	inner := &stubEmbedder{err: innerErr}

	_, err := BatchFallback(context.Background(), inner, []string{"a"})
	if !errors.Is(err, innerErr) {
		t.Fatalf("expected wrapped inner error, got %v", err)
	}
}

func TestEmbedAll_PrefersNativeBatch(t *testing.T) {
	inner := &stubBatchEmbedder{}

	res, err := EmbedAll(context.Background(), inner, []string{"x", "y"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchCalls != 1 {
		t.Errorf("expected 1 batch call, got %d", inner.batchCalls)
	}
	if len(inner.calls) != 0 {
		t.Errorf("expected no per-text calls, got %d", len(inner.calls))
	}
	if len(res.Embeddings) != 2 {
		t.Errorf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
}

func TestIngestionError_MatchesSentinelAndCause(t *testing.T) {
	cause := errors.New("file missing")
	err := NewIngestionError("read", cause)

	if !errors.Is(err, ErrIngestion) {
		t.Error("expected errors.Is(err, ErrIngestion)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}
	var ie *IngestionError
	if !errors.As(err, &ie) || ie.Stage != "read" {
		t.Errorf("expected stage read, got %+v", ie)
	}
}
