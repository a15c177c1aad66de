package hashembed

import (
	"context"
	"math"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbed_Deterministic(t *testing.T) {
	e := New(64)
	a, err := e.Embed(context.Background(), "Pass GO, collect $200")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := e.Embed(context.Background(), "Pass GO, collect $200")
	if len(a.Embedding) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(a.Embedding))
	}
	for i := range a.Embedding {
		if a.Embedding[i] != b.Embedding[i] {
			t.Fatalf("dimension %d differs", i)
		}
	}
	if a.PromptTokens != 4 {
		t.Errorf("expected 4 word features, got %d", a.PromptTokens)
	}
}

func TestEmbed_Normalized(t *testing.T) {
	res, _ := New(0).Embed(context.Background(), "houses and hotels")
	if len(res.Embedding) != DefaultDimensions {
		t.Fatalf("expected default dims, got %d", len(res.Embedding))
	}
	var norm float64
	for _, v := range res.Embedding {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-4 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestEmbed_EmptyTextIsZeroVector(t *testing.T) {
	res, _ := New(16).Embed(context.Background(), "   ")
	for _, v := range res.Embedding {
		if v != 0 {
			t.Fatal("expected zero vector")
		}
	}
}

func TestEmbed_SimilarTextsRankHigher(t *testing.T) {
	e := New(DefaultDimensions)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "how do I get out of jail")
	near, _ := e.Embed(ctx, "to get out of jail pay a fine or roll doubles")
	far, _ := e.Embed(ctx, "the bank pays a dividend of fifty dollars")

	if cosine(q.Embedding, near.Embedding) <= cosine(q.Embedding, far.Embedding) {
		t.Error("expected related text to be more similar")
	}
}

func TestBatchEmbed_MatchesEmbed(t *testing.T) {
	e := New(32)
	ctx := context.Background()
	batch, err := e.BatchEmbed(ctx, []string{"alpha", "beta gamma"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch.Embeddings) != 2 || batch.TotalTokens != 3 {
		t.Fatalf("unexpected batch result: %d embeddings, %d tokens", len(batch.Embeddings), batch.TotalTokens)
	}
	single, _ := e.Embed(ctx, "beta gamma")
	for i := range single.Embedding {
		if single.Embedding[i] != batch.Embeddings[1][i] {
			t.Fatalf("dimension %d differs between batch and single", i)
		}
	}
}

func TestEmbed_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(8).Embed(ctx, "x"); err == nil {
		t.Fatal("expected context error")
	}
}
