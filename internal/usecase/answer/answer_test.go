package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/mo"

	"github.com/kailas-cloud/rulebook/internal/domain"
	"github.com/kailas-cloud/rulebook/internal/metrics"
)

type mockCompleter struct {
	system, user string
	out          string
	err          error
}

func (m *mockCompleter) Complete(_ context.Context, system, user string) (string, error) {
	m.system, m.user = system, user
	return m.out, m.err
}

type generatorFunc func(ctx context.Context, query, retrieved string) mo.Result[string]

func (f generatorFunc) Generate(ctx context.Context, query, retrieved string) mo.Result[string] {
	return f(ctx, query, retrieved)
}

func TestTemplate_Format(t *testing.T) {
	res := Template{}.Generate(context.Background(), "How much is rent?", "chunk one\n\n---\n\nchunk two")

	want := "LLM RESPONSE SIMULATION:\n" +
		"--- Grounded Answer ---\n" +
		"Based on your question: 'How much is rent?', the following relevant rules were found:\n" +
		"chunk one\n\n---\n\nchunk two"
	got, err := res.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestTemplate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := (Template{}).Generate(ctx, "q", "c"); !res.IsError() {
		t.Fatal("expected error")
	}
}

func TestChat_BuildsGroundedPrompt(t *testing.T) {
	c := &mockCompleter{out: "Collect $200."}
	res := NewChat(c, "").Generate(context.Background(), "What happens on GO?", "Passing GO pays $200.")

	if got := res.MustGet(); got != "Collect $200." {
		t.Errorf("unexpected answer %q", got)
	}
	if c.system != SystemPrompt {
		t.Errorf("expected default system prompt, got %q", c.system)
	}
	if !strings.Contains(c.user, "Passing GO pays $200.") || !strings.Contains(c.user, "What happens on GO?") {
		t.Errorf("user message should carry context and question: %q", c.user)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name string
		c    *mockCompleter
	}{
		{"provider error", &mockCompleter{err: errors.New("503 overloaded")}},
		{"empty answer", &mockCompleter{out: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewChat(tt.c, "custom").Generate(context.Background(), "q", "c")
			if !errors.Is(res.Error(), domain.ErrGeneration) {
				t.Fatalf("expected ErrGeneration, got %v", res.Error())
			}
		})
	}
}

func TestInstrumented_Success(t *testing.T) {
	before := testutil.ToFloat64(metrics.GenerationTotal.WithLabelValues("test-ok", "success"))

	g := NewInstrumented(Template{}, "test-ok", 0, nil)
	res := g.Generate(context.Background(), "q", "c")
	if res.IsError() {
		t.Fatalf("unexpected error: %v", res.Error())
	}

	after := testutil.ToFloat64(metrics.GenerationTotal.WithLabelValues("test-ok", "success"))
	if after != before+1 {
		t.Errorf("expected success counter to increase by 1, got %f -> %f", before, after)
	}
}

func TestInstrumented_WrapsErrors(t *testing.T) {
	inner := generatorFunc(func(context.Context, string, string) mo.Result[string] {
		return mo.Err[string](errors.New("boom"))
	})

	res := NewInstrumented(inner, "test-err", time.Second, nil).Generate(context.Background(), "q", "c")
	if !errors.Is(res.Error(), domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", res.Error())
	}
	if got := testutil.ToFloat64(metrics.GenerationTotal.WithLabelValues("test-err", "error")); got != 1 {
		t.Errorf("expected one error, got %f", got)
	}
}

func TestInstrumented_Timeout(t *testing.T) {
	inner := generatorFunc(func(ctx context.Context, _, _ string) mo.Result[string] {
		<-ctx.Done()
		return mo.Err[string](ctx.Err())
	})

	res := NewInstrumented(inner, "test-timeout", 10*time.Millisecond, nil).Generate(context.Background(), "q", "c")
	err := res.Error()
	if !errors.Is(err, domain.ErrGeneration) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.GenerationTotal.WithLabelValues("test-timeout", "timeout")); got != 1 {
		t.Errorf("expected one timeout, got %f", got)
	}
}
