package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/mo"

	"github.com/kailas-cloud/rulebook/internal/domain"
)

// SystemPrompt grounds the model in the retrieved rules.
const SystemPrompt = "You answer questions about a board game rulebook. " +
	"Use only the rules given in the context. " +
	"If the context does not contain the answer, say that the rulebook does not cover it. " +
	"Answer concisely."

// Chat answers through a chat completion model.
type Chat struct {
	completer Completer
	system    string
}

// NewChat creates a Chat generator. An empty system prompt selects SystemPrompt.
func NewChat(c Completer, system string) *Chat {
	if system == "" {
		system = SystemPrompt
	}
	return &Chat{completer: c, system: system}
}

// Generate asks the model for an answer grounded in context.
func (c *Chat) Generate(ctx context.Context, query, retrieved string) mo.Result[string] {
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", retrieved, query)
	out, err := c.completer.Complete(ctx, c.system, user)
	if err != nil {
		if !errors.Is(err, domain.ErrGeneration) {
			err = fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
		return mo.Err[string](err)
	}
	if out == "" {
		return mo.Err[string](fmt.Errorf("%w: empty answer", domain.ErrGeneration))
	}
	return mo.Ok(out)
}
