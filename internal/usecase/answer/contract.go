package answer

import (
	"context"

	"github.com/samber/mo"
)

// Generator turns a query and its retrieved context into an answer.
type Generator interface {
	Generate(ctx context.Context, query, retrieved string) mo.Result[string]
}

// Completer is a chat model taking a system and a user message.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
