// Package answer produces the final answer text from a query and retrieved context.
package answer

import (
	"context"
	"fmt"

	"github.com/samber/mo"
)

// Template answers deterministically by echoing the query and context.
type Template struct{}

// Generate never fails unless ctx is done.
func (Template) Generate(ctx context.Context, query, retrieved string) mo.Result[string] {
	if err := ctx.Err(); err != nil {
		return mo.Err[string](err)
	}
	return mo.Ok(fmt.Sprintf(
		"LLM RESPONSE SIMULATION:\n"+
			"--- Grounded Answer ---\n"+
			"Based on your question: '%s', the following relevant rules were found:\n"+
			"%s",
		query, retrieved,
	))
}
