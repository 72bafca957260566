// Package llm produces chat completions from a system preamble, optional
// retrieved context and the user's message.
package llm

import (
	"context"
	"errors"
)

var ErrCompletionService = errors.New("completion service error")

// Completer is implemented by every provider. contextMessage may be empty,
// in which case no context is sent.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, contextMessage, userMessage string) (string, error)
	Close() error
}
