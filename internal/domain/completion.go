package domain

import "context"

// CompletionRequest is one generation call: a system role plus a user prompt.
type CompletionRequest struct {
	System string
	Prompt string
}

// CompletionResult carries the generated text and token usage.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Completer is the generation provider contract used by answer and summary
// synthesis. Implementations must return ErrSynthesisFailed (wrapped) when
// the provider yields an empty completion.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}
