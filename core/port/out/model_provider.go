package out

import "context"

// ChatMessage is one role/content pair in a completion request, the
// provider-agnostic shape core/llm builds before handing off to a back-end
// SDK.
type ChatMessage struct {
	Role    string
	Content string
}

// CompletionRequest is the uniform interface C2 exposes per spec.md §4.2:
// complete(messages, response_schema?, force_provider?).
type CompletionRequest struct {
	Messages       []ChatMessage
	ResponseSchema string // JSON schema describing the expected record shape
	ForceProvider  string // "primary" | "fallback" | "" (no override)
	MaxTokens      int
}

// CompletionResult carries the raw decoded JSON payload plus which back-end
// produced it; schema validation into a typed record happens one level up
// in core/llm, which knows the concrete record shape each caller expects.
type CompletionResult struct {
	RawJSON      string
	ProviderUsed string
}

// ModelProvider is the outbound port C2 adapters implement. A single
// implementation wraps both the primary and fallback back-ends and owns
// the retry-once-on-fallback policy described in spec.md §4.2.
type ModelProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Embedder is a secondary C2 capability used by the review queue's
// semantic near-duplicate check, not by the classifier/extractor paths.
// A ModelProvider that cannot embed simply doesn't implement this; callers
// type-assert for it and degrade to no dedup.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
