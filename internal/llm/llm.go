package llm

import "context"

// Message is one prior conversation turn.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Client is a minimal LLM interface to allow pluggable providers.
type Client interface {
	// Generate answers a single prompt.
	Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error)
	// Chat answers the last message given the preceding conversation.
	Chat(ctx context.Context, system string, messages []Message, maxTokens int) (string, error)
}
