package llm

import "context"

// Message is one turn of the plain chat history passed to a Provider.
// spec.md §6's contract only ever needs an optional leading system message
// plus a single user turn — no tool calls, no streaming deltas, no inline
// images, no multi-turn assistant history round-tripping. Keeping Message
// this narrow is deliberate: the RLM engine is the only tool dispatcher, so
// a Provider never needs to carry more than role + text.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Provider is a single-turn chat completion backend (anthropic/openai/google).
// llm.LM (lm.go) adapts a Provider to the engine's narrower Complete contract.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, model string) (Message, error)
}
