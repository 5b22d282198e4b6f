package llm

import (
	"context"
	"fmt"
	"strings"
)

// Completion is the result of a single LM turn in the plain-prompt contract
// the RLM engine drives the root, sub, and judge LMs with (spec.md §6): one
// prompt in, one text completion out, plus token accounting for budgeting
// and the cost estimate in the final trajectory summary.
type Completion struct {
	Text         string
	PromptTokens int
	OutputTokens int
	StopReason   string
}

// LM is the abstract language-model collaborator spec.md §6 describes: a
// single-turn, stop-sequence-aware text completion call. It is deliberately
// narrower than Provider (no tool-calling, no streaming) because the RLM
// loop itself is the only tool dispatcher — the LM only ever emits text that
// may contain a fenced code block.
type LM interface {
	Complete(ctx context.Context, prompt string, stop []string) (Completion, error)
}

// providerLM adapts any Provider (anthropic/openai/google) to the LM
// contract by wrapping the prompt as a single user message with no tool
// schemas offered.
type providerLM struct {
	provider Provider
	model    string
	system   string
}

// NewProviderLM wraps a chat Provider as a plain-prompt LM. system, when
// non-empty, is sent as a leading system message on every call. The RLM
// engine puts the sense card into the prompt text itself, and cmd/ontorlm
// passes an empty system.
func NewProviderLM(p Provider, model, system string) LM {
	return &providerLM{provider: p, model: model, system: system}
}

func (l *providerLM) Complete(ctx context.Context, prompt string, stop []string) (Completion, error) {
	msgs := make([]Message, 0, 2)
	if l.system != "" {
		msgs = append(msgs, Message{Role: "system", Content: l.system})
	}
	msgs = append(msgs, Message{Role: "user", Content: prompt})

	reply, err := l.provider.Chat(ctx, msgs, l.model)
	if err != nil {
		return Completion{}, fmt.Errorf("lm complete: %w", err)
	}

	text := reply.Content
	stopReason := ""
	for _, s := range stop {
		if s == "" {
			continue
		}
		if idx := strings.Index(text, s); idx >= 0 {
			text = text[:idx]
			stopReason = s
			break
		}
	}

	promptTokens := EstimateTokens(l.system + prompt)
	outputTokens := EstimateTokens(reply.Content)
	RecordTokenMetrics(l.model, promptTokens, outputTokens)

	return Completion{
		Text:         text,
		PromptTokens: promptTokens,
		OutputTokens: outputTokens,
		StopReason:   stopReason,
	}, nil
}
