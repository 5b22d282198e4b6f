package openai

import (
	sdk "github.com/openai/openai-go/v2"

	"ontorlm/internal/llm"
)

// AdaptMessages converts portable llm.Message history to OpenAI SDK message
// params. Empty content is replaced with a placeholder since the Chat
// Completions API rejects blank message bodies.
func AdaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			content := m.Content
			if content == "" {
				content = "You are a helpful assistant."
			}
			out = append(out, sdk.SystemMessage(content))
		case "user":
			content := m.Content
			if content == "" {
				content = " "
			}
			out = append(out, sdk.UserMessage(content))
		case "assistant":
			content := m.Content
			if content == "" {
				content = " "
			}
			out = append(out, sdk.AssistantMessage(content))
		}
	}
	return out
}
