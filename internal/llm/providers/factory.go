package providers

import (
	"fmt"
	"net/http"

	"ontorlm/internal/config"
	"ontorlm/internal/llm"
	"ontorlm/internal/llm/anthropic"
	"ontorlm/internal/llm/google"
	openaillm "ontorlm/internal/llm/openai"
)

// Build constructs an llm.Provider from a single role's client config
// (root/sub/judge each carry one), dispatching on its Provider name.
// - openai: uses the OpenAI client
// - local: uses the OpenAI client with completions API
// - anthropic/google: the respective SDK-backed clients
func Build(cfg config.LLMClientConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return openaillm.New(cfg.OpenAI, httpClient), nil
	case "local":
		oc := cfg.OpenAI
		oc.API = "completions"
		return openaillm.New(oc, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), nil
	case "google":
		return google.New(cfg.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
