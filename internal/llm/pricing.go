package llm

import "strings"

// modelPrice is a per-1K-token USD rate pair for one model family.
type modelPrice struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// priceTable is a small static price list covering the model families the
// anthropic/openai/google clients dispatch to. It mirrors the coarse,
// per-model granularity of the token-metrics aggregation in
// observability.go rather than trying to track provider price pages exactly.
var priceTable = map[string]modelPrice{
	"claude-opus":      {PromptPer1K: 0.015, CompletionPer1K: 0.075},
	"claude-sonnet":    {PromptPer1K: 0.003, CompletionPer1K: 0.015},
	"claude-haiku":     {PromptPer1K: 0.0008, CompletionPer1K: 0.004},
	"gpt-4o":           {PromptPer1K: 0.0025, CompletionPer1K: 0.010},
	"gpt-4o-mini":      {PromptPer1K: 0.00015, CompletionPer1K: 0.0006},
	"gpt-4.1":          {PromptPer1K: 0.002, CompletionPer1K: 0.008},
	"o1":               {PromptPer1K: 0.015, CompletionPer1K: 0.060},
	"o3-mini":          {PromptPer1K: 0.0011, CompletionPer1K: 0.0044},
	"gemini-1.5-pro":   {PromptPer1K: 0.00125, CompletionPer1K: 0.005},
	"gemini-1.5-flash": {PromptPer1K: 0.000075, CompletionPer1K: 0.0003},
	"gemini-2.5-pro":   {PromptPer1K: 0.00125, CompletionPer1K: 0.010},
	"gemini-2.5-flash": {PromptPer1K: 0.0003, CompletionPer1K: 0.0025},
}

// lookupPrice matches a model name against priceTable by longest known
// prefix/substring, since model identifiers carry date suffixes
// ("claude-sonnet-4-5-20250929", "gemini-2.5-flash-lite").
func lookupPrice(model string) (modelPrice, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return modelPrice{}, false
	}
	var best string
	var bestPrice modelPrice
	for family, price := range priceTable {
		if strings.Contains(m, family) && len(family) > len(best) {
			best = family
			bestPrice = price
		}
	}
	if best == "" {
		return modelPrice{}, false
	}
	return bestPrice, true
}

// EstimateCost returns the structured cost estimate for a completed run:
// per-model token totals priced against the static table above. Returns nil
// when the model isn't in the table rather than guessing.
func EstimateCost(model string, promptTokens, completionTokens int) *float64 {
	price, ok := lookupPrice(model)
	if !ok {
		return nil
	}
	cost := float64(promptTokens)/1000*price.PromptPer1K + float64(completionTokens)/1000*price.CompletionPer1K
	return &cost
}
