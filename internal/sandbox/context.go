// Package sandbox hosts the goja-backed namespace interpreter (spec.md §4.4)
// and the run-scoped context values the RLM engine threads through it.
package sandbox

import (
	"context"
	"sync"
)

type runIDCtxKey struct{}
type budgetCtxKey struct{}

// WithRunID attaches the active run_id to ctx so tool implementations and
// the trajectory recorder can tag records without threading it explicitly.
func WithRunID(ctx context.Context, runID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runIDCtxKey{}, runID)
}

// RunIDFromContext returns the run_id previously set with WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(runIDCtxKey{}).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// BudgetCounters tracks the two budgets spec.md §4.5 enforces: iterations
// and total LM calls (sub-LM calls, including batched ones, count against
// the same LM-call budget as the root LM). MaxLLMCalls is read by the
// sandbox's llm_query wrapper so it can refuse once the ceiling is hit,
// without the sandbox needing to know the engine's configuration.
type BudgetCounters struct {
	mu         sync.Mutex
	Iterations int
	LLMCalls   int
	MaxLLMCalls int
}

// TryReserveLLMCall atomically increments LLMCalls and reports whether the
// call is within budget (false means the ceiling was already reached and
// the counter was NOT incremented).
func (b *BudgetCounters) TryReserveLLMCall() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.MaxLLMCalls > 0 && b.LLMCalls >= b.MaxLLMCalls {
		return false
	}
	b.LLMCalls++
	return true
}

// LLMCallCount returns the current count under lock.
func (b *BudgetCounters) LLMCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.LLMCalls
}

// WithBudgetCounters attaches a shared *BudgetCounters to ctx so tools
// invoked deep inside the sandbox (llm_query, llm_query_batched) can
// increment the LM-call count the engine checks between iterations.
func WithBudgetCounters(ctx context.Context, b *BudgetCounters) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, budgetCtxKey{}, b)
}

// BudgetCountersFromContext returns the *BudgetCounters previously set with
// WithBudgetCounters, or nil if none is present.
func BudgetCountersFromContext(ctx context.Context) *BudgetCounters {
	if ctx == nil {
		return nil
	}
	b, _ := ctx.Value(budgetCtxKey{}).(*BudgetCounters)
	return b
}
