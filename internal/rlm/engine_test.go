package rlm

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontorlm/internal/llm"
	"ontorlm/internal/trajectory"
)

// scriptedLM replays a fixed sequence of responses, one per call, and
// errors if exhausted — deterministic stand-in for the root LM collaborator.
type scriptedLM struct {
	responses []string
	calls     int
}

func (s *scriptedLM) Complete(ctx context.Context, prompt string, stop []string) (llm.Completion, error) {
	if s.calls >= len(s.responses) {
		return llm.Completion{}, fmt.Errorf("scriptedLM exhausted after %d calls", s.calls)
	}
	r := s.responses[s.calls]
	s.calls++
	return llm.Completion{Text: r, PromptTokens: 10, OutputTokens: 5}, nil
}

func TestEngine_SubmitsOnFirstIteration(t *testing.T) {
	lm := &scriptedLM{responses: []string{
		"Here is my answer.\n```js\nSUBMIT({answer: \"42\", sparql: \"SELECT * WHERE {}\", evidence: {label: \"x\"}});\n```",
	}}
	var buf bytes.Buffer
	rec := trajectory.New(&buf, "t1")
	e := New(Config{RootLM: lm, Recorder: rec, MaxIterations: 5, MaxLLMCalls: 10})

	out, err := e.Run(context.Background(), "what is the answer?")
	require.NoError(t, err)
	assert.True(t, out.Converged)
	assert.Equal(t, "42", out.Answer)
	assert.Equal(t, 1, out.IterationsUsed)
	assert.Equal(t, "x", out.Evidence["label"])
}

func TestEngine_CostEstimateUsesRootModel(t *testing.T) {
	lm := &scriptedLM{responses: []string{
		"```js\nSUBMIT({answer: \"42\"});\n```",
	}}
	e := New(Config{RootLM: lm, RootModel: "claude-sonnet-4-5", MaxIterations: 5, MaxLLMCalls: 10})

	out, err := e.Run(context.Background(), "q")
	require.NoError(t, err)
	require.NotNil(t, out.CostEstimate)
	assert.Greater(t, *out.CostEstimate, 0.0)
}

func TestEngine_CostEstimateNilForUnknownModel(t *testing.T) {
	lm := &scriptedLM{responses: []string{
		"```js\nSUBMIT({answer: \"42\"});\n```",
	}}
	e := New(Config{RootLM: lm, MaxIterations: 5, MaxLLMCalls: 10})

	out, err := e.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Nil(t, out.CostEstimate)
}

func TestEngine_BudgetExhaustionWithoutSubmit(t *testing.T) {
	lm := &scriptedLM{responses: []string{
		"```js\nprint(\"thinking 1\");\n```",
		"```js\nprint(\"thinking 2\");\n```",
	}}
	var buf bytes.Buffer
	rec := trajectory.New(&buf, "t2")
	e := New(Config{RootLM: lm, Recorder: rec, MaxIterations: 2, MaxLLMCalls: 10})

	out, err := e.Run(context.Background(), "never converges")
	require.NoError(t, err)
	assert.False(t, out.Converged)
	assert.Equal(t, 2, out.IterationsUsed)
	assert.Contains(t, out.Answer, "thinking 2")
}

func TestEngine_LLMCallBudgetStopsLoop(t *testing.T) {
	lm := &scriptedLM{responses: []string{
		"```js\nprint(\"one\");\n```",
		"```js\nprint(\"two\");\n```",
		"```js\nprint(\"three\");\n```",
	}}
	var buf bytes.Buffer
	rec := trajectory.New(&buf, "t3")
	e := New(Config{RootLM: lm, Recorder: rec, MaxIterations: 10, MaxLLMCalls: 2})

	out, err := e.Run(context.Background(), "budget test")
	require.NoError(t, err)
	assert.False(t, out.Converged)
	assert.Equal(t, 2, out.IterationsUsed)
}

func TestEngine_ExecutedCodeErrorIsRecoverable(t *testing.T) {
	lm := &scriptedLM{responses: []string{
		"```js\nthis is not valid {{{ js\n```",
		"```js\nSUBMIT({answer: \"recovered\"});\n```",
	}}
	var buf bytes.Buffer
	rec := trajectory.New(&buf, "t4")
	e := New(Config{RootLM: lm, Recorder: rec, MaxIterations: 5, MaxLLMCalls: 10})

	out, err := e.Run(context.Background(), "retry after error")
	require.NoError(t, err)
	assert.True(t, out.Converged)
	assert.Equal(t, "recovered", out.Answer)
	assert.Equal(t, 2, out.IterationsUsed)
}
