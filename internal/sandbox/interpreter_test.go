package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontorlm/internal/llm"
	"ontorlm/internal/tools"
)

func TestInterpreter_PrintCapturesStdout(t *testing.T) {
	it := New(Config{})
	res := it.Execute(context.Background(), `print("hello")`)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "hello")
	assert.False(t, res.Truncated)
}

func TestInterpreter_SubmitSetsPayload(t *testing.T) {
	it := New(Config{})
	res := it.Execute(context.Background(), `SUBMIT({answer: "A"})`)
	require.NoError(t, res.Err)
	require.NotNil(t, res.SubmitPayload)
	assert.Equal(t, "A", res.SubmitPayload["answer"])
}

func TestInterpreter_SubmitIdempotent(t *testing.T) {
	it := New(Config{})
	res := it.Execute(context.Background(), `SUBMIT({answer: "A"}); SUBMIT({answer: "B"});`)
	require.NoError(t, res.Err)
	require.NotNil(t, res.SubmitPayload)
	assert.Equal(t, "A", res.SubmitPayload["answer"])
}

func TestInterpreter_NamespacePersistsAcrossCalls(t *testing.T) {
	it := New(Config{})
	res1 := it.Execute(context.Background(), `var counter = 41;`)
	require.NoError(t, res1.Err)
	res2 := it.Execute(context.Background(), `counter += 1; print(counter);`)
	require.NoError(t, res2.Err)
	assert.Contains(t, res2.Stdout, "42")
}

func TestInterpreter_RuntimeErrorIsRecoverable(t *testing.T) {
	it := New(Config{})
	res := it.Execute(context.Background(), `this is not valid javascript {{{`)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, ErrRuntime)
	// next call still works on the same namespace
	res2 := it.Execute(context.Background(), `print("still alive")`)
	require.NoError(t, res2.Err)
	assert.Contains(t, res2.Stdout, "still alive")
}

func TestInterpreter_TruncatesStdout(t *testing.T) {
	it := New(Config{TruncateLen: 10})
	res := it.Execute(context.Background(), `print("01234567890123")`)
	assert.True(t, res.Truncated)
	assert.Contains(t, res.Stdout, "truncated")
}

func TestInterpreter_ToolCallsAreInstrumented(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register("echo_tool", echoTool{})
	var events []string
	it := New(Config{Tools: reg, OnToolEvent: func(phase string, ev ToolEvent) {
		events = append(events, phase)
	}})
	res := it.Execute(context.Background(), `var r = echo_tool({x: 1}); print(r.ok);`)
	require.NoError(t, res.Err)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, []string{"start", "end"}, events)
}

type echoTool struct{}

func (echoTool) Describe() tools.Spec { return tools.Spec{Description: "echo"} }
func (echoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{"ok": true}, nil
}

type fakeSubLM struct{}

func (fakeSubLM) Complete(ctx context.Context, prompt string, stop []string) (llm.Completion, error) {
	return llm.Completion{Text: "sub-answer", PromptTokens: 7, OutputTokens: 3}, nil
}

func TestInterpreter_LLMQueryEmitsLMEvent(t *testing.T) {
	var events []LMEvent
	it := New(Config{SubLM: fakeSubLM{}, OnLMEvent: func(ev LMEvent) {
		events = append(events, ev)
	}})
	res := it.Execute(context.Background(), `print(llm_query("what?"))`)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "sub-answer")
	require.Len(t, events, 1)
	assert.Equal(t, 7, events[0].TokensIn)
	assert.Equal(t, 3, events[0].TokensOut)
	assert.NotEmpty(t, events[0].CallID)
}
