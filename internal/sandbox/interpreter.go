// Package sandbox implements the Sandboxed Namespace Interpreter (C4,
// spec.md §4.4): one persistent scripting namespace per query, instrumented
// tool calls, stdout capture/truncation, and SUBMIT-sentinel detection.
//
// The bounded REPL language is ECMAScript via github.com/dop251/goja
// rather than literal Python — documented in SPEC_FULL.md §B and
// DESIGN.md as a deliberate, grounded substitution (the nearest topical
// reference in the retrieval pack uses the same substitution for the same
// role: Go has no embeddable CPython, and goja is the idiomatic Go answer
// to "sandboxed, persistent, scriptable namespace"). The LLM-facing
// contract — tool names, SUBMIT, fenced code blocks — is unchanged; only
// the concrete language differs. SUBMIT takes a single object argument
// (`SUBMIT({answer: ..., sparql: ..., evidence: {...}})`) in place of
// Python keyword arguments, since ECMAScript has no kwargs.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"ontorlm/internal/llm"
	"ontorlm/internal/tools"
)

// ToolEvent is one correlated tool-call record (spec.md §3's Tool Event).
type ToolEvent struct {
	CallID    string
	ToolName  string
	StartedAt time.Time
	EndedAt   time.Time
	Inputs    map[string]any
	Output    any
	ErrorKind string
}

// LMEvent is one correlated sub-LM call record, emitted by llm_query /
// llm_query_batched so the engine can feed it to the trajectory recorder
// as a subLM=true LMCall (spec.md §3's Tool Event applies equally to
// llm_query, which is itself a bounded tool).
type LMEvent struct {
	CallID     string
	StartedAt  time.Time
	EndedAt    time.Time
	Prompt     string
	Completion string
	TokensIn   int
	TokensOut  int
	Err        error
}

// ExecResult is what execute() returns per spec.md §4.4.
type ExecResult struct {
	Stdout        string
	Truncated     bool
	OverflowChars int
	SubmitPayload map[string]any
	Err           error
	ToolCalls     []ToolEvent
}

// ErrRuntime wraps any JS runtime/exception error surfaced from executed
// code; it is always recoverable (spec.md §4.4/§7) and never escapes
// Execute as a Go error that stops the run — it is carried on
// ExecResult.Err for the engine to fold into the next observation.
var ErrRuntime = errors.New("sandbox runtime error")

// Config configures an Interpreter at construction time.
type Config struct {
	Tools          *tools.Registry
	SubLM          llm.LM // nil disables llm_query / llm_query_batched
	TruncateLen    int    // default 10000
	BatchedWorkers int    // default 8
	OnToolEvent    func(phase string, ev ToolEvent)
	OnLMEvent      func(ev LMEvent)
}

// Interpreter owns one persistent goja.Runtime for the lifetime of a
// single query (spec.md §3: "the exact same mapping object persists for
// the duration of one query").
type Interpreter struct {
	vm          *goja.Runtime
	tools       *tools.Registry
	subLM       llm.LM
	truncateLen int
	workers     int
	onToolEvent func(phase string, ev ToolEvent)
	onLMEvent   func(ev LMEvent)

	mu          sync.Mutex
	currentCtx  context.Context
	stdout      strings.Builder
	submitted   bool
	submitValue map[string]any
	toolCalls   []ToolEvent
}

// New constructs an Interpreter and installs the namespace (tool handles,
// SUBMIT, llm_query[_batched], print) — spec.md §4.4's prepare().
func New(cfg Config) *Interpreter {
	truncate := cfg.TruncateLen
	if truncate <= 0 {
		truncate = 10000
	}
	workers := cfg.BatchedWorkers
	if workers <= 0 {
		workers = 8
	}

	it := &Interpreter{
		vm:          goja.New(),
		tools:       cfg.Tools,
		subLM:       cfg.SubLM,
		truncateLen: truncate,
		workers:     workers,
		onToolEvent: cfg.OnToolEvent,
		onLMEvent:   cfg.OnLMEvent,
	}
	it.install()
	return it
}

func (it *Interpreter) install() {
	vm := it.vm

	_ = vm.Set("print", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		it.mu.Lock()
		it.stdout.WriteString(strings.Join(parts, " "))
		it.stdout.WriteString("\n")
		it.mu.Unlock()
		return goja.Undefined()
	})

	_ = vm.Set("SUBMIT", func(call goja.FunctionCall) goja.Value {
		it.mu.Lock()
		defer it.mu.Unlock()
		if it.submitted {
			// First SUBMIT wins (spec.md §4.4/§8 idempotence); later calls
			// are observable (they ran) but never change the payload.
			return goja.Undefined()
		}
		payload := map[string]any{}
		if len(call.Arguments) > 0 {
			if obj, ok := call.Argument(0).Export().(map[string]interface{}); ok {
				for k, v := range obj {
					payload[k] = v
				}
			}
		}
		it.submitted = true
		it.submitValue = payload
		return goja.Undefined()
	})

	if it.tools != nil {
		for _, name := range it.tools.Names() {
			toolName := name
			_ = vm.Set(toolName, it.instrumentedTool(toolName))
		}
	}

	if it.subLM != nil {
		_ = vm.Set("llm_query", it.llmQuery)
		_ = vm.Set("llm_query_batched", it.llmQueryBatched)
	}
}

// instrumentedTool wraps a registered tool so every invocation emits
// tool_start/tool_end (spec.md §4.2's "observable side effects" /
// §4.4's instrument_tools()).
func (it *Interpreter) instrumentedTool(name string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := map[string]any{}
		if len(call.Arguments) > 0 {
			if obj, ok := call.Argument(0).Export().(map[string]interface{}); ok {
				args = obj
			}
		}

		ev := ToolEvent{CallID: uuid.NewString(), ToolName: name, StartedAt: time.Now(), Inputs: args}
		it.emitToolEvent("start", ev)

		ctx := it.currentCtx
		if ctx == nil {
			ctx = context.Background()
		}
		result, err := it.tools.Execute(ctx, name, args)
		ev.EndedAt = time.Now()
		if err != nil {
			ev.ErrorKind = classifyToolError(err)
			ev.Output = ev.ErrorKind
		} else {
			ev.Output = result
		}
		it.mu.Lock()
		it.toolCalls = append(it.toolCalls, ev)
		it.mu.Unlock()
		it.emitToolEvent("end", ev)

		if err != nil {
			// Captured as an in-band observation, never a thrown exception
			// that would escape the run (spec.md §4.2/§7).
			return it.vm.ToValue(map[string]any{"error": err.Error(), "error_kind": ev.ErrorKind})
		}
		return it.vm.ToValue(result)
	}
}

func classifyToolError(err error) string {
	switch {
	case errors.Is(err, tools.ErrUnsupportedQueryKind):
		return "UnsupportedQueryKind"
	case errors.Is(err, tools.ErrLimitExceeded):
		return "LimitExceeded"
	case errors.Is(err, tools.ErrSparqlExecution):
		return "SparqlExecutionError"
	default:
		return "ToolError"
	}
}

func (it *Interpreter) emitToolEvent(phase string, ev ToolEvent) {
	if it.onToolEvent != nil {
		it.onToolEvent(phase, ev)
	}
}

// llmQuery is the thin sub-LM wrapper: increments the shared budget
// counter before dispatch and refuses once the ceiling is hit (spec.md
// §4.5's budget-enforcement rule).
func (it *Interpreter) llmQuery(call goja.FunctionCall) goja.Value {
	prompt := call.Argument(0).String()
	ctx := it.currentCtx
	if ctx == nil {
		ctx = context.Background()
	}
	text, err := it.dispatchSubLM(ctx, prompt)
	if err != nil {
		return it.vm.ToValue(map[string]any{"error": err.Error()})
	}
	return it.vm.ToValue(text)
}

// llmQueryBatched is the one permitted concurrency primitive (spec.md §5):
// bounded worker pool, default 8, results returned in input order, no
// shared-state side effects beyond what the caller does with the result.
func (it *Interpreter) llmQueryBatched(call goja.FunctionCall) goja.Value {
	var prompts []string
	if arr, ok := call.Argument(0).Export().([]interface{}); ok {
		for _, p := range arr {
			if s, ok := p.(string); ok {
				prompts = append(prompts, s)
			}
		}
	}
	ctx := it.currentCtx
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]any, len(prompts))
	sem := make(chan struct{}, it.workers)
	var wg sync.WaitGroup
	for i, p := range prompts {
		i, p := i, p
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			text, err := it.dispatchSubLM(ctx, p)
			if err != nil {
				results[i] = map[string]any{"error": err.Error()}
				return
			}
			results[i] = text
		}()
	}
	wg.Wait()
	return it.vm.ToValue(results)
}

func (it *Interpreter) dispatchSubLM(ctx context.Context, prompt string) (string, error) {
	if it.subLM == nil {
		return "", fmt.Errorf("no sub-LM configured")
	}
	if b := BudgetCountersFromContext(ctx); b != nil {
		if !b.TryReserveLLMCall() {
			return "", fmt.Errorf("llm call budget exceeded")
		}
	}

	ev := LMEvent{CallID: uuid.NewString(), StartedAt: time.Now(), Prompt: prompt}
	completion, err := it.subLM.Complete(ctx, prompt, nil)
	ev.EndedAt = time.Now()
	if err != nil {
		ev.Err = err
		it.emitLMEvent(ev)
		return "", err
	}
	ev.Completion = completion.Text
	ev.TokensIn = completion.PromptTokens
	ev.TokensOut = completion.OutputTokens
	it.emitLMEvent(ev)
	return completion.Text, nil
}

func (it *Interpreter) emitLMEvent(ev LMEvent) {
	if it.onLMEvent != nil {
		it.onLMEvent(ev)
	}
}

// Execute runs one code block against the persistent namespace (spec.md
// §4.4's execute()). The namespace (variable bindings, SUBMIT flag once
// set) persists to the next call on the same Interpreter.
func (it *Interpreter) Execute(ctx context.Context, code string) ExecResult {
	it.mu.Lock()
	it.currentCtx = ctx
	it.stdout.Reset()
	it.toolCalls = nil
	wasSubmitted := it.submitted
	it.mu.Unlock()

	_, runErr := it.vm.RunString(code)

	it.mu.Lock()
	defer it.mu.Unlock()

	raw := it.stdout.String()
	stdout, truncated, overflow := truncateStdout(raw, it.truncateLen)

	res := ExecResult{
		Stdout:        stdout,
		Truncated:     truncated,
		OverflowChars: overflow,
		ToolCalls:     append([]ToolEvent{}, it.toolCalls...),
	}

	if !wasSubmitted && it.submitted {
		res.SubmitPayload = it.submitValue
	}

	if runErr != nil {
		res.Err = fmt.Errorf("%w: %v", ErrRuntime, runErr)
	}

	return res
}

// truncateStdout implements spec.md §4.4's output-capture contract: exactly
// at the threshold is not truncated; one character over is truncated and
// flagged with the documented suffix.
func truncateStdout(s string, limit int) (string, bool, int) {
	if len(s) <= limit {
		return s, false, 0
	}
	overflow := len(s) - limit
	return s[:limit] + fmt.Sprintf("\n...[truncated %d chars]", overflow), true, overflow
}
