package rlm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ontorlm/internal/llm"
	"ontorlm/internal/ontology"
	"ontorlm/internal/sandbox"
	"ontorlm/internal/tools"
	"ontorlm/internal/trajectory"
)

const systemInstructions = `You explore an RDF ontology by writing short JavaScript snippets executed
in a persistent sandbox. Variables you declare persist to the next turn.
Two bounded tools are available as plain function calls: search_entity(query, limit, search_in)
and sparql_select(query). A sub-model helper llm_query(prompt) and its batched
variant llm_query_batched([prompts]) may be available. Call print(...) to leave
observations for yourself in the next turn. When you have the final answer, call
SUBMIT({answer, sparql, evidence}) exactly once; anything after the first SUBMIT
in the same turn is ignored. Respond with your reasoning followed by exactly one
fenced code block containing the JavaScript to run this turn.`

// ExternalContextFunc fetches an optional extra context string (procedural
// memory, curriculum exemplars) — spec.md §1/§9: "opaque string-producing
// hook", no further contract than that.
type ExternalContextFunc func(ctx context.Context, query string) string

// Config configures one Engine instance, reused across many Run calls
// against the same ontology (the index is read-only and shareable —
// spec.md §5's shared-resource policy).
type Config struct {
	Index           *ontology.Index
	SenseCard       string
	Tools           *tools.Registry
	RootLM          llm.LM
	RootModel       string // model name priced into FinalOutput.CostEstimate (C, SPEC_FULL.md §C)
	SubLM           llm.LM // nil disables llm_query/llm_query_batched
	ExternalContext ExternalContextFunc
	Recorder        *trajectory.Recorder
	Tracer          Tracer

	MaxIterations     int
	MaxLLMCalls       int
	StdoutTruncateLen int
	BatchedWorkers    int

	// LMRetries bounds the exponential-backoff retry loop on root-LM
	// provider errors before the run surfaces DONE_FATAL (spec.md §4.5's
	// "small retry bound").
	LMRetries int
}

// Engine orchestrates one query end-to-end (C5, spec.md §4.5).
type Engine struct {
	cfg Config
}

// New constructs an Engine, applying spec.md defaults for any zero-valued
// budget/sandbox field.
func New(cfg Config) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 12
	}
	if cfg.MaxLLMCalls <= 0 {
		cfg.MaxLLMCalls = 20
	}
	if cfg.StdoutTruncateLen <= 0 {
		cfg.StdoutTruncateLen = 10000
	}
	if cfg.BatchedWorkers <= 0 {
		cfg.BatchedWorkers = 8
	}
	if cfg.LMRetries <= 0 {
		cfg.LMRetries = 3
	}
	if cfg.Tracer == nil {
		cfg.Tracer = NullTracer{}
	}
	return &Engine{cfg: cfg}
}

// ErrFatal wraps the unrecoverable engine-level error that puts a run into
// DONE_FATAL (spec.md §4.5/§7): the root LM failing on every retry attempt,
// or the context ending during the retry backoff.
type ErrFatal struct{ Err error }

func (e *ErrFatal) Error() string { return fmt.Sprintf("rlm: fatal: %v", e.Err) }
func (e *ErrFatal) Unwrap() error { return e.Err }

// Run drives one query through the full iteration loop and returns the
// FinalOutput (spec.md §3/§4.5). A non-nil error is only ever *ErrFatal —
// any other failure mode (budget exhaustion, executed-code error) is
// folded into FinalOutput.Converged=false, never returned as a Go error.
func (e *Engine) Run(ctx context.Context, query string) (FinalOutput, error) {
	runID := uuid.NewString()
	ctx = sandbox.WithRunID(ctx, runID)
	budget := &sandbox.BudgetCounters{MaxLLMCalls: e.cfg.MaxLLMCalls}
	ctx = sandbox.WithBudgetCounters(ctx, budget)

	if e.cfg.Recorder != nil {
		ontoSrc := ""
		if e.cfg.Index != nil {
			ontoSrc = e.cfg.Index.Source
		}
		e.cfg.Recorder.RunStart(query, ontoSrc, e.cfg.MaxIterations, e.cfg.MaxLLMCalls)
	}

	currentIteration := 0
	interp := sandbox.New(sandbox.Config{
		Tools:          e.cfg.Tools,
		SubLM:          e.cfg.SubLM,
		TruncateLen:    e.cfg.StdoutTruncateLen,
		BatchedWorkers: e.cfg.BatchedWorkers,
		OnToolEvent:    e.recordToolEvent(&currentIteration),
		OnLMEvent:      e.recordLMEvent(&currentIteration),
	})

	baseContext := e.assembleContext(ctx, query)

	var history strings.Builder
	history.WriteString(baseContext)

	st := stateInit
	var (
		records        []iterationRecord
		tokensIn       int
		tokensOut      int
		totalLLMCalls  int
		lastStdout     string
		terminalReason string
	)

	st = stateAwaitLM
	i := 1
	for ; i <= e.cfg.MaxIterations; i++ {
		if ctx.Err() != nil {
			st = stateDoneBudget
			terminalReason = "cancelled"
			break
		}

		if !budget.TryReserveLLMCall() {
			st = stateDoneBudget
			terminalReason = "max_llm_calls exhausted"
			break
		}
		totalLLMCalls++

		if e.cfg.Recorder != nil {
			e.cfg.Recorder.IterationStart(i)
		}

		prompt := history.String()
		iterCtx, endIter := e.cfg.Tracer.StartIteration(ctx, runID, i)
		response, respTokensIn, respTokensOut, err := e.callRootLM(iterCtx, runID, i, prompt)
		endIter()
		if err != nil {
			st = stateDoneFatal
			terminalReason = err.Error()
			break
		}
		tokensIn += respTokensIn
		tokensOut += respTokensOut

		st = stateExecuting
		code, reasoning := extractCode(response)

		currentIteration = i
		execRes := interp.Execute(ctx, code)

		st = stateObserved
		obsStdout := execRes.Stdout
		if execRes.Err != nil {
			obsStdout = fmt.Sprintf("%s\n[error] %v", obsStdout, execRes.Err)
		}
		if strings.TrimSpace(execRes.Stdout) != "" {
			lastStdout = execRes.Stdout
		}

		rec := iterationRecord{
			index:         i,
			reasoningText: reasoning,
			code:          code,
			stdout:        obsStdout,
			truncated:     execRes.Truncated,
			submitPayload: execRes.SubmitPayload,
			lmCallID:      fmt.Sprintf("%s-lm-%d", runID, i),
			toolCalls:     execRes.ToolCalls,
			tokensIn:      respTokensIn,
			tokensOut:     respTokensOut,
		}
		records = append(records, rec)

		history.WriteString(fmt.Sprintf("\n\n--- iteration %d ---\ncode:\n%s\nobservation:\n%s\n", i, code, obsStdout))

		if e.cfg.Recorder != nil {
			e.cfg.Recorder.IterationEnd(i, execRes.SubmitPayload != nil)
		}

		if execRes.SubmitPayload != nil {
			st = stateDoneSubmit
			terminalReason = "submitted"
			break
		}
		st = stateAwaitLM
	}

	out := e.buildFinalOutput(records, st, len(records), tokensIn, tokensOut, lastStdout)
	out.CostEstimate = llm.EstimateCost(e.cfg.RootModel, tokensIn, tokensOut)

	if e.cfg.Recorder != nil {
		e.cfg.Recorder.RunEnd(out.Converged, out.IterationsUsed, totalLLMCalls, tokensIn, tokensOut, terminalReason)
	}

	if st == stateDoneFatal {
		return out, &ErrFatal{Err: fmt.Errorf("%s", terminalReason)}
	}
	return out, nil
}

func (e *Engine) buildFinalOutput(records []iterationRecord, st state, iterationsRun, tokensIn, tokensOut int, lastStdout string) FinalOutput {
	out := FinalOutput{
		Evidence:    map[string]any{},
		TotalTokens: TokenUsage{In: tokensIn, Out: tokensOut},
	}
	if iterationsRun > e.cfg.MaxIterations {
		iterationsRun = e.cfg.MaxIterations
	}
	out.IterationsUsed = iterationsRun

	if len(records) > 0 {
		last := records[len(records)-1]
		if last.submitPayload != nil {
			out.Converged = true
			if a, ok := last.submitPayload["answer"].(string); ok {
				out.Answer = a
			}
			if s, ok := last.submitPayload["sparql"].(string); ok {
				out.Sparql = s
			}
			if ev, ok := last.submitPayload["evidence"].(map[string]interface{}); ok {
				out.Evidence = ev
			}
			return out
		}
	}

	out.Converged = false
	if strings.TrimSpace(lastStdout) != "" {
		out.Answer = lastStdout
	}
	return out
}

// callRootLM wraps the root LM call with the tracer span and the small
// exponential-backoff retry bound spec.md §4.5/§7 requires before DONE_FATAL.
func (e *Engine) callRootLM(ctx context.Context, runID string, iteration int, prompt string) (string, int, int, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.LMRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return "", 0, 0, ctx.Err()
			}
		}
		started := time.Now()
		lmCtx, endSpan := e.cfg.Tracer.StartLMCall(ctx, runID, e.cfg.RootModel)
		completion, err := e.cfg.RootLM.Complete(lmCtx, prompt, nil)
		endSpan(err)
		ended := time.Now()
		if err == nil {
			if e.cfg.Recorder != nil {
				e.cfg.Recorder.LMCall(fmt.Sprintf("%s-lm-%d", runID, iteration), iteration, started, ended,
					len(prompt), len(completion.Text), completion.PromptTokens, completion.OutputTokens, e.cfg.RootModel, false)
			}
			return completion.Text, completion.PromptTokens, completion.OutputTokens, nil
		}
		lastErr = err
	}
	return "", 0, 0, fmt.Errorf("root LM provider error after %d attempts: %w", e.cfg.LMRetries, lastErr)
}

func backoffDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// assembleContext builds the static (non-iteration-varying) system/sense
// card/ontology-summary/external-context/query block (spec.md §4.5 step 1).
func (e *Engine) assembleContext(ctx context.Context, query string) string {
	var b strings.Builder
	b.WriteString(systemInstructions)
	b.WriteString("\n\n")
	if e.cfg.SenseCard != "" {
		b.WriteString(e.cfg.SenseCard)
		b.WriteString("\n\n")
	}
	if e.cfg.Index != nil {
		b.WriteString("## Ontology summary\n\n")
		b.WriteString(e.cfg.Index.Summary())
		b.WriteString("\n\n")
	}
	if e.cfg.ExternalContext != nil {
		if extra := e.cfg.ExternalContext(ctx, query); extra != "" {
			b.WriteString("## Additional context\n\n")
			b.WriteString(extra)
			b.WriteString("\n\n")
		}
	}
	b.WriteString("## Query\n\n")
	b.WriteString(query)
	return b.String()
}

// recordToolEvent returns an OnToolEvent callback that tags every emitted
// record with whatever *iteration currently holds — safe because C5's
// loop is strictly sequential (spec.md §5: no parallelism across
// iterations), so the interpreter never invokes tools from two iterations
// concurrently.
func (e *Engine) recordToolEvent(iteration *int) func(phase string, ev sandbox.ToolEvent) {
	return func(phase string, ev sandbox.ToolEvent) {
		if e.cfg.Recorder == nil {
			return
		}
		switch phase {
		case "start":
			e.cfg.Recorder.ToolStart(ev.CallID, ev.ToolName, *iteration, ev.Inputs, ev.StartedAt)
		case "end":
			e.cfg.Recorder.ToolEnd(ev.CallID, ev.ToolName, *iteration, ev.Output, ev.ErrorKind, ev.EndedAt)
		}
	}
}

// recordLMEvent returns an OnLMEvent callback for llm_query/llm_query_batched
// sub-LM dispatches (sandbox.dispatchSubLM), tagged subLM=true so the
// trajectory distinguishes them from the root-LM calls recorded in
// callRootLM.
func (e *Engine) recordLMEvent(iteration *int) func(ev sandbox.LMEvent) {
	return func(ev sandbox.LMEvent) {
		if e.cfg.Recorder == nil {
			return
		}
		e.cfg.Recorder.LMCall(ev.CallID, *iteration, ev.StartedAt, ev.EndedAt,
			len(ev.Prompt), len(ev.Completion), ev.TokensIn, ev.TokensOut, "", true)
	}
}
