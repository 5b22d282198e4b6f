// Package trajectory implements the C6 append-only NDJSON recorder
// (spec.md §3/§4.6): one record per LM call, tool call, and iteration
// boundary, totally ordered by emission time, plus optional durability
// mirrors (Postgres, Kafka) that receive the same records, best-effort.
package trajectory

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Record is one NDJSON line. Kind discriminates the seven record types
// spec.md §3 names: run_start, iteration_start, lm_call, tool_start,
// tool_end, iteration_end, run_end.
type Record struct {
	Kind      string         `json:"kind"`
	RunID     string         `json:"run_id,omitempty"`
	Timestamp time.Time      `json:"ts"`
	CallID    string         `json:"call_id,omitempty"`
	Iteration int            `json:"iteration,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Sink receives a best-effort tee of every record (Postgres mirror,
// Kafka topic), called synchronously in emission order; the Kafka sink's
// writer then sends asynchronously, while the Postgres sink waits for each
// insert. A Sink failing never fails the run — the NDJSON file
// remains the single authoritative trajectory (spec.md §5's ordering
// guarantee applies only to it).
type Sink interface {
	Write(rec Record)
	Close() error
}

// Recorder serializes Records to w and fans them out to any configured
// sinks. now is overridable in tests to keep records comparable.
type Recorder struct {
	mu    sync.Mutex
	w     io.Writer
	runID string
	sinks []Sink
	now   func() time.Time
}

// New constructs a Recorder writing NDJSON to w under runID, teeing every
// record to sinks (may be empty).
func New(w io.Writer, runID string, sinks ...Sink) *Recorder {
	return &Recorder{w: w, runID: runID, sinks: sinks, now: time.Now}
}

func (r *Recorder) emit(kind, callID string, iteration int, data map[string]any) {
	rec := Record{Kind: kind, RunID: r.runID, Timestamp: r.now().UTC(), CallID: callID, Iteration: iteration, Data: data}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_, _ = r.w.Write(b)
	for _, s := range r.sinks {
		s.Write(rec)
	}
}

// RunStart emits the run_start record.
func (r *Recorder) RunStart(query, ontologySource string, maxIterations, maxLLMCalls int) {
	r.emit("run_start", "", 0, map[string]any{
		"query":           query,
		"ontology_source": ontologySource,
		"max_iterations":  maxIterations,
		"max_llm_calls":   maxLLMCalls,
	})
}

// IterationStart emits the iteration_start record for 1-based index i.
func (r *Recorder) IterationStart(i int) {
	r.emit("iteration_start", "", i, nil)
}

// LMCall emits one lm_call record with the timing and token fields
// spec.md §4.6 names.
func (r *Recorder) LMCall(callID string, iteration int, startedAt, endedAt time.Time, promptLen, completionLen, tokensIn, tokensOut int, model string, subLM bool) {
	r.emit("lm_call", callID, iteration, map[string]any{
		"started_at":      startedAt.UTC(),
		"ended_at":        endedAt.UTC(),
		"prompt_len":      promptLen,
		"completion_len":  completionLen,
		"tokens_in":       tokensIn,
		"tokens_out":      tokensOut,
		"model_name":      model,
		"sub_lm":          subLM,
	})
}

// ToolStart emits a tool_start record.
func (r *Recorder) ToolStart(callID, toolName string, iteration int, inputs map[string]any, startedAt time.Time) {
	r.emit("tool_start", callID, iteration, map[string]any{
		"tool_name":  toolName,
		"started_at": startedAt.UTC(),
		"inputs":     inputs,
	})
}

// ToolEnd emits a tool_end record correlated to a prior tool_start by
// call_id.
func (r *Recorder) ToolEnd(callID, toolName string, iteration int, output any, errorKind string, endedAt time.Time) {
	r.emit("tool_end", callID, iteration, map[string]any{
		"tool_name":  toolName,
		"ended_at":   endedAt.UTC(),
		"output":     output,
		"error_kind": errorKind,
	})
}

// IterationEnd emits the iteration_end record.
func (r *Recorder) IterationEnd(i int, submitted bool) {
	r.emit("iteration_end", "", i, map[string]any{"submitted": submitted})
}

// RunEnd emits the terminal run_end record with aggregate totals.
func (r *Recorder) RunEnd(converged bool, iterationsUsed, totalLLMCalls, tokensIn, tokensOut int, terminalState string) {
	r.emit("run_end", "", iterationsUsed, map[string]any{
		"converged":        converged,
		"iterations_used":  iterationsUsed,
		"total_llm_calls":  totalLLMCalls,
		"total_tokens_in":  tokensIn,
		"total_tokens_out": tokensOut,
		"terminal_state":   terminalState,
	})
	for _, s := range r.sinks {
		_ = s.Close()
	}
}
