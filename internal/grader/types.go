// Package grader implements the C6 grader suite (spec.md §4.6): pure
// functions over (trajectory, final output, task) that each return a
// pass/fail verdict, composed with LLM-judge-as-primary policy — adapted
// from the teacher's internal/playground/eval Runner/Outcome aggregation
// shape (Evaluator interface, weighted aggregate merge) generalized from
// per-sample numeric scoring to the spec's single-trajectory pass/fail
// contract.
package grader

import (
	"context"

	"ontorlm/internal/rlm"
)

// Result is one grader's verdict (spec.md §4.6: "{passed, reason, detail?}").
type Result struct {
	Passed bool
	Reason string
	Detail any
}

// Task carries the subset of a task YAML's grader configuration each
// grader needs (spec.md §6's Task YAML fields, restricted to what C6
// consumes — the harness owns the rest).
type Task struct {
	MaxIterations   int
	RequiredTools   []string
	ToolOrderPrefix []string
	SparqlPatterns  []string
	EvidenceFields  []string
}

// Grader is a pure function over a trajectory + final output + task.
type Grader interface {
	Name() string
	Grade(ctx context.Context, tr *Trajectory, out rlm.FinalOutput, task Task) Result
}
