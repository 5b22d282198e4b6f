package grader

import (
	"context"
	"fmt"

	"ontorlm/internal/rlm"
)

// OutcomeVerificationGrader implements spec.md §4.6: checks that evidence
// contains every required field name from the task. Structurally strict —
// field names must match exactly — which the spec documents as advisory
// in production since semantic equivalents (protein_uri vs protein)
// routinely fail this check while being correct.
type OutcomeVerificationGrader struct{}

func (OutcomeVerificationGrader) Name() string { return "outcome-verification" }

func (OutcomeVerificationGrader) Grade(_ context.Context, _ *Trajectory, out rlm.FinalOutput, task Task) Result {
	if len(task.EvidenceFields) == 0 {
		return Result{Passed: true, Reason: "no evidence fields required"}
	}
	var missing []string
	for _, field := range task.EvidenceFields {
		if _, ok := out.Evidence[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return Result{Passed: false, Reason: fmt.Sprintf("evidence missing required fields: %v", missing)}
	}
	return Result{Passed: true, Reason: "all required evidence fields present"}
}
