package grader

import (
	"context"
	"fmt"

	"ontorlm/internal/rlm"
)

// ConvergenceGrader implements spec.md §4.6: passes iff converged is true
// and iterations_used <= task.max_iterations (inclusive — the spec is
// explicit that off-by-one strictness is "≤, not <").
type ConvergenceGrader struct{}

func (ConvergenceGrader) Name() string { return "convergence" }

func (ConvergenceGrader) Grade(_ context.Context, _ *Trajectory, out rlm.FinalOutput, task Task) Result {
	if !out.Converged {
		return Result{Passed: false, Reason: "run did not converge (no SUBMIT observed)"}
	}
	if task.MaxIterations > 0 && out.IterationsUsed > task.MaxIterations {
		return Result{
			Passed: false,
			Reason: fmt.Sprintf("iterations_used=%d exceeds max_iterations=%d", out.IterationsUsed, task.MaxIterations),
		}
	}
	return Result{Passed: true, Reason: "converged within budget"}
}
