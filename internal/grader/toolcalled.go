package grader

import (
	"context"
	"fmt"

	"ontorlm/internal/rlm"
)

// ToolCalledGrader implements spec.md §4.6: passes iff every required tool
// name appears in the tool-call stream; when task.ToolOrderPrefix is set,
// also requires that prefix to appear as a subsequence in call order
// (SPEC_FULL.md's supplemented "ordering prefix" option).
type ToolCalledGrader struct{}

func (ToolCalledGrader) Name() string { return "tool-called" }

func (ToolCalledGrader) Grade(_ context.Context, tr *Trajectory, _ rlm.FinalOutput, task Task) Result {
	if tr == nil {
		return Result{Passed: false, Reason: "no trajectory available"}
	}
	called := map[string]int{}
	names := tr.ToolNames()
	for _, n := range names {
		called[n]++
	}

	var missing []string
	for _, req := range task.RequiredTools {
		if called[req] == 0 {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return Result{Passed: false, Reason: fmt.Sprintf("missing required tool calls: %v", missing), Detail: names}
	}

	if len(task.ToolOrderPrefix) > 0 && !isSubsequence(task.ToolOrderPrefix, names) {
		return Result{Passed: false, Reason: fmt.Sprintf("tool call order does not contain prefix %v as a subsequence", task.ToolOrderPrefix), Detail: names}
	}

	return Result{Passed: true, Reason: "all required tools called", Detail: names}
}

// isSubsequence reports whether prefix appears, in order, as a (not
// necessarily contiguous) subsequence of actual.
func isSubsequence(prefix, actual []string) bool {
	i := 0
	for _, a := range actual {
		if i >= len(prefix) {
			break
		}
		if a == prefix[i] {
			i++
		}
	}
	return i == len(prefix)
}
