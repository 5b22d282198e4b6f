package grader

import (
	"context"
	"fmt"
	"strings"

	"ontorlm/internal/rlm"
)

// StructuralSPARQLGrader implements spec.md §4.6: checks the final sparql
// string contains every required substring pattern from the task, case-
// insensitive and whitespace-insensitive within each pattern. Advisory,
// not authoritative (spec.md §9: structural graders routinely reject
// semantically correct alternative query paths).
type StructuralSPARQLGrader struct{}

func (StructuralSPARQLGrader) Name() string { return "structural-sparql" }

func (StructuralSPARQLGrader) Grade(_ context.Context, _ *Trajectory, out rlm.FinalOutput, task Task) Result {
	if len(task.SparqlPatterns) == 0 {
		return Result{Passed: true, Reason: "no structural patterns required"}
	}
	haystack := normalizeWhitespace(strings.ToLower(out.Sparql))

	var missing []string
	for _, pattern := range task.SparqlPatterns {
		needle := normalizeWhitespace(strings.ToLower(pattern))
		if !strings.Contains(haystack, needle) {
			missing = append(missing, pattern)
		}
	}
	if len(missing) > 0 {
		return Result{Passed: false, Reason: fmt.Sprintf("sparql missing required patterns: %v", missing)}
	}
	return Result{Passed: true, Reason: "all structural patterns present"}
}

// normalizeWhitespace collapses any run of whitespace to a single space so
// pattern matching is insensitive to formatting differences.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
