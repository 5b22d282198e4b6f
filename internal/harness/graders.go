package harness

import (
	"ontorlm/internal/grader"
	"ontorlm/internal/llm"
)

// BuildGraders translates a Task's graders[] config into the concrete
// grader.Grader set plus the merged grader.Task parameters, instantiating
// only the grader types the task actually lists (spec.md §6: "graders[]
// (each with type and type-specific config)"). judgeLM may be nil, in
// which case no llm-judge grader is added and RunAll falls back to the
// logical-AND composition (spec.md §4.6).
func BuildGraders(task Task, judgeLM llm.LM) ([]grader.Grader, grader.Task) {
	gTask := grader.Task{MaxIterations: task.MaxIterations}

	var graders []grader.Grader
	for _, cfg := range task.Graders {
		switch cfg.Type {
		case "convergence":
			graders = append(graders, grader.ConvergenceGrader{})
		case "tool-called":
			graders = append(graders, grader.ToolCalledGrader{})
			gTask.RequiredTools = append(gTask.RequiredTools, cfg.RequiredTools...)
			gTask.ToolOrderPrefix = append(gTask.ToolOrderPrefix, cfg.ToolOrderPrefix...)
		case "structural-sparql":
			graders = append(graders, grader.StructuralSPARQLGrader{})
			gTask.SparqlPatterns = append(gTask.SparqlPatterns, cfg.SparqlPatterns...)
		case "outcome-verification":
			graders = append(graders, grader.OutcomeVerificationGrader{})
			gTask.EvidenceFields = append(gTask.EvidenceFields, cfg.EvidenceFields...)
		case "llm-judge":
			if judgeLM != nil {
				graders = append(graders, grader.JudgeGrader{JudgeLM: judgeLM, Query: task.Query})
			}
		}
	}
	return graders, gTask
}
