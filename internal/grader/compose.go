package grader

import (
	"context"
	"fmt"

	"ontorlm/internal/rlm"
)

// Report is the full grader output for one run: each grader's individual
// result plus the composed pass/fail (spec.md §4.6/§7).
type Report struct {
	Results  map[string]Result
	Errored  map[string]string
	Passed   bool
	Reason   string
	HasJudge bool
}

// RunAll executes every grader against (trajectory, out, task) and composes
// the overall verdict: LLM-judge passes is authoritative when a judge
// grader is present (Name() == "llm-judge"); otherwise the composition
// falls back to logical AND over every non-judge grader (spec.md §4.6's
// composition policy, §7's "errored" handling for individual grader
// failures).
func RunAll(ctx context.Context, graders []Grader, tr *Trajectory, out rlm.FinalOutput, task Task) Report {
	report := Report{Results: map[string]Result{}, Errored: map[string]string{}}

	var judgeResult *Result
	allNonJudgePass := true

	for _, g := range graders {
		name := g.Name()
		result, errored := safeGrade(ctx, g, tr, out, task)
		report.Results[name] = result
		if errored {
			report.Errored[name] = result.Reason
		}
		if name == "llm-judge" {
			report.HasJudge = true
			r := result
			judgeResult = &r
			continue
		}
		if !result.Passed {
			allNonJudgePass = false
		}
	}

	switch {
	case report.HasJudge:
		report.Passed = judgeResult.Passed
		report.Reason = judgeResult.Reason
	default:
		report.Passed = allNonJudgePass
		if allNonJudgePass {
			report.Reason = "all non-judge graders passed"
		} else {
			report.Reason = "one or more non-judge graders failed"
		}
	}
	return report
}

// safeGrade recovers from a panicking grader so one misbehaving grader
// cannot take down the whole report; recorded as errored (spec.md §7:
// "Grader errors — do not affect the run... recorded on the grader report
// as errored; the composed policy treats errored as not passed for the
// erroring grader only").
func safeGrade(ctx context.Context, g Grader, tr *Trajectory, out rlm.FinalOutput, task Task) (result Result, errored bool) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Passed: false, Reason: fmt.Sprintf("grader panicked: %v", r)}
			errored = true
		}
	}()
	return g.Grade(ctx, tr, out, task), false
}
