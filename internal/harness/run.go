package harness

import (
	"context"
	"fmt"

	"ontorlm/internal/grader"
	"ontorlm/internal/rlm"
)

// EngineBuilder constructs a fresh Engine + Recorder for one task trial.
// Wiring the ontology index, sense card, tool registry, and SPARQL
// endpoint is the caller's responsibility (cmd/ontorlm) since those
// depend on process-level configuration the harness itself does not own
// (spec.md §1 lists "SPARQL endpoint implementations" as an external
// collaborator, not part of the engine's contract). close is called once
// the trial's trajectory has been fully written.
type EngineBuilder func(ctx context.Context, task Task, trial int) (engine *rlm.Engine, trajectoryPath string, close func() error, err error)

// GraderBuilder constructs the grader set and Task for a given task config
// (spec.md §4.6's five graders; the LLM judge grader needs a judge LM the
// caller supplies).
type GraderBuilder func(task Task) ([]grader.Grader, grader.Task)

// TrialResult is one (task, trial) run's full outcome.
type TrialResult struct {
	Trial          int
	Output         rlm.FinalOutput
	Report         grader.Report
	TrajectoryPath string
	Err            error
}

// TaskReport aggregates every trial for one task against pass_threshold.
type TaskReport struct {
	TaskID  string
	Trials  []TrialResult
	PassPct float64
	Passed  bool
}

// RunTask drives task.Trials independent engine runs and grades each one,
// composing a pass/fail against task.PassThreshold (spec.md §6's
// `trials`/`pass_threshold` fields).
func RunTask(ctx context.Context, task Task, buildEngine EngineBuilder, buildGraders GraderBuilder) (TaskReport, error) {
	report := TaskReport{TaskID: task.ID}
	graders, gTask := buildGraders(task)

	passes := 0
	for trial := 1; trial <= task.Trials; trial++ {
		tr := TrialResult{Trial: trial}

		engine, trajPath, closeFn, err := buildEngine(ctx, task, trial)
		if err != nil {
			tr.Err = fmt.Errorf("build engine for trial %d: %w", trial, err)
			report.Trials = append(report.Trials, tr)
			continue
		}

		out, runErr := engine.Run(ctx, task.Query)
		if closeFn != nil {
			_ = closeFn()
		}
		tr.Output = out
		tr.TrajectoryPath = trajPath

		if runErr != nil {
			tr.Err = runErr
			report.Trials = append(report.Trials, tr)
			continue
		}

		var trajectory *grader.Trajectory
		if trajPath != "" {
			trajectory, _ = grader.LoadTrajectory(trajPath)
		}
		tr.Report = grader.RunAll(ctx, graders, trajectory, out, gTask)
		if tr.Report.Passed {
			passes++
		}
		report.Trials = append(report.Trials, tr)
	}

	if task.Trials > 0 {
		report.PassPct = float64(passes) / float64(task.Trials)
	}
	report.Passed = report.PassPct >= task.PassThreshold
	return report, nil
}
