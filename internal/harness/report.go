package harness

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteReportJSON serializes every TaskReport as one JSON document,
// the `report <results-dir>` command's persisted artifact (spec.md §6).
func WriteReportJSON(w io.Writer, reports []TaskReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

// PrintSummary writes a human-readable summary: one PASS/FAIL line per task,
// each followed by one line per trial. It prints no overall line; the
// returned allPassed drives the CLI's exit code (spec.md §6:
// "Exit code 0 iff all tasks pass the composed policy").
func PrintSummary(w io.Writer, reports []TaskReport) (allPassed bool) {
	allPassed = true
	for _, r := range reports {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
			allPassed = false
		}
		fmt.Fprintf(w, "%-6s %-24s pass_rate=%.2f trials=%d\n", status, r.TaskID, r.PassPct, len(r.Trials))
		for _, tr := range r.Trials {
			if tr.Err != nil {
				fmt.Fprintf(w, "  trial %d: error: %v\n", tr.Trial, tr.Err)
				continue
			}
			fmt.Fprintf(w, "  trial %d: converged=%v iterations=%d passed=%v reason=%q\n",
				tr.Trial, tr.Output.Converged, tr.Output.IterationsUsed, tr.Report.Passed, tr.Report.Reason)
		}
	}
	return allPassed
}
