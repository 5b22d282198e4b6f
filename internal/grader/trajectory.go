package grader

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"ontorlm/internal/trajectory"
)

// ToolCallSummary is the grader-facing projection of a tool_start/tool_end
// pair: just enough to check presence, ordering, and error outcome without
// graders needing to know the NDJSON record shape.
type ToolCallSummary struct {
	CallID    string
	ToolName  string
	Iteration int
	ErrorKind string
}

// Trajectory is the parsed NDJSON file C6 graders consume read-only
// (spec.md §5: "graders open it read-only after run_end").
type Trajectory struct {
	Records   []trajectory.Record
	ToolCalls []ToolCallSummary // in tool_start emission order
}

// LoadTrajectory reads and parses the NDJSON file at path.
func LoadTrajectory(path string) (*Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTrajectory(f)
}

// ParseTrajectory parses NDJSON from r.
func ParseTrajectory(r io.Reader) (*Trajectory, error) {
	tr := &Trajectory{}
	callIndex := map[string]int{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec trajectory.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		tr.Records = append(tr.Records, rec)

		switch rec.Kind {
		case "tool_start":
			name, _ := rec.Data["tool_name"].(string)
			callIndex[rec.CallID] = len(tr.ToolCalls)
			tr.ToolCalls = append(tr.ToolCalls, ToolCallSummary{
				CallID: rec.CallID, ToolName: name, Iteration: rec.Iteration,
			})
		case "tool_end":
			if idx, ok := callIndex[rec.CallID]; ok {
				if ek, _ := rec.Data["error_kind"].(string); ek != "" {
					tr.ToolCalls[idx].ErrorKind = ek
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tr, nil
}

// ToolNames returns the tool names in tool_start emission order.
func (t *Trajectory) ToolNames() []string {
	out := make([]string, len(t.ToolCalls))
	for i, tc := range t.ToolCalls {
		out[i] = tc.ToolName
	}
	return out
}
