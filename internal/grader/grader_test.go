package grader

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontorlm/internal/llm"
	"ontorlm/internal/rlm"
)

func sampleTrajectory(t *testing.T) *Trajectory {
	t.Helper()
	ndjson := `{"kind":"run_start","run_id":"r1","ts":"2026-01-01T00:00:00Z"}
{"kind":"tool_start","run_id":"r1","call_id":"c1","iteration":1,"ts":"2026-01-01T00:00:01Z","data":{"tool_name":"search_entity"}}
{"kind":"tool_end","run_id":"r1","call_id":"c1","iteration":1,"ts":"2026-01-01T00:00:02Z","data":{"error_kind":""}}
{"kind":"tool_start","run_id":"r1","call_id":"c2","iteration":2,"ts":"2026-01-01T00:00:03Z","data":{"tool_name":"sparql_select"}}
{"kind":"tool_end","run_id":"r1","call_id":"c2","iteration":2,"ts":"2026-01-01T00:00:04Z","data":{"error_kind":""}}
{"kind":"run_end","run_id":"r1","ts":"2026-01-01T00:00:05Z"}
`
	tr, err := ParseTrajectory(strings.NewReader(ndjson))
	require.NoError(t, err)
	return tr
}

func TestConvergenceGrader(t *testing.T) {
	g := ConvergenceGrader{}
	pass := g.Grade(context.Background(), nil, rlm.FinalOutput{Converged: true, IterationsUsed: 5}, Task{MaxIterations: 12})
	assert.True(t, pass.Passed)

	failIter := g.Grade(context.Background(), nil, rlm.FinalOutput{Converged: true, IterationsUsed: 13}, Task{MaxIterations: 12})
	assert.False(t, failIter.Passed)

	failConv := g.Grade(context.Background(), nil, rlm.FinalOutput{Converged: false}, Task{MaxIterations: 12})
	assert.False(t, failConv.Passed)
}

func TestToolCalledGrader(t *testing.T) {
	tr := sampleTrajectory(t)
	g := ToolCalledGrader{}

	pass := g.Grade(context.Background(), tr, rlm.FinalOutput{}, Task{RequiredTools: []string{"search_entity", "sparql_select"}})
	assert.True(t, pass.Passed)

	fail := g.Grade(context.Background(), tr, rlm.FinalOutput{}, Task{RequiredTools: []string{"llm_query"}})
	assert.False(t, fail.Passed)

	orderPass := g.Grade(context.Background(), tr, rlm.FinalOutput{}, Task{ToolOrderPrefix: []string{"search_entity", "sparql_select"}})
	assert.True(t, orderPass.Passed)

	orderFail := g.Grade(context.Background(), tr, rlm.FinalOutput{}, Task{ToolOrderPrefix: []string{"sparql_select", "search_entity"}})
	assert.False(t, orderFail.Passed)
}

func TestStructuralSPARQLGrader(t *testing.T) {
	g := StructuralSPARQLGrader{}
	out := rlm.FinalOutput{Sparql: "SELECT ?x WHERE { ?x a  up:Protein }"}

	pass := g.Grade(context.Background(), nil, out, Task{SparqlPatterns: []string{"up:Protein"}})
	assert.True(t, pass.Passed)

	fail := g.Grade(context.Background(), nil, out, Task{SparqlPatterns: []string{"prov:Activity"}})
	assert.False(t, fail.Passed)
}

func TestOutcomeVerificationGrader(t *testing.T) {
	g := OutcomeVerificationGrader{}
	out := rlm.FinalOutput{Evidence: map[string]any{"label": "Protein", "comment": "..."}}

	pass := g.Grade(context.Background(), nil, out, Task{EvidenceFields: []string{"label", "comment"}})
	assert.True(t, pass.Passed)

	fail := g.Grade(context.Background(), nil, out, Task{EvidenceFields: []string{"label", "protein_uri"}})
	assert.False(t, fail.Passed)
}

type fakeJudgeLM struct{ text string }

func (f fakeJudgeLM) Complete(ctx context.Context, prompt string, stop []string) (llm.Completion, error) {
	return llm.Completion{Text: f.text}, nil
}

func TestJudgeGrader_ParsesJSONVerdict(t *testing.T) {
	g := JudgeGrader{JudgeLM: fakeJudgeLM{text: `Sure, here you go: {"passed": true, "score": 0.9, "reasoning": "grounded and correct"}`}, Query: "q"}
	res := g.Grade(context.Background(), nil, rlm.FinalOutput{Answer: "Protein"}, Task{})
	assert.True(t, res.Passed)
	assert.Equal(t, "grounded and correct", res.Reason)
}

func TestRunAll_JudgePrimaryOverridesStructural(t *testing.T) {
	graders := []Grader{
		ConvergenceGrader{},
		JudgeGrader{JudgeLM: fakeJudgeLM{text: `{"passed": true, "score": 1, "reasoning": "ok"}`}, Query: "q"},
	}
	out := rlm.FinalOutput{Converged: false, IterationsUsed: 99}
	report := RunAll(context.Background(), graders, nil, out, Task{MaxIterations: 5})

	assert.True(t, report.HasJudge)
	assert.True(t, report.Passed)
	assert.False(t, report.Results["convergence"].Passed)
}

func TestRunAll_FallsBackToANDWithoutJudge(t *testing.T) {
	graders := []Grader{ConvergenceGrader{}, OutcomeVerificationGrader{}}
	out := rlm.FinalOutput{Converged: true, IterationsUsed: 3, Evidence: map[string]any{}}
	report := RunAll(context.Background(), graders, nil, out, Task{MaxIterations: 5, EvidenceFields: []string{"label"}})

	assert.False(t, report.HasJudge)
	assert.False(t, report.Passed)
}
