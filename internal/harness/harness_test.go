package harness

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontorlm/internal/grader"
	"ontorlm/internal/llm"
	"ontorlm/internal/rlm"
)

func writeTaskFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTask_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	path := writeTaskFile(t, dir, "task.yaml", `
id: t1
query: "What is the Protein class?"
context:
  ontologies:
    - source: onto.ttl
graders:
  - type: convergence
`)
	task, err := LoadTask(path)
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, 1, task.Trials)
	assert.Equal(t, 12, task.MaxIterations)
	assert.Equal(t, 1.0, task.PassThreshold)

	src, err := task.PrimaryOntologySource()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "onto.ttl"), src)
}

func TestLoadTasks_GlobExpandsAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeTaskFile(t, dir, "a.yaml", "id: a\nquery: q\ncontext:\n  ontologies:\n    - source: o.ttl\n")
	writeTaskFile(t, dir, "b.yaml", "id: b\nquery: q\ncontext:\n  ontologies:\n    - source: o.ttl\n")

	tasks, err := LoadTasks(filepath.Join(dir, "*.yaml"))
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].ID)
	assert.Equal(t, "b", tasks[1].ID)
}

func TestBuildGraders_InstantiatesConfiguredTypes(t *testing.T) {
	task := Task{
		Query: "q",
		Graders: []GraderConfig{
			{Type: "convergence"},
			{Type: "tool-called", RequiredTools: []string{"search_entity"}},
			{Type: "llm-judge"},
		},
		MaxIterations: 10,
	}
	graders, gTask := BuildGraders(task, nil)
	// llm-judge omitted since judgeLM is nil
	assert.Len(t, graders, 2)
	assert.Equal(t, []string{"search_entity"}, gTask.RequiredTools)
	assert.Equal(t, 10, gTask.MaxIterations)
}

type fakeLM struct{ response string }

func (f fakeLM) Complete(ctx context.Context, prompt string, stop []string) (llm.Completion, error) {
	return llm.Completion{Text: f.response}, nil
}

func TestRunTask_AggregatesAcrossTrials(t *testing.T) {
	task := Task{ID: "t1", Query: "q", Trials: 2, PassThreshold: 1.0, MaxIterations: 5,
		Graders: []GraderConfig{{Type: "convergence"}}}

	builder := func(ctx context.Context, task Task, trial int) (*rlm.Engine, string, func() error, error) {
		lm := fakeLM{response: "```js\nSUBMIT({answer:\"ok\"});\n```"}
		e := rlm.New(rlm.Config{RootLM: lm, MaxIterations: 5, MaxLLMCalls: 5})
		return e, "", nil, nil
	}
	graderBuilder := func(task Task) ([]grader.Grader, grader.Task) {
		return BuildGraders(task, nil)
	}

	report, err := RunTask(context.Background(), task, builder, graderBuilder)
	require.NoError(t, err)
	assert.Equal(t, 2, len(report.Trials))
	assert.Equal(t, 1.0, report.PassPct)
	assert.True(t, report.Passed)

	var buf bytes.Buffer
	allPassed := PrintSummary(&buf, []TaskReport{report})
	assert.True(t, allPassed)
	assert.Contains(t, buf.String(), "PASS")
}
