// Package harness implements the eval harness's task-side machinery
// (spec.md §6, "informative" CLI surface): Task YAML loading and the
// run/report pipeline that drives the RLM engine per task and composes
// grader verdicts. Adapted from the teacher's
// internal/playground/experiment + worker + dataset shape (ExperimentSpec,
// Shard/Task, Result), collapsed from a multi-variant/multi-provider
// experiment runner down to the single-engine-per-task contract spec.md §6
// names: only `(query, ontology, max_iterations)` crosses into the engine.
package harness

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OntologyRef names one ontology source a task loads into context.
type OntologyRef struct {
	Source string `yaml:"source"`
}

// TaskContext carries the ontologies a task's query is evaluated against
// and, optionally, the SPARQL endpoint sparql_select dispatches to
// (spec.md §4.2.2: "a configured endpoint"; absent when the task only
// exercises search_entity).
type TaskContext struct {
	Ontologies     []OntologyRef `yaml:"ontologies"`
	SparqlEndpoint string        `yaml:"sparql_endpoint,omitempty"`
}

// GraderConfig names one grader and its type-specific parameters
// (spec.md §6: "graders[] (each with type and type-specific config)").
type GraderConfig struct {
	Type            string   `yaml:"type"`
	RequiredTools   []string `yaml:"required_tools,omitempty"`
	ToolOrderPrefix []string `yaml:"tool_order_prefix,omitempty"`
	SparqlPatterns  []string `yaml:"sparql_patterns,omitempty"`
	EvidenceFields  []string `yaml:"evidence_fields,omitempty"`
}

// Task is one Task YAML file's parsed content (spec.md §6's field list).
type Task struct {
	ID            string         `yaml:"id"`
	Query         string         `yaml:"query"`
	Context       TaskContext    `yaml:"context"`
	Graders       []GraderConfig `yaml:"graders"`
	Trials        int            `yaml:"trials"`
	PassThreshold float64        `yaml:"pass_threshold"`
	MaxIterations int            `yaml:"max_iterations"`

	// sourceDir is the directory the task file was loaded from, used to
	// resolve relative ontology sources.
	sourceDir string
}

// SourceDir returns the directory the task file was loaded from.
func (t Task) SourceDir() string { return t.sourceDir }

// PrimaryOntologySource returns the first ontology source, resolved
// relative to the task file's directory if it is not already absolute.
func (t Task) PrimaryOntologySource() (string, error) {
	if len(t.Context.Ontologies) == 0 {
		return "", fmt.Errorf("task %q declares no ontologies", t.ID)
	}
	src := t.Context.Ontologies[0].Source
	if filepath.IsAbs(src) {
		return src, nil
	}
	return filepath.Join(t.sourceDir, src), nil
}

// LoadTask parses one Task YAML file.
func LoadTask(path string) (Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Task{}, fmt.Errorf("harness: read task file: %w", err)
	}
	var t Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Task{}, fmt.Errorf("harness: parse task file %s: %w", path, err)
	}
	if t.Trials <= 0 {
		t.Trials = 1
	}
	if t.MaxIterations <= 0 {
		t.MaxIterations = 12
	}
	if t.PassThreshold <= 0 {
		t.PassThreshold = 1.0
	}
	t.sourceDir = filepath.Dir(path)
	return t, nil
}

// LoadTasks expands a glob pattern (spec.md §6's "run <task-glob>") into
// parsed tasks, sorted by file path for deterministic run order.
func LoadTasks(glob string) ([]Task, error) {
	matches, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("harness: invalid task glob %q: %w", glob, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("harness: no task files matched %q", glob)
	}
	tasks := make([]Task, 0, len(matches))
	for _, path := range matches {
		t, err := LoadTask(path)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
