package trajectory

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	records []Record
	closed  bool
}

func (f *fakeSink) Write(rec Record) { f.records = append(f.records, rec) }
func (f *fakeSink) Close() error     { f.closed = true; return nil }

func TestRecorder_EmitsOrderedNDJSON(t *testing.T) {
	var buf bytes.Buffer
	sink := &fakeSink{}
	r := New(&buf, "run-1", sink)

	r.RunStart("q", "onto.ttl", 12, 20)
	r.IterationStart(1)
	r.LMCall("call-1", 1, time.Now(), time.Now(), 10, 20, 5, 8, "claude", false)
	r.ToolStart("call-2", "search_entity", 1, map[string]any{"query": "Protein"}, time.Now())
	r.ToolEnd("call-2", "search_entity", 1, []any{}, "", time.Now())
	r.IterationEnd(1, true)
	r.RunEnd(true, 1, 1, 5, 8, "DONE_SUBMIT")

	scanner := bufio.NewScanner(&buf)
	var kinds []string
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		kinds = append(kinds, rec.Kind)
		assert.Equal(t, "run-1", rec.RunID)
	}
	assert.Equal(t, []string{
		"run_start", "iteration_start", "lm_call", "tool_start", "tool_end", "iteration_end", "run_end",
	}, kinds)

	assert.Len(t, sink.records, 7)
	assert.True(t, sink.closed)
}

func TestRecorder_ToolStartEndShareCallID(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, "run-2")
	r.ToolStart("abc", "sparql_select", 2, nil, time.Now())
	r.ToolEnd("abc", "sparql_select", 2, nil, "", time.Now())

	scanner := bufio.NewScanner(&buf)
	var callIDs []string
	for scanner.Scan() {
		var rec Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		callIDs = append(callIDs, rec.CallID)
	}
	assert.Equal(t, []string{"abc", "abc"}, callIDs)
}
