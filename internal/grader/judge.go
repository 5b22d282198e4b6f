package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"ontorlm/internal/llm"
	"ontorlm/internal/rlm"
)

const judgeRubric = `You are grading an ontology-querying agent's answer for semantic
correctness and groundedness. Consider whether the answer is factually
supported by the evidence and SPARQL query shown, not whether field names
or query phrasing exactly match any reference. Respond with a single JSON
object of the form {"passed": bool, "score": number between 0 and 1,
"reasoning": string}. Output only the JSON object.

Query: %s
Answer: %s
SPARQL: %s
Evidence: %s`

// JudgeResult is the parsed {passed, score, reasoning} judge output
// (spec.md §4.6).
type JudgeResult struct {
	Passed    bool    `json:"passed"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// JudgeGrader sends {query, answer, sparql, evidence} to a judge LM with a
// correctness/groundedness rubric — the primary arbiter in the composition
// policy (spec.md §4.6/§9), adapted from the teacher's
// internal/playground/eval judgeEvaluator's provider-call shape,
// generalized from exact-match-with-fallback scoring to full rubric-based
// judging since the judge here is the primary signal, not a secondary one.
type JudgeGrader struct {
	JudgeLM llm.LM
	Query   string
}

func (JudgeGrader) Name() string { return "llm-judge" }

func (j JudgeGrader) Grade(ctx context.Context, _ *Trajectory, out rlm.FinalOutput, _ Task) Result {
	if j.JudgeLM == nil {
		return Result{Passed: false, Reason: "no judge LM configured"}
	}
	evidence, _ := json.Marshal(out.Evidence)
	prompt := fmt.Sprintf(judgeRubric, j.Query, out.Answer, out.Sparql, string(evidence))

	completion, err := j.JudgeLM.Complete(ctx, prompt, nil)
	if err != nil {
		return Result{Passed: false, Reason: fmt.Sprintf("judge LM error: %v", err)}
	}

	jr, err := parseJudgeResponse(completion.Text)
	if err != nil {
		return Result{Passed: false, Reason: fmt.Sprintf("unparseable judge response: %v", err), Detail: completion.Text}
	}
	return Result{Passed: jr.Passed, Reason: jr.Reasoning, Detail: jr}
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// parseJudgeResponse extracts the span from the first '{' to the last '}'
// in text and decodes it as one JSON object, tolerating leading/trailing
// prose the judge model may add despite instructions.
func parseJudgeResponse(text string) (JudgeResult, error) {
	candidate := strings.TrimSpace(text)
	if m := jsonObjectPattern.FindString(candidate); m != "" {
		candidate = m
	}
	var jr JudgeResult
	if err := json.Unmarshal([]byte(candidate), &jr); err != nil {
		return JudgeResult{}, err
	}
	return jr, nil
}
