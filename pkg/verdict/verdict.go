// Package verdict implements the generate/validate/repair loop that
// gates a generated artifact against a correctness contract. A
// validator produces a Verdict; the gate either accepts the artifact,
// feeds repair instructions into another generation attempt, rejects
// it permanently, or disqualifies the input without counting it as a
// failure.
package verdict

import "strings"

// Verdict is the deterministic outcome of validating one candidate.
type Verdict string

const (
	VerdictPass  Verdict = "pass"  // Accept the candidate
	VerdictRetry Verdict = "retry" // Repairable; regenerate with instructions
	VerdictFail  Verdict = "fail"  // Permanently rejected
	VerdictSkip  Verdict = "skip"  // Input disqualified, not an error
)

// Action is the suggested followup for a verdict.
type Action string

const (
	ActionNone        Action = "none"
	ActionReattempt   Action = "reattempt_with_instructions"
	ActionMarkFailed  Action = "mark_failed"
	ActionMarkSkipped Action = "mark_skipped"
)

// Reason pairs a stable violation code with human detail text.
type Reason struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// RuleChecks records the individual rule outcomes; true means the rule
// passed.
type RuleChecks struct {
	NoRhetoricalQuestions bool `json:"no_rhetorical_questions"`
	ConsistencyContract   bool `json:"consistency_contract"`
	EvidencePresent       bool `json:"evidence_present"`
	SufficientContent     bool `json:"sufficient_content"`
}

// Result is produced fresh on every validation pass and never mutated.
type Result struct {
	Verdict Verdict    `json:"verdict"`
	Reasons []Reason   `json:"reasons,omitempty"`
	Checks  RuleChecks `json:"checks"`
	Action  Action     `json:"action"`
}

// RepairInstructions joins the triggered violations' detail text into
// the instruction string fed back into the next generation attempt.
func (r Result) RepairInstructions() string {
	if len(r.Reasons) == 0 {
		return ""
	}

	details := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		details = append(details, reason.Detail)
	}

	return strings.Join(details, "; ")
}
