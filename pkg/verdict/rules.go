package verdict

import "strings"

// Violation codes for the neutralization contract.
const (
	CodeRhetoricalQuestion = "rhetorical_question"
	CodeConsistency        = "consistency_contract"
	CodeEvidenceMissing    = "evidence_missing"
	CodeEmptyOutput        = "empty_output"
	CodeThinContent        = "thin_content"
)

// Source is the original article fields the rewrite is validated
// against.
type Source struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Body     string `json:"body"`
}

// Rewrite is a candidate neutralized artifact. Headline and Summary
// are the primary output fields; Changes is the structured evidence of
// what was altered.
type Rewrite struct {
	Headline string   `json:"headline"`
	Summary  string   `json:"summary"`
	Altered  bool     `json:"altered"`
	Changes  []string `json:"changes,omitempty"`
}

// MinSourceWords is the substance floor below which an input is
// disqualified rather than processed.
const MinSourceWords = 40

// Validator applies the neutralization rule set. The zero value uses
// MinSourceWords.
type Validator struct {
	MinWords int
}

// Validate checks a candidate rewrite against its source. Any single
// violation prevents a pass verdict.
func (v Validator) Validate(candidate Rewrite, original Source) Result {
	minWords := v.MinWords
	if minWords <= 0 {
		minWords = MinSourceWords
	}

	checks := RuleChecks{
		NoRhetoricalQuestions: true,
		ConsistencyContract:   true,
		EvidencePresent:       true,
		SufficientContent:     true,
	}

	// Thin inputs are disqualified, never failed: this path must not
	// count against failure-rate metrics.
	if len(strings.Fields(original.Body)) < minWords {
		checks.SufficientContent = false

		return Result{
			Verdict: VerdictSkip,
			Reasons: []Reason{{
				Code:   CodeThinContent,
				Detail: "source body has too little substance to neutralize",
			}},
			Checks: checks,
			Action: ActionMarkSkipped,
		}
	}

	if strings.TrimSpace(candidate.Headline) == "" && strings.TrimSpace(candidate.Summary) == "" {
		return Result{
			Verdict: VerdictFail,
			Reasons: []Reason{{
				Code:   CodeEmptyOutput,
				Detail: "both primary output fields are empty",
			}},
			Checks: checks,
			Action: ActionMarkFailed,
		}
	}

	var reasons []Reason

	if strings.Contains(candidate.Headline, "?") || strings.Contains(candidate.Summary, "?") {
		checks.NoRhetoricalQuestions = false
		reasons = append(reasons, Reason{
			Code:   CodeRhetoricalQuestion,
			Detail: "remove question marks from the headline and summary; state facts declaratively",
		})
	}

	if candidate.Altered {
		evidencePresent := len(candidate.Changes) > 0
		observableChange := differs(candidate.Headline, original.Headline) ||
			differs(candidate.Summary, original.Summary)

		if !evidencePresent || !observableChange {
			checks.ConsistencyContract = false
			reasons = append(reasons, Reason{
				Code:   CodeConsistency,
				Detail: "artifact is flagged as altered but the alteration is not substantiated; list the changes made and ensure the output actually differs",
			})
		}

		// Reported separately even when the contract check above
		// already caught it.
		if !evidencePresent {
			checks.EvidencePresent = false
			reasons = append(reasons, Reason{
				Code:   CodeEvidenceMissing,
				Detail: "provide the evidence-of-change list describing what was altered",
			})
		}
	}

	if len(reasons) > 0 {
		// If in doubt, do not pass.
		return Result{
			Verdict: VerdictRetry,
			Reasons: reasons,
			Checks:  checks,
			Action:  ActionReattempt,
		}
	}

	return Result{Verdict: VerdictPass, Checks: checks, Action: ActionNone}
}

// differs compares two fields case- and whitespace-insensitively.
func differs(a, b string) bool {
	return normalize(a) != normalize(b)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
