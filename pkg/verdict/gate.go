package verdict

import (
	"context"
	"log/slog"
)

// MaxRetryAttempts is the default number of repair attempts after the
// first generation.
const MaxRetryAttempts = 2

// GenerateFunc produces a candidate. instructions is empty on the
// first attempt and carries the previous validation's repair
// instructions afterwards.
type GenerateFunc func(ctx context.Context, instructions string) (Rewrite, error)

// ValidateFunc judges a candidate against the original input.
type ValidateFunc func(candidate Rewrite, original Source) Result

// Disposition classifies the gate's terminal outcome.
type Disposition string

const (
	DispositionAccepted     Disposition = "accepted"
	DispositionRejected     Disposition = "rejected"     // Permanent fail, or retries exhausted
	DispositionDisqualified Disposition = "disqualified" // Skip; not an error
)

// Outcome bundles the gate's terminal state. A rejection is an
// intentional business outcome reported through this value, never an
// error.
type Outcome struct {
	Disposition Disposition
	Candidate   Rewrite // Meaningful when accepted
	Last        Result  // The validation result that ended the loop
	Attempts    int
}

// Accepted reports whether the artifact passed the contract.
func (o Outcome) Accepted() bool {
	return o.Disposition == DispositionAccepted
}

// Gate runs the generate/validate/repair loop. MaxRetries bounds the
// repair attempts following the first generation, so at most
// MaxRetries+1 candidates are produced per unit of work. The gate
// holds no mutable state; one value serves any number of concurrent
// callers.
type Gate struct {
	MaxRetries int
	Validate   ValidateFunc
	Logger     *slog.Logger
}

// NewGate builds a gate with the default validator and retry bound.
func NewGate(logger *slog.Logger) Gate {
	return Gate{
		MaxRetries: MaxRetryAttempts,
		Validate:   Validator{}.Validate,
		Logger:     logger.With("module", "verdict_gate"),
	}
}

// Run drives generation until a terminal verdict. Generation errors
// propagate as errors; fail and skip verdicts do not.
func (g Gate) Run(ctx context.Context, original Source, generate GenerateFunc) (Outcome, error) {
	maxRetries := g.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	validate := g.Validate
	if validate == nil {
		validate = Validator{}.Validate
	}

	var (
		last         Result
		instructions string
	)

	totalAttempts := maxRetries + 1

	for attempt := 1; attempt <= totalAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Disposition: DispositionRejected, Last: last, Attempts: attempt - 1}, err
		}

		candidate, err := generate(ctx, instructions)
		if err != nil {
			return Outcome{Disposition: DispositionRejected, Last: last, Attempts: attempt}, err
		}

		last = validate(candidate, original)

		switch last.Verdict {
		case VerdictPass:
			return Outcome{
				Disposition: DispositionAccepted,
				Candidate:   candidate,
				Last:        last,
				Attempts:    attempt,
			}, nil
		case VerdictSkip:
			return Outcome{Disposition: DispositionDisqualified, Last: last, Attempts: attempt}, nil
		case VerdictFail:
			return Outcome{Disposition: DispositionRejected, Last: last, Attempts: attempt}, nil
		case VerdictRetry:
			instructions = last.RepairInstructions()

			if g.Logger != nil {
				g.Logger.Debug("Candidate rejected, retrying",
					"attempt", attempt,
					"instructions", instructions)
			}
		}
	}

	return Outcome{Disposition: DispositionRejected, Last: last, Attempts: totalAttempts}, nil
}
