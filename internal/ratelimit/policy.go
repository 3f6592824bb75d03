package ratelimit

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultWindow is the lifetime of a counter after its most recent admission.
const DefaultWindow = time.Second

var validate = validator.New(validator.WithRequiredStructEnabled())

// Policy holds the two admission budgets and the rolling window they apply to.
type Policy struct {
	MaxPerRecipient int64         `validate:"gt=0" yaml:"maxPerRecipient"`
	MaxGlobal       int64         `validate:"gt=0" yaml:"maxGlobal"`
	Window          time.Duration `validate:"gt=0" yaml:"window"`
}

// Validate reports whether the policy can be enforced.
func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid rate limit policy: %w", err)
	}

	return nil
}

// Limits returns the budgets of the policy.
func (p Policy) Limits() Limits {
	return Limits{Recipient: p.MaxPerRecipient, Global: p.MaxGlobal}
}

// Limits are the per-recipient and global ceilings evaluated on every check.
type Limits struct {
	Recipient int64
	Global    int64
}

// Evaluate decides the outcome for the counts observed before admission.
// The recipient budget is checked first.
func (l Limits) Evaluate(recipientCount, globalCount int64) Outcome {
	switch {
	case recipientCount >= l.Recipient:
		return OutcomeDeniedRecipient
	case globalCount >= l.Global:
		return OutcomeDeniedGlobal
	default:
		return OutcomeAdmitted
	}
}

// Outcome is the result of an admission check.
type Outcome string

const (
	OutcomeAdmitted        Outcome = "admitted"
	OutcomeDeniedRecipient Outcome = "denied_recipient"
	OutcomeDeniedGlobal    Outcome = "denied_global"
)

// Decision records an admission outcome together with the counts it was based on.
// The counts are the values read before any increment.
type Decision struct {
	Outcome        Outcome
	RecipientCount int64
	GlobalCount    int64
}

// Allowed reports whether the request was admitted.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAdmitted
}
