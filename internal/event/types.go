// Package event evaluates ticker-based predicates: threshold comparisons and
// crossing detection with per-subscription prior-value memory.
package event

import "fmt"

// Field selects a snapshot value a condition compares against.
type Field string

const (
	FieldBid           Field = "bid"
	FieldAsk           Field = "ask"
	FieldMid           Field = "mid"
	FieldLast          Field = "last"
	FieldSpread        Field = "spread"
	FieldSpreadPercent Field = "spreadPercent"
)

// Operator compares a field value against the threshold. The crossing
// operators need a prior value and never fire on first observation.
type Operator string

const (
	OpGT         Operator = "GT"
	OpGTE        Operator = "GTE"
	OpLT         Operator = "LT"
	OpLTE        Operator = "LTE"
	OpCrossAbove Operator = "CROSS_ABOVE"
	OpCrossBelow Operator = "CROSS_BELOW"
)

// Logic combines a subscription's conditions.
type Logic string

const (
	LogicAny Logic = "ANY"
	LogicAll Logic = "ALL"
)

// Bounds on a request.
const (
	MaxSubscriptions  = 5
	MaxConditions     = 5
	MinTimeoutSeconds = 1
	MaxTimeoutSeconds = 55
	// DefaultTimeoutSeconds keeps the wait inside the broker's nominal
	// session cookie validity.
	DefaultTimeoutSeconds = 55
)

// Condition is one predicate clause.
type Condition struct {
	Field     Field    `json:"field"`
	Operator  Operator `json:"operator"`
	Threshold float64  `json:"threshold"`
}

// Subscription watches one instrument with up to MaxConditions clauses.
type Subscription struct {
	ISIN       string      `json:"isin"`
	Conditions []Condition `json:"conditions"`
	Logic      Logic       `json:"logic,omitempty"`
}

// Request is a full event wait: 1-5 instruments, each with 1-5 conditions,
// bounded by a single overall timer.
type Request struct {
	Subscriptions  []Subscription `json:"subscriptions"`
	TimeoutSeconds int            `json:"timeoutSeconds,omitempty"`
}

var validFields = map[Field]bool{
	FieldBid: true, FieldAsk: true, FieldMid: true,
	FieldLast: true, FieldSpread: true, FieldSpreadPercent: true,
}

var validOperators = map[Operator]bool{
	OpGT: true, OpGTE: true, OpLT: true, OpLTE: true,
	OpCrossAbove: true, OpCrossBelow: true,
}

// Validate checks request bounds and fills in defaults (timeout 55 s, logic
// ANY).
func (r *Request) Validate() error {
	if len(r.Subscriptions) < 1 || len(r.Subscriptions) > MaxSubscriptions {
		return fmt.Errorf("request must contain between 1 and %d subscriptions, got %d", MaxSubscriptions, len(r.Subscriptions))
	}

	if r.TimeoutSeconds == 0 {
		r.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if r.TimeoutSeconds < MinTimeoutSeconds || r.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("timeoutSeconds must be between %d and %d, got %d", MinTimeoutSeconds, MaxTimeoutSeconds, r.TimeoutSeconds)
	}

	for i := range r.Subscriptions {
		sub := &r.Subscriptions[i]
		if sub.ISIN == "" {
			return fmt.Errorf("subscription %d is missing an isin", i)
		}
		if len(sub.Conditions) < 1 || len(sub.Conditions) > MaxConditions {
			return fmt.Errorf("subscription %d must contain between 1 and %d conditions, got %d", i, MaxConditions, len(sub.Conditions))
		}
		if sub.Logic == "" {
			sub.Logic = LogicAny
		}
		if sub.Logic != LogicAny && sub.Logic != LogicAll {
			return fmt.Errorf("subscription %d has invalid logic %q", i, sub.Logic)
		}
		for j, cond := range sub.Conditions {
			if !validFields[cond.Field] {
				return fmt.Errorf("subscription %d condition %d has invalid field %q", i, j, cond.Field)
			}
			if !validOperators[cond.Operator] {
				return fmt.Errorf("subscription %d condition %d has invalid operator %q", i, j, cond.Operator)
			}
		}
	}
	return nil
}
