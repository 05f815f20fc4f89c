package ap

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Condition is the learned or configured bound a human override generalizes
// to. A nil field is unconstrained.
type Condition struct {
	MaxVariancePercent *int64           `json:"max_variance_percent,omitempty"`
	MaxQuantityDiff    *decimal.Decimal `json:"max_quantity_diff,omitempty"`
}

func VarianceCondition(percent int64) Condition {
	return Condition{MaxVariancePercent: &percent}
}

func QuantityCondition(diff decimal.Decimal) Condition {
	return Condition{MaxQuantityDiff: &diff}
}

func (c Condition) IsEmpty() bool {
	return c.MaxVariancePercent == nil && c.MaxQuantityDiff == nil
}

// Key is the canonical serialization used as part of a heuristic's identity.
func (c Condition) Key() string {
	b, err := json.Marshal(c)
	if err != nil {
		// Both fields marshal infallibly.
		panic(fmt.Sprintf("condition marshal: %v", err))
	}
	return string(b)
}

// Covers reports whether every bound set in observed is within c's bound.
// An empty observed condition is never covered.
func (c Condition) Covers(observed Condition) bool {
	if observed.IsEmpty() {
		return false
	}
	if observed.MaxVariancePercent != nil {
		if c.MaxVariancePercent == nil || *observed.MaxVariancePercent > *c.MaxVariancePercent {
			return false
		}
	}
	if observed.MaxQuantityDiff != nil {
		if c.MaxQuantityDiff == nil || observed.MaxQuantityDiff.GreaterThan(*c.MaxQuantityDiff) {
			return false
		}
	}
	return true
}

func (c Condition) Equal(other Condition) bool { return c.Key() == other.Key() }

func (c Condition) String() string {
	switch {
	case c.MaxVariancePercent != nil && c.MaxQuantityDiff != nil:
		return fmt.Sprintf("variance <= %d%%, quantity diff <= %s", *c.MaxVariancePercent, c.MaxQuantityDiff.String())
	case c.MaxVariancePercent != nil:
		return fmt.Sprintf("variance <= %d%%", *c.MaxVariancePercent)
	case c.MaxQuantityDiff != nil:
		return fmt.Sprintf("quantity diff <= %s", c.MaxQuantityDiff.String())
	}
	return "no condition"
}
