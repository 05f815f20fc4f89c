package learning

import (
	"strings"

	"github.com/warp/ap-engine/ap"
)

// ApplicableRule returns the first active approve rule for the invoice's vendor
// whose conditions cover every failure in the trace. Any failure that cannot
// be classified (missing item, duplicate, timing, totals) disqualifies every
// rule.
func ApplicableRule(rules []ap.AutomationRule, inv *ap.Invoice) *ap.AutomationRule {
	failures := inv.MatchTrace.Failures()
	if len(failures) == 0 {
		return nil
	}
	observed := make([]ap.Condition, 0, len(failures))
	for _, f := range failures {
		obs, ok := Observe(f)
		if !ok {
			return nil
		}
		observed = append(observed, obs.Condition)
	}

	for i := range rules {
		r := &rules[i]
		if !r.IsActive || r.Action != ap.RuleApprove {
			continue
		}
		if r.VendorName != "" && !strings.EqualFold(r.VendorName, inv.VendorName) {
			continue
		}
		if coversAll(r.Conditions, observed) {
			return r
		}
	}
	return nil
}

func coversAll(c ap.Condition, observed []ap.Condition) bool {
	for _, o := range observed {
		if !c.Covers(o) {
			return false
		}
	}
	return true
}

// SameRule reports whether two rules would have the same effect.
func SameRule(vendor string, conditions ap.Condition, action ap.RuleAction, r ap.AutomationRule) bool {
	return strings.EqualFold(r.VendorName, vendor) && r.Action == action && r.Conditions.Equal(conditions)
}
