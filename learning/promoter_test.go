package learning_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/learning"
)

func seedHeuristic(t *testing.T, store interface {
	SaveHeuristic(context.Context, *ap.LearnedHeuristic) error
}, vendor string, variance int64, triggers int) ap.LearnedHeuristic {
	t.Helper()
	h := ap.LearnedHeuristic{
		VendorName:       vendor,
		ExceptionType:    ap.PriceMismatchException,
		LearnedCondition: ap.VarianceCondition(variance),
		TriggerCount:     triggers,
		ConfidenceScore:  learning.Confidence(triggers),
		ResolutionAction: ap.StatusMatched,
		LastAppliedAt:    time.Now(),
	}
	require.NoError(t, store.SaveHeuristic(context.Background(), &h))
	return h
}

// =============================================================================
// PROMOTION
// =============================================================================

func TestScan_PromotesConfidentHeuristicOnce(t *testing.T) {
	// GIVEN: One heuristic at 10 triggers and one at 3
	// WHEN: The promoter scans twice
	// THEN: Exactly one suggestion exists, for the confident heuristic

	store := newStore(t)
	promoter := learning.NewPromoter(store, learning.DefaultConfig(), quietLogger())
	ctx := context.Background()

	seedHeuristic(t, store, "V", 7, 10)
	seedHeuristic(t, store, "W", 3, 3)

	n, err := promoter.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = promoter.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "unread suggestion already exists")

	notes, err := store.ListNotifications(ctx, true)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, ap.NotifyAutomationSuggestion, notes[0].Type)
	require.NotNil(t, notes[0].ProposedAction)
	assert.Equal(t, "V", notes[0].ProposedAction.VendorName)
	assert.Equal(t, ap.RuleApprove, notes[0].ProposedAction.Action)
	assert.Equal(t, int64(7), *notes[0].ProposedAction.Conditions.MaxVariancePercent)
}

func TestScan_SkipsWhenEquivalentRuleExists(t *testing.T) {
	store := newStore(t)
	promoter := learning.NewPromoter(store, learning.DefaultConfig(), quietLogger())
	ctx := context.Background()

	seedHeuristic(t, store, "V", 7, 10)
	require.NoError(t, store.CreateAutomationRule(ctx, &ap.AutomationRule{
		ID:         "rule-1",
		RuleName:   "approve small variances",
		VendorName: "V",
		Conditions: ap.VarianceCondition(7),
		Action:     ap.RuleApprove,
		IsActive:   true,
		Source:     "user",
	}))

	n, err := promoter.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestScan_ReadSuggestionIsOfferedAgain(t *testing.T) {
	store := newStore(t)
	promoter := learning.NewPromoter(store, learning.DefaultConfig(), quietLogger())
	ctx := context.Background()

	seedHeuristic(t, store, "V", 7, 10)
	_, err := promoter.Scan(ctx)
	require.NoError(t, err)

	notes, err := store.ListNotifications(ctx, true)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.NoError(t, store.MarkNotificationRead(ctx, notes[0].ID))

	n, err := promoter.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// =============================================================================
// AUTOMATION RULES
// =============================================================================

func rule(vendor string, variance int64, active bool) ap.AutomationRule {
	return ap.AutomationRule{
		ID:         vendor + "-rule",
		VendorName: vendor,
		Conditions: ap.VarianceCondition(variance),
		Action:     ap.RuleApprove,
		IsActive:   active,
	}
}

func TestApplicableRule(t *testing.T) {
	timing := priceTrace("10.50", "10.00")
	timing = append(ap.Trace{{Step: "Item 'Bolt' - Timing Check", Kind: ap.CheckTiming, Status: ap.TraceFail}}, timing...)

	tests := []struct {
		name  string
		rules []ap.AutomationRule
		inv   *ap.Invoice
		want  string
	}{
		{"covered", []ap.AutomationRule{rule("V", 7, true)}, reviewed("V", priceTrace("10.50", "10.00")), "V-rule"},
		{"vendor name case-insensitive", []ap.AutomationRule{rule("v", 7, true)}, reviewed("V", priceTrace("10.50", "10.00")), "v-rule"},
		{"variance too large", []ap.AutomationRule{rule("V", 3, true)}, reviewed("V", priceTrace("10.50", "10.00")), ""},
		{"other vendor", []ap.AutomationRule{rule("W", 7, true)}, reviewed("V", priceTrace("10.50", "10.00")), ""},
		{"inactive", []ap.AutomationRule{rule("V", 7, false)}, reviewed("V", priceTrace("10.50", "10.00")), ""},
		{"unclassifiable failure", []ap.AutomationRule{rule("V", 7, true)}, reviewed("V", timing), ""},
		{"quantity failure not covered by price rule", []ap.AutomationRule{rule("V", 7, true)}, reviewed("V", quantityTrace("10", "8")), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := learning.ApplicableRule(tt.rules, tt.inv)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}
