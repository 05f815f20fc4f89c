package learning_test

import (
	"context"
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/learning"
	"github.com/warp/ap-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func priceTrace(invoicePrice, poPrice string) ap.Trace {
	var trace ap.Trace
	trace.Add("Duplicate Check", ap.CheckDuplicate, ap.TracePass, "ok", ap.TraceDetails{})
	trace.Add("Item 'Bolt' - Price Match", ap.CheckPrice, ap.TraceFail, "outside tolerance", ap.TraceDetails{
		InvoicePrice: ap.Dec(d(invoicePrice)),
		POPrice:      ap.Dec(d(poPrice)),
	})
	trace.Add("Final Result", ap.CheckFinal, ap.TraceFail, "review", ap.TraceDetails{})
	return trace
}

func quantityTrace(billed, received string) ap.Trace {
	var trace ap.Trace
	trace.Add("Item 'Bolt' - Quantity Match", ap.CheckQuantity, ap.TraceFail, "differs", ap.TraceDetails{
		InvoiceQty: ap.Dec(d(billed)),
		GRNQty:     ap.Dec(d(received)),
	})
	trace.Add("Final Result", ap.CheckFinal, ap.TraceFail, "review", ap.TraceDetails{})
	return trace
}

func reviewed(vendor string, trace ap.Trace) *ap.Invoice {
	return &ap.Invoice{InvoiceID: "INV-1", VendorName: vendor, Status: ap.StatusNeedsReview, MatchTrace: trace}
}

// =============================================================================
// OBSERVATIONS
// =============================================================================

func TestObserve_PriceVarianceIsCeiled(t *testing.T) {
	obs, ok := learning.ObserveFirst(priceTrace("10.61", "10.00"))
	require.True(t, ok)
	assert.Equal(t, ap.PriceMismatchException, obs.Type)
	require.NotNil(t, obs.Condition.MaxVariancePercent)
	assert.Equal(t, int64(7), *obs.Condition.MaxVariancePercent)
}

func TestObserve_QuantityDeltaAgainstGRN(t *testing.T) {
	obs, ok := learning.ObserveFirst(quantityTrace("10", "8"))
	require.True(t, ok)
	assert.Equal(t, ap.QuantityMismatchException, obs.Type)
	assert.True(t, obs.Condition.MaxQuantityDiff.Equal(d("2")))
}

func TestObserve_UnclassifiableFirstFailure(t *testing.T) {
	var trace ap.Trace
	trace.Add("Item 'Bolt' - Timing Check", ap.CheckTiming, ap.TraceFail, "early", ap.TraceDetails{})
	trace.Add("Item 'Bolt' - Price Match", ap.CheckPrice, ap.TraceFail, "outside", ap.TraceDetails{
		InvoicePrice: ap.Dec(d("11")), POPrice: ap.Dec(d("10")),
	})

	_, ok := learning.ObserveFirst(trace)
	assert.False(t, ok, "only the first failure is the root cause")
}

func TestConfidence_Sequence(t *testing.T) {
	assert.InDelta(t, 0.5, learning.Confidence(1), 1e-9)
	assert.InDelta(t, 0.667, learning.Confidence(2), 1e-3)
	assert.InDelta(t, 0.75, learning.Confidence(3), 1e-9)
	assert.Less(t, learning.Confidence(1000), 1.0)
}

// =============================================================================
// LEARN FROM APPROVAL
// =============================================================================

func TestLearnFromApproval_ScenarioE(t *testing.T) {
	// GIVEN: A first-time approval of a 7% price variance for vendor V
	// WHEN: Learning runs, then a second approval of a smaller variance
	// THEN: One heuristic {max_variance_percent: 7} reaches 2 triggers

	store := newStore(t)
	learner := learning.NewLearner(store, learning.DefaultConfig(), quietLogger())
	ctx := context.Background()

	h, err := learner.LearnFromApproval(ctx, reviewed("V", priceTrace("10.70", "10.00")))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, ap.PriceMismatchException, h.ExceptionType)
	assert.Equal(t, int64(7), *h.LearnedCondition.MaxVariancePercent)
	assert.Equal(t, 1, h.TriggerCount)
	assert.InDelta(t, 0.5, h.ConfidenceScore, 1e-9)
	assert.Equal(t, ap.StatusMatched, h.ResolutionAction)

	h, err = learner.LearnFromApproval(ctx, reviewed("V", priceTrace("10.50", "10.00")))
	require.NoError(t, err)
	assert.Equal(t, int64(7), *h.LearnedCondition.MaxVariancePercent)
	assert.Equal(t, 2, h.TriggerCount)
	assert.InDelta(t, 0.667, h.ConfidenceScore, 1e-3)

	all, err := store.ListHeuristics(ctx, "V")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].TriggerCount)
}

func TestLearnFromApproval_ConfidenceNeverDecreases(t *testing.T) {
	store := newStore(t)
	learner := learning.NewLearner(store, learning.DefaultConfig(), quietLogger())
	ctx := context.Background()

	prev := 0.0
	for i := 0; i < 6; i++ {
		h, err := learner.LearnFromApproval(ctx, reviewed("V", priceTrace("10.30", "10.00")))
		require.NoError(t, err)
		assert.Greater(t, h.ConfidenceScore, prev)
		assert.Less(t, h.ConfidenceScore, 1.0)
		prev = h.ConfidenceScore
	}
	assert.InDelta(t, learning.Confidence(6), prev, 1e-9)
}

func TestLearnFromApproval_LargerVarianceCreatesNewHeuristic(t *testing.T) {
	store := newStore(t)
	learner := learning.NewLearner(store, learning.DefaultConfig(), quietLogger())
	ctx := context.Background()

	_, err := learner.LearnFromApproval(ctx, reviewed("V", priceTrace("10.70", "10.00")))
	require.NoError(t, err)
	h, err := learner.LearnFromApproval(ctx, reviewed("V", priceTrace("11.20", "10.00")))
	require.NoError(t, err)

	assert.Equal(t, int64(12), *h.LearnedCondition.MaxVariancePercent)
	assert.Equal(t, 1, h.TriggerCount)

	all, err := store.ListHeuristics(ctx, "V")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLearnFromApproval_TightestCoveringBoundWins(t *testing.T) {
	store := newStore(t)
	learner := learning.NewLearner(store, learning.DefaultConfig(), quietLogger())
	ctx := context.Background()

	_, err := learner.LearnFromApproval(ctx, reviewed("V", priceTrace("11.20", "10.00"))) // 12%
	require.NoError(t, err)
	_, err = learner.LearnFromApproval(ctx, reviewed("V", priceTrace("10.70", "10.00"))) // 7%
	require.NoError(t, err)

	h, err := learner.LearnFromApproval(ctx, reviewed("V", priceTrace("10.40", "10.00"))) // 4%
	require.NoError(t, err)
	assert.Equal(t, int64(7), *h.LearnedCondition.MaxVariancePercent)
	assert.Equal(t, 2, h.TriggerCount)
}

func TestLearnFromApproval_VendorsAreSeparate(t *testing.T) {
	store := newStore(t)
	learner := learning.NewLearner(store, learning.DefaultConfig(), quietLogger())
	ctx := context.Background()

	_, err := learner.LearnFromApproval(ctx, reviewed("V", priceTrace("10.70", "10.00")))
	require.NoError(t, err)
	h, err := learner.LearnFromApproval(ctx, reviewed("W", priceTrace("10.70", "10.00")))
	require.NoError(t, err)
	assert.Equal(t, 1, h.TriggerCount)
}

func TestLearnFromApproval_NothingToLearn(t *testing.T) {
	store := newStore(t)
	learner := learning.NewLearner(store, learning.DefaultConfig(), quietLogger())

	var trace ap.Trace
	trace.Add("Final Result", ap.CheckFinal, ap.TracePass, "ok", ap.TraceDetails{})

	h, err := learner.LearnFromApproval(context.Background(), reviewed("V", trace))
	require.NoError(t, err)
	assert.Nil(t, h)

	all, err := store.ListHeuristics(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLearnFromApproval_Quantity(t *testing.T) {
	store := newStore(t)
	learner := learning.NewLearner(store, learning.DefaultConfig(), quietLogger())

	h, err := learner.LearnFromApproval(context.Background(), reviewed("V", quantityTrace("10", "8")))
	require.NoError(t, err)
	assert.Equal(t, ap.QuantityMismatchException, h.ExceptionType)
	assert.True(t, h.LearnedCondition.MaxQuantityDiff.Equal(d("2")))
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

func TestSuggest_RequiresConfidence(t *testing.T) {
	store := newStore(t)
	learner := learning.NewLearner(store, learning.DefaultConfig(), quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := learner.LearnFromApproval(ctx, reviewed("V", priceTrace("10.70", "10.00")))
		require.NoError(t, err)
	}
	s, err := learner.Suggest(ctx, reviewed("V", priceTrace("10.50", "10.00")))
	require.NoError(t, err)
	assert.Nil(t, s, "0.75 is below the suggestion bar")

	for i := 0; i < 2; i++ {
		_, err := learner.LearnFromApproval(ctx, reviewed("V", priceTrace("10.70", "10.00")))
		require.NoError(t, err)
	}
	s, err = learner.Suggest(ctx, reviewed("V", priceTrace("10.50", "10.00")))
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Contains(t, s.Message, "up to 7% for V")
	assert.Equal(t, 5, s.Heuristic.TriggerCount)
}

func TestSuggest_NotCoveredOrNotInReview(t *testing.T) {
	store := newStore(t)
	learner := learning.NewLearner(store, learning.DefaultConfig(), quietLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := learner.LearnFromApproval(ctx, reviewed("V", priceTrace("10.70", "10.00")))
		require.NoError(t, err)
	}

	s, err := learner.Suggest(ctx, reviewed("V", priceTrace("10.90", "10.00")))
	require.NoError(t, err)
	assert.Nil(t, s, "9% is outside the learned 7%")

	inv := reviewed("V", priceTrace("10.50", "10.00"))
	inv.Status = ap.StatusMatched
	s, err = learner.Suggest(ctx, inv)
	require.NoError(t, err)
	assert.Nil(t, s)
}
