package ap_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ap-engine/ap"
)

// =============================================================================
// STATUS SET
// =============================================================================

func TestParseStatus_AcceptsClosedSet(t *testing.T) {
	for _, st := range ap.AllStatuses {
		got, err := ap.ParseStatus(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
}

func TestParseStatus_RejectsUnknown(t *testing.T) {
	for _, s := range []string{"", "approved", "MATCHED", "needs review", " matched ", "matched\n"} {
		_, err := ap.ParseStatus(s)
		assert.ErrorIs(t, err, ap.ErrInvalidStatus, s)
		assert.True(t, ap.IsClientError(err))
	}
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ap.Status
		want     bool
	}{
		{ap.StatusIngested, ap.StatusMatching, true},
		{ap.StatusMatching, ap.StatusMatched, true},
		{ap.StatusMatching, ap.StatusNeedsReview, true},
		{ap.StatusNeedsReview, ap.StatusMatched, true},
		{ap.StatusNeedsReview, ap.StatusRejected, true},
		{ap.StatusNeedsReview, ap.StatusPendingVendorResponse, true},
		{ap.StatusNeedsReview, ap.StatusPendingInternalResponse, true},
		{ap.StatusPendingVendorResponse, ap.StatusMatched, true},
		{ap.StatusMatched, ap.StatusPendingPayment, true},
		{ap.StatusPendingPayment, ap.StatusPaid, true},
		{ap.StatusPaid, ap.StatusMatching, true},
		{ap.StatusRejected, ap.StatusMatching, true},

		{ap.StatusIngested, ap.StatusMatched, false},
		{ap.StatusMatched, ap.StatusPaid, false},
		{ap.StatusNeedsReview, ap.StatusPendingPayment, false},
		{ap.StatusPaid, ap.StatusMatched, false},
		{ap.StatusRejected, ap.StatusMatched, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ap.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestInvoiceSettle_ClearsCategoryUnlessNeedsReview(t *testing.T) {
	inv := &ap.Invoice{}

	inv.Settle(ap.StatusNeedsReview, ap.CategoryDataMismatch, nil)
	assert.Equal(t, ap.CategoryDataMismatch, inv.ReviewCategory)

	inv.Settle(ap.StatusMatched, ap.CategoryDataMismatch, nil)
	assert.Empty(t, inv.ReviewCategory)

	inv.Settle(ap.StatusNeedsReview, ap.CategoryPolicyViolation, nil)
	inv.SetStatus(ap.StatusRejected)
	assert.Empty(t, inv.ReviewCategory)
}

func TestInvoiceAllPONumbers_MergesHeaderAndLines(t *testing.T) {
	inv := &ap.Invoice{
		PONumbers: []string{"PO-1", "PO-2"},
		LineItems: []ap.LineItem{{PONumber: "PO-2"}, {PONumber: "PO-3"}, {}},
	}
	assert.Equal(t, []string{"PO-1", "PO-2", "PO-3"}, inv.AllPONumbers())
}

// =============================================================================
// CONDITIONS
// =============================================================================

func TestCondition_Covers(t *testing.T) {
	seven := ap.VarianceCondition(7)

	assert.True(t, seven.Covers(ap.VarianceCondition(7)))
	assert.True(t, seven.Covers(ap.VarianceCondition(3)))
	assert.False(t, seven.Covers(ap.VarianceCondition(8)))
	assert.False(t, seven.Covers(ap.QuantityCondition(decimal.NewFromInt(1))), "unconstrained field does not cover")
	assert.False(t, seven.Covers(ap.Condition{}), "empty observation is never covered")
}

func TestCondition_KeyIsCanonical(t *testing.T) {
	a := ap.QuantityCondition(decimal.RequireFromString("2.0"))
	b := ap.QuantityCondition(decimal.NewFromInt(2))
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, `{"max_variance_percent":7}`, ap.VarianceCondition(7).Key())
}

// =============================================================================
// DATES & TRACE
// =============================================================================

func TestDate_JSON(t *testing.T) {
	var got struct {
		A ap.Date `json:"a"`
		B ap.Date `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2024-03-01","b":null}`), &got))
	assert.Equal(t, ap.NewDate(2024, 3, 1), got.A)
	assert.True(t, got.B.IsZero())

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"2024-03-01","b":null}`, string(out))

	_, err = ap.ParseDate("01/03/2024")
	assert.ErrorIs(t, err, ap.ErrInvalidDate)
}

func TestTrace_FirstFailureSkipsFinalResult(t *testing.T) {
	var tr ap.Trace
	tr.Add("Initialisation", ap.CheckInit, ap.TraceInfo, "start", ap.TraceDetails{})
	tr.Add("Item 'Bolt' - Price Match", ap.CheckPrice, ap.TraceFail, "over", ap.TraceDetails{})
	tr.Add("Item 'Nut' - Quantity Match", ap.CheckQuantity, ap.TraceFail, "short", ap.TraceDetails{})
	tr.Add("Final Result", ap.CheckFinal, ap.TraceFail, "needs review", ap.TraceDetails{})

	first, ok := tr.FirstFailure()
	require.True(t, ok)
	assert.Equal(t, ap.CheckPrice, first.Kind)
	assert.Len(t, tr.Failures(), 2)
}
