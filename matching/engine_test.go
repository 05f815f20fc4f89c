package matching_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/matching"
	"github.com/warp/ap-engine/store/sqlite"
	"github.com/warp/ap-engine/units"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEngine(t *testing.T) (*matching.Engine, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m, err := matching.NewMatcher(matching.StrategyLevenshtein, matching.DefaultThreshold)
	require.NoError(t, err)
	return matching.NewEngine(store, m, matching.DefaultConfig(), quietLogger()), store
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func line(desc, qty, unit, price string) ap.LineItem {
	li := ap.LineItem{Description: desc, Quantity: decimal.RequireFromString(qty), Unit: unit}
	if price != "" {
		li.UnitPrice = dec(price)
	}
	return units.Normalize(li)
}

func savePO(t *testing.T, store *sqlite.Store, number string, items ...ap.LineItem) {
	t.Helper()
	require.NoError(t, store.SavePurchaseOrder(context.Background(), &ap.PurchaseOrder{
		PONumber:   number,
		VendorName: "Acme Supplies",
		OrderDate:  ap.NewDate(2024, time.March, 1),
		LineItems:  items,
	}))
}

func saveGRN(t *testing.T, store *sqlite.Store, number, poNumber string, items ...ap.LineItem) {
	t.Helper()
	require.NoError(t, store.SaveGoodsReceipt(context.Background(), &ap.GoodsReceiptNote{
		GRNNumber:    number,
		PONumber:     poNumber,
		ReceivedDate: ap.NewDate(2024, time.March, 5),
		LineItems:    items,
	}))
}

func saveInvoice(t *testing.T, store *sqlite.Store, inv *ap.Invoice) *ap.Invoice {
	t.Helper()
	if inv.VendorName == "" {
		inv.VendorName = "Acme Supplies"
	}
	if inv.InvoiceDate.IsZero() {
		inv.InvoiceDate = ap.NewDate(2024, time.March, 10)
	}
	require.NoError(t, store.CreateInvoice(context.Background(), inv))
	return inv
}

func stepStatus(trace ap.Trace, kind ap.CheckKind) []ap.TraceStatus {
	var out []ap.TraceStatus
	for _, e := range trace {
		if e.Kind == kind {
			out = append(out, e.Status)
		}
	}
	return out
}

// outline flattens a trace to comparable text.
func outline(trace ap.Trace) []string {
	out := make([]string, 0, len(trace))
	for _, e := range trace {
		out = append(out, e.Step+"|"+string(e.Status)+"|"+e.Message)
	}
	return out
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestRunMatch_ScenarioA_CleanThreeWayMatch(t *testing.T) {
	// GIVEN: PO 10 pcs @ $50, GRN 10 pcs, invoice 10 pcs @ $50
	// WHEN: The engine runs
	// THEN: Every entry is PASS or INFO and the invoice is matched

	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-78001", line("Industrial Widget", "10", "pieces", "50"))
	saveGRN(t, store, "GRN-84001", "PO-78001", line("Industrial Widget", "10", "pcs", ""))
	item := line("Industrial Widget", "10", "each", "50")
	item.LineTotal = dec("500")
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID:  "INV-1",
		GRNNumbers: []string{"GRN-84001"},
		LineItems:  []ap.LineItem{item},
		Subtotal:   dec("500"),
		Tax:        dec("50"),
		GrandTotal: dec("550"),
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, ap.StatusMatched, got.Status)
	assert.Empty(t, got.ReviewCategory)
	assert.Empty(t, got.MatchTrace.Failures())
	assert.Equal(t, []ap.TraceStatus{ap.TracePass}, stepStatus(got.MatchTrace, ap.CheckGRNItem))
	assert.Equal(t, []ap.TraceStatus{ap.TracePass, ap.TracePass}, stepStatus(got.MatchTrace, ap.CheckFinancial))
	last := got.MatchTrace[len(got.MatchTrace)-1]
	assert.Equal(t, "Final Result", last.Step)
	assert.Equal(t, ap.TracePass, last.Status)

	stored, err := store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, outline(got.MatchTrace), outline(stored.MatchTrace))
}

func TestRunMatch_ScenarioB_PriceOutsideTolerance(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-1", line("Bolt Pack", "100", "pcs", "10.00"))
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID: "INV-B",
		PONumbers: []string{"PO-1"},
		LineItems: []ap.LineItem{line("Bolt Pack", "100", "pcs", "11.00")},
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, ap.StatusNeedsReview, got.Status)
	assert.Equal(t, ap.CategoryDataMismatch, got.ReviewCategory)

	first, ok := got.MatchTrace.FirstFailure()
	require.True(t, ok)
	assert.Equal(t, "Item 'Bolt Pack' - Price Match", first.Step)
	assert.True(t, first.Details.InvoicePrice.Equal(decimal.NewFromInt(11)))
	assert.True(t, first.Details.POPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, first.Details.TolerancePercent.Equal(decimal.NewFromInt(5)))
}

func TestRunMatch_VendorToleranceOverridesDefault(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertVendorSetting(ctx, &ap.VendorSetting{VendorName: "Acme Supplies", PriceTolerancePercent: dec("12")}))
	savePO(t, store, "PO-1", line("Bolt Pack", "100", "pcs", "10.00"))
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID: "INV-B",
		PONumbers: []string{"PO-1"},
		LineItems: []ap.LineItem{line("Bolt Pack", "100", "pcs", "11.00")},
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ap.StatusMatched, got.Status)
	assert.Equal(t, []ap.TraceStatus{ap.TracePass}, stepStatus(got.MatchTrace, ap.CheckPrice))
}

func TestRunMatch_ScenarioC_MixedUnitsWithinTolerance(t *testing.T) {
	// GIVEN: PO 2 tons @ $1800/ton, GRN 2000 kg, invoice 4409 lbs @ $0.82/lb
	// WHEN: The engine runs
	// THEN: Normalized quantity and price checks pass

	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-S", line("Steel Coil", "2", "tons", "1800"))
	saveGRN(t, store, "GRN-S", "PO-S", line("Steel Coil", "2000", "kg", ""))
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID:  "INV-C",
		PONumbers:  []string{"PO-S"},
		GRNNumbers: []string{"GRN-S"},
		LineItems:  []ap.LineItem{line("Steel Coil", "4409", "lbs", "0.82")},
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, ap.StatusMatched, got.Status, "%+v", got.MatchTrace.Failures())
	assert.Equal(t, []ap.TraceStatus{ap.TracePass}, stepStatus(got.MatchTrace, ap.CheckQuantity))
	assert.Equal(t, []ap.TraceStatus{ap.TracePass}, stepStatus(got.MatchTrace, ap.CheckPrice))
}

func TestRunMatch_ScenarioD_DuplicateOfApprovedInvoice(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-1", line("Widget", "1", "pcs", "5"))
	first := saveInvoice(t, store, &ap.Invoice{InvoiceID: "INV-D", PONumbers: []string{"PO-1"}, LineItems: []ap.LineItem{line("Widget", "1", "pcs", "5")}})
	got, err := engine.RunMatch(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, ap.StatusMatched, got.Status)

	second := saveInvoice(t, store, &ap.Invoice{InvoiceID: "INV-D", PONumbers: []string{"PO-1"}, LineItems: []ap.LineItem{line("Widget", "1", "pcs", "5")}})
	got, err = engine.RunMatch(ctx, second.ID)
	require.NoError(t, err)

	assert.Equal(t, ap.StatusNeedsReview, got.Status)
	assert.Equal(t, ap.CategoryPolicyViolation, got.ReviewCategory)
	assert.Equal(t, []ap.TraceStatus{ap.TraceFail}, stepStatus(got.MatchTrace, ap.CheckDuplicate))
	first2, _ := got.MatchTrace.FirstFailure()
	assert.Equal(t, []int64{first.ID}, first2.Details.Duplicates)
}

// =============================================================================
// DISCOVERY & CATEGORIES
// =============================================================================

func TestRunMatch_NonPOInvoice(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID: "INV-NP",
		PONumbers: []string{"PO-does-not-exist"},
		LineItems: []ap.LineItem{line("Consulting", "1", "", "900")},
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, ap.StatusNeedsReview, got.Status)
	assert.Equal(t, ap.CategoryMissingDocument, got.ReviewCategory)
	require.Len(t, got.MatchTrace, 1)
	assert.Equal(t, ap.TraceInfo, got.MatchTrace[0].Status)
	assert.Equal(t, ap.CheckNonPO, got.MatchTrace[0].Kind)
}

func TestRunMatch_DiscoversPOThroughGRN(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-T", line("Valve", "4", "ea", "25"))
	saveGRN(t, store, "GRN-T", "PO-T", line("Valve", "4", "ea", ""))
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID:  "INV-T",
		GRNNumbers: []string{"GRN-T"},
		LineItems:  []ap.LineItem{line("Valve", "4", "ea", "25")},
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ap.StatusMatched, got.Status)
	assert.Equal(t, []string{"PO-T"}, got.MatchTrace[1].Details.PONumbers)
}

func TestRunMatch_MissingItemOutranksOtherFailures(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-1", line("Widget", "1", "pcs", "5"))
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID:   "INV-M",
		PONumbers:   []string{"PO-1"},
		InvoiceDate: ap.NewDate(2024, time.February, 1),
		LineItems: []ap.LineItem{
			line("Widget", "1", "pcs", "9"),
			line("Hydraulic Pump", "1", "pcs", "500"),
		},
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ap.CategoryMissingDocument, got.ReviewCategory)
	assert.Equal(t, []ap.TraceStatus{ap.TraceFail}, stepStatus(got.MatchTrace, ap.CheckTiming))
}

func TestRunMatch_InvoiceBeforeOrderIsPolicyViolation(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-1", line("Widget", "1", "pcs", "5"))
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID:   "INV-EARLY",
		PONumbers:   []string{"PO-1"},
		InvoiceDate: ap.NewDate(2024, time.February, 1),
		LineItems:   []ap.LineItem{line("Widget", "1", "pcs", "5")},
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, ap.StatusNeedsReview, got.Status)
	assert.Equal(t, ap.CategoryPolicyViolation, got.ReviewCategory)
}

func TestRunMatch_QuantityAgainstGRNNotPO(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-1", line("Widget", "10", "pcs", "5"))
	saveGRN(t, store, "GRN-1", "PO-1", line("Widget", "8", "pcs", ""))
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID:  "INV-Q",
		GRNNumbers: []string{"GRN-1"},
		LineItems:  []ap.LineItem{line("Widget", "10", "pcs", "5")},
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)

	first, ok := got.MatchTrace.FirstFailure()
	require.True(t, ok)
	assert.Equal(t, ap.CheckQuantity, first.Kind)
	assert.True(t, first.Details.GRNQty.Equal(decimal.NewFromInt(8)))
	assert.Nil(t, first.Details.POQty)
	assert.Equal(t, ap.CategoryDataMismatch, got.ReviewCategory)
}

func TestRunMatch_PriceCheckedWhenPOQuantityMissing(t *testing.T) {
	// GIVEN: A PO line priced at $10 with no ordered quantity, a GRN for 10,
	//        and an invoice billing 10 at $11 (10% over a 5% tolerance)
	// WHEN: The engine runs
	// THEN: The price is still compared and fails

	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-1", line("Industrial Widget", "0", "pcs", "10"))
	saveGRN(t, store, "GRN-1", "PO-1", line("Industrial Widget", "10", "pcs", ""))
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID:  "INV-P",
		GRNNumbers: []string{"GRN-1"},
		LineItems:  []ap.LineItem{line("Industrial Widget", "10", "pcs", "11")},
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, ap.StatusNeedsReview, got.Status)
	assert.Equal(t, []ap.TraceStatus{ap.TraceFail}, stepStatus(got.MatchTrace, ap.CheckPrice))
	assert.Equal(t, []ap.TraceStatus{ap.TracePass}, stepStatus(got.MatchTrace, ap.CheckQuantity))
}

func TestRunMatch_GRNScopedToMatchedPO(t *testing.T) {
	// GIVEN: PO-A and PO-B both order "Widget" (5 and 10), each with its own
	//        GRN, and an invoice line for 10 that names PO-B
	// WHEN: The engine runs
	// THEN: The line pairs with PO-B's GRN and the quantity passes

	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-A", line("Widget", "5", "pcs", "4"))
	savePO(t, store, "PO-B", line("Widget", "10", "pcs", "4"))
	saveGRN(t, store, "GRN-A", "PO-A", line("Widget", "5", "pcs", ""))
	saveGRN(t, store, "GRN-B", "PO-B", line("Widget", "10", "pcs", ""))

	item := line("Widget", "10", "pcs", "4")
	item.PONumber = "PO-B"
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID:  "INV-G",
		GRNNumbers: []string{"GRN-A", "GRN-B"},
		LineItems:  []ap.LineItem{item},
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, ap.StatusMatched, got.Status, outline(got.MatchTrace))
	for _, e := range got.MatchTrace {
		switch e.Kind {
		case ap.CheckPOItem:
			assert.Equal(t, "Matched to item on PO PO-B.", e.Message)
		case ap.CheckGRNItem:
			assert.Equal(t, "Matched to GRN GRN-B.", e.Message)
		}
	}
}

func TestRunMatch_FinancialMismatch(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-1", line("Widget", "10", "pcs", "5"))
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID:  "INV-F",
		PONumbers:  []string{"PO-1"},
		LineItems:  []ap.LineItem{line("Widget", "10", "pcs", "5")},
		Subtotal:   dec("50"),
		Tax:        dec("5"),
		GrandTotal: dec("80"),
	})

	got, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, []ap.TraceStatus{ap.TracePass, ap.TraceFail}, stepStatus(got.MatchTrace, ap.CheckFinancial))
	assert.Equal(t, ap.CategoryDataMismatch, got.ReviewCategory)
}

func TestRunMatch_NoLineItems(t *testing.T) {
	engine, store := newTestEngine(t)
	savePO(t, store, "PO-1", line("Widget", "1", "pcs", "5"))
	inv := saveInvoice(t, store, &ap.Invoice{InvoiceID: "INV-E", PONumbers: []string{"PO-1"}})

	got, err := engine.RunMatch(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, []ap.TraceStatus{ap.TraceFail}, stepStatus(got.MatchTrace, ap.CheckLineItems))
}

// =============================================================================
// IDEMPOTENCE & ERRORS
// =============================================================================

func TestRunMatch_IdempotentTrace(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	savePO(t, store, "PO-1", line("Bolt Pack", "100", "pcs", "10.00"))
	inv := saveInvoice(t, store, &ap.Invoice{
		InvoiceID: "INV-I",
		PONumbers: []string{"PO-1"},
		LineItems: []ap.LineItem{line("Bolt Pack", "100", "pcs", "11.00")},
	})

	first, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)
	second, err := engine.RunMatch(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.ReviewCategory, second.ReviewCategory)
	assert.Equal(t, outline(first.MatchTrace), outline(second.MatchTrace))
}

func TestRunMatch_UnknownInvoiceIsError(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.RunMatch(context.Background(), 404)
	assert.True(t, ap.IsNotFound(err))
}

// failingStore breaks PO lookups to simulate an infrastructure failure.
type failingStore struct {
	*sqlite.Store
}

func (f failingStore) GetPurchaseOrder(ctx context.Context, poNumber string) (*ap.PurchaseOrder, error) {
	return nil, errors.New("disk on fire")
}

func TestRunMatchSafely_RecordsEngineError(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m, err := matching.NewMatcher("", 0)
	require.NoError(t, err)
	engine := matching.NewEngine(failingStore{store}, m, matching.DefaultConfig(), quietLogger())

	inv := saveInvoice(t, store, &ap.Invoice{InvoiceID: "INV-X", PONumbers: []string{"PO-1"}})

	got, err := engine.RunMatchSafely(context.Background(), inv.ID)
	assert.Error(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ap.StatusNeedsReview, got.Status)
	assert.NotEmpty(t, got.ReviewCategory)
	require.Len(t, got.MatchTrace, 1)
	assert.Equal(t, "Engine Error", got.MatchTrace[0].Step)
	assert.Contains(t, got.MatchTrace[0].Details.Error, "disk on fire")
}
