/*
Package matching implements the invoice-centric 3-way match.

PURPOSE:
  Given an invoice, find every related PO (directly and through linked GRNs),
  compare each billed line against the ordered and received lines, and decide
  whether the invoice is matched or needs review. Every decision is appended
  to an ordered trace that replaces the previous run's trace.

KEY CONCEPTS:
  - Gather: loads related documents, vendor tolerance, duplicates (I/O)
  - Evaluate: the pure decision function over gathered inputs
  - RunMatch: Gather + Evaluate + persist

BUSINESS FAILURES VS ERRORS:
  A price mismatch or missing item is a FAIL entry, never an error. RunMatch
  returns an error only when the invoice cannot be loaded or saved.

SEE ALSO:
  - fuzzy.go: Line-item description matching
  - units/units.go: Normalized quantities and prices compared here
*/
package matching

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/ap-engine/ap"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the engine's global tolerances. Vendor overrides for price
// tolerance are resolved once per run.
type Config struct {
	PriceTolerancePercent decimal.Decimal
	// QuantityTolerance is relative: 0.001 accepts a 0.1% difference.
	QuantityTolerance decimal.Decimal
	// FinancialTolerance is relative and absorbs rounding in totals.
	FinancialTolerance decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		PriceTolerancePercent: decimal.NewFromInt(5),
		QuantityTolerance:     decimal.RequireFromString("0.001"),
		FinancialTolerance:    decimal.RequireFromString("0.01"),
	}
}

// Store is the persistence the engine reads and writes.
type Store interface {
	ap.InvoiceStore
	ap.DocumentStore
	ap.VendorStore
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store   Store
	matcher Matcher
	cfg     Config
	log     logrus.FieldLogger
}

func NewEngine(store Store, matcher Matcher, cfg Config, log logrus.FieldLogger) *Engine {
	return &Engine{store: store, matcher: matcher, cfg: cfg, log: log}
}

// Inputs is everything Evaluate needs besides the invoice itself.
type Inputs struct {
	POs  []ap.PurchaseOrder
	GRNs []ap.GoodsReceiptNote
	// VendorTolerance overrides Config.PriceTolerancePercent when set.
	VendorTolerance *decimal.Decimal
	// Duplicates are row IDs of approved invoices sharing vendor and invoice_id.
	Duplicates []int64
}

// Result is the outcome of one evaluation.
type Result struct {
	Status   ap.Status
	Category ap.ReviewCategory
	Trace    ap.Trace
}

// RunMatch re-evaluates one invoice and persists status, category and trace.
func (e *Engine) RunMatch(ctx context.Context, invoiceRowID int64) (*ap.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invoiceRowID)
	if err != nil {
		return nil, fmt.Errorf("load invoice %d: %w", invoiceRowID, err)
	}

	if inv.Status != ap.StatusMatching {
		inv.SetStatus(ap.StatusMatching)
		if err := e.store.UpdateInvoice(ctx, inv); err != nil {
			return nil, fmt.Errorf("mark invoice %d matching: %w", invoiceRowID, err)
		}
	}

	in, err := e.Gather(ctx, inv)
	if err != nil {
		return nil, err
	}

	res := e.Evaluate(inv, in)
	inv.Settle(res.Status, res.Category, res.Trace)
	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("save match result for invoice %d: %w", invoiceRowID, err)
	}

	e.log.WithFields(logrus.Fields{
		"invoice_id": inv.InvoiceID,
		"row_id":     inv.ID,
		"status":     inv.Status,
		"category":   inv.ReviewCategory,
		"failures":   len(res.Trace.Failures()),
	}).Info("match completed")
	return inv, nil
}

// RunMatchSafely runs the engine and converts any error or panic into an
// "Engine Error" trace on the invoice, so one bad invoice never stops a batch.
// The original error is still returned for logging.
func (e *Engine) RunMatchSafely(ctx context.Context, invoiceRowID int64) (inv *ap.Invoice, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
		if err != nil {
			inv = e.RecordEngineError(ctx, invoiceRowID, err)
		}
	}()
	return e.RunMatch(ctx, invoiceRowID)
}

// RecordEngineError settles the invoice in review with a single "Engine
// Error" entry naming cause. Returns nil if the invoice cannot be updated.
func (e *Engine) RecordEngineError(ctx context.Context, invoiceRowID int64, cause error) *ap.Invoice {
	log := e.log.WithField("row_id", invoiceRowID)
	inv, err := e.store.GetInvoice(ctx, invoiceRowID)
	if err != nil {
		log.WithError(err).Error("cannot record engine error: invoice not loadable")
		return nil
	}
	var trace ap.Trace
	trace.Add("Engine Error", ap.CheckEngineError, ap.TraceFail,
		"The matching engine failed on this invoice. Re-run the match after fixing the cause.",
		ap.TraceDetails{Error: cause.Error()})
	inv.Settle(ap.StatusNeedsReview, ap.CategoryDataMismatch, trace)
	if err := e.store.UpdateInvoice(ctx, inv); err != nil {
		log.WithError(err).Error("cannot record engine error")
		return nil
	}
	log.WithError(cause).Warn("engine error recorded on invoice")
	return inv
}

// Gather resolves the invoice's links into documents. Missing PO or GRN
// numbers are skipped; they may arrive in a later batch.
func (e *Engine) Gather(ctx context.Context, inv *ap.Invoice) (Inputs, error) {
	var in Inputs
	seenPO := make(map[string]bool)

	addPO := func(number string) error {
		if number == "" || seenPO[number] {
			return nil
		}
		po, err := e.store.GetPurchaseOrder(ctx, number)
		if ap.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load PO %s: %w", number, err)
		}
		seenPO[number] = true
		in.POs = append(in.POs, *po)
		return nil
	}

	for _, number := range inv.AllPONumbers() {
		if err := addPO(number); err != nil {
			return Inputs{}, err
		}
	}

	seenGRN := make(map[string]bool)
	for _, number := range inv.GRNNumbers {
		if number == "" || seenGRN[number] {
			continue
		}
		grn, err := e.store.GetGoodsReceipt(ctx, number)
		if ap.IsNotFound(err) {
			continue
		}
		if err != nil {
			return Inputs{}, fmt.Errorf("load GRN %s: %w", number, err)
		}
		seenGRN[number] = true
		in.GRNs = append(in.GRNs, *grn)
	}
	for _, grn := range in.GRNs {
		if err := addPO(grn.PONumber); err != nil {
			return Inputs{}, err
		}
	}

	vs, err := e.store.GetVendorSetting(ctx, inv.VendorName)
	switch {
	case err == nil:
		in.VendorTolerance = vs.PriceTolerancePercent
	case !ap.IsNotFound(err):
		return Inputs{}, fmt.Errorf("load vendor setting %q: %w", inv.VendorName, err)
	}

	approved := []ap.Status{ap.StatusMatched, ap.StatusPendingPayment, ap.StatusPaid}
	in.Duplicates, err = e.store.FindDuplicateInvoices(ctx, inv.VendorName, inv.InvoiceID, inv.ID, approved)
	if err != nil {
		return Inputs{}, fmt.Errorf("duplicate lookup: %w", err)
	}
	return in, nil
}

// =============================================================================
// EVALUATION - Pure, no I/O
// =============================================================================

// Evaluate runs every check against the gathered inputs. The same inputs
// always produce the same trace.
func (e *Engine) Evaluate(inv *ap.Invoice, in Inputs) Result {
	var trace ap.Trace

	if len(in.POs) == 0 {
		trace.Add("Document Validation", ap.CheckNonPO, ap.TraceInfo,
			"This is a Non-PO Invoice. It requires manual review and GL coding.", ap.TraceDetails{})
		return Result{Status: ap.StatusNeedsReview, Category: ap.CategoryMissingDocument, Trace: trace}
	}

	trace.Add("Initialisation", ap.CheckInit, ap.TraceInfo,
		fmt.Sprintf("Starting validation for Invoice %s.", inv.InvoiceID), ap.TraceDetails{})

	poNumbers := make([]string, 0, len(in.POs))
	for _, po := range in.POs {
		poNumbers = append(poNumbers, po.PONumber)
	}
	grnNumbers := make([]string, 0, len(in.GRNs))
	for _, grn := range in.GRNs {
		grnNumbers = append(grnNumbers, grn.GRNNumber)
	}
	trace.Add("Document Discovery", ap.CheckDiscovery, ap.TraceInfo,
		fmt.Sprintf("Found %d related PO(s) and %d related GRN(s).", len(in.POs), len(in.GRNs)),
		ap.TraceDetails{PONumbers: poNumbers, GRNNumbers: grnNumbers})

	tolerance := e.cfg.PriceTolerancePercent
	if in.VendorTolerance != nil {
		tolerance = *in.VendorTolerance
	}
	trace.Add("Configuration", ap.CheckConfiguration, ap.TraceInfo,
		fmt.Sprintf("Using price tolerance of %s%% for vendor '%s'.", tolerance.String(), inv.VendorName),
		ap.TraceDetails{TolerancePercent: ap.Dec(tolerance)})

	if len(in.Duplicates) > 0 {
		trace.Add("Duplicate Check", ap.CheckDuplicate, ap.TraceFail,
			fmt.Sprintf("Potential duplicate of %d already approved invoice(s) with ID %s.", len(in.Duplicates), inv.InvoiceID),
			ap.TraceDetails{Duplicates: in.Duplicates})
	} else {
		trace.Add("Duplicate Check", ap.CheckDuplicate, ap.TracePass, "No potential duplicates found.", ap.TraceDetails{})
	}

	if len(inv.LineItems) == 0 {
		trace.Add("Line Item Validation", ap.CheckLineItems, ap.TraceFail,
			"Invoice contains no line items to validate.", ap.TraceDetails{})
	} else {
		poLookup := newPOLookup(in.POs)
		grnLookup := newGRNLookup(in.GRNs)
		for _, item := range inv.LineItems {
			e.checkLine(&trace, inv, item, poLookup, grnLookup, tolerance)
		}
	}

	e.checkFinancials(&trace, inv)

	if trace.HasFailures() {
		trace.Add("Final Result", ap.CheckFinal, ap.TraceFail,
			"Invoice requires manual review due to one or more validation failures.", ap.TraceDetails{})
		return Result{Status: ap.StatusNeedsReview, Category: Categorize(trace), Trace: trace}
	}
	trace.Add("Final Result", ap.CheckFinal, ap.TracePass,
		"All checks passed. Invoice is matched.", ap.TraceDetails{})
	return Result{Status: ap.StatusMatched, Trace: trace}
}

func (e *Engine) checkLine(trace *ap.Trace, inv *ap.Invoice, item ap.LineItem, pos *poLookup, grns *grnLookup, tolerance decimal.Decimal) {
	prefix := fmt.Sprintf("Item '%s'", item.Description)

	poKey, score, ok := e.matcher.Match(item.Description, pos.candidatesFor(item.PONumber))
	if !ok {
		trace.Add(prefix+" - PO Item Match", ap.CheckPOItem, ap.TraceFail,
			"Item not found on any linked POs.", ap.TraceDetails{InvoiceItem: item.Description})
		return
	}
	poLine := pos.lines[poKey]
	trace.Add(prefix+" - PO Item Match", ap.CheckPOItem, ap.TracePass,
		fmt.Sprintf("Matched to item on PO %s.", poLine.po.PONumber),
		ap.TraceDetails{InvoiceItem: item.Description, POItemKey: poKey, Score: score})

	checkTiming(trace, prefix, inv.InvoiceDate, poLine.po)

	var grnItem *ap.LineItem
	if grnCandidates := grns.candidatesFor(poLine.po.PONumber); len(grnCandidates) > 0 {
		grnKey, grnScore, ok := e.matcher.Match(item.Description, grnCandidates)
		if !ok {
			trace.Add(prefix+" - GRN Item Match", ap.CheckGRNItem, ap.TraceFail,
				fmt.Sprintf("Description '%s' doesn't match any GRN line item.", item.Description),
				ap.TraceDetails{InvoiceItem: item.Description})
		} else {
			line := grns.lines[grnKey]
			grnItem = &line.item
			trace.Add(prefix+" - GRN Item Match", ap.CheckGRNItem, ap.TracePass,
				fmt.Sprintf("Matched to GRN %s.", line.grnNumber),
				ap.TraceDetails{InvoiceItem: item.Description, GRNItemKey: grnKey, Score: grnScore})
		}
	}

	e.checkQuantity(trace, prefix, item, poLine.item, grnItem)
	checkPrice(trace, prefix, item, poLine.item, tolerance)
}

func checkTiming(trace *ap.Trace, prefix string, invoiceDate ap.Date, po *ap.PurchaseOrder) {
	step := prefix + " - Timing Check"
	if invoiceDate.IsZero() || po.OrderDate.IsZero() {
		trace.Add(step, ap.CheckTiming, ap.TraceInfo, "Skipped: invoice or PO date missing.", ap.TraceDetails{})
		return
	}
	details := ap.TraceDetails{InvoiceDate: invoiceDate.String(), OrderDate: po.OrderDate.String()}
	if invoiceDate.Before(po.OrderDate) {
		trace.Add(step, ap.CheckTiming, ap.TraceFail,
			fmt.Sprintf("Invoice date %s precedes PO %s order date %s.", invoiceDate, po.PONumber, po.OrderDate), details)
		return
	}
	trace.Add(step, ap.CheckTiming, ap.TracePass, "Invoice date is on or after the PO order date.", details)
}

func (e *Engine) checkQuantity(trace *ap.Trace, prefix string, item, poItem ap.LineItem, grnItem *ap.LineItem) {
	step := prefix + " - Quantity Match"
	billed := item.NormalizedQty
	details := ap.TraceDetails{InvoiceItem: item.Description, InvoiceQty: ap.Dec(billed), Unit: item.NormalizedUnit}

	source, expected := "PO", poItem.NormalizedQty
	if grnItem != nil {
		source, expected = "GRN", grnItem.NormalizedQty
		details.GRNQty = ap.Dec(expected)
	} else {
		details.POQty = ap.Dec(expected)
	}

	if !approxEqual(billed, expected, e.cfg.QuantityTolerance) {
		trace.Add(step, ap.CheckQuantity, ap.TraceFail,
			fmt.Sprintf("Billed quantity (%s) differs from %s quantity (%s).", billed.String(), source, expected.String()), details)
		return
	}
	trace.Add(step, ap.CheckQuantity, ap.TracePass,
		fmt.Sprintf("Billed quantity (%s) matches %s quantity.", billed.String(), source), details)
}

func checkPrice(trace *ap.Trace, prefix string, item, poItem ap.LineItem, tolerance decimal.Decimal) {
	step := prefix + " - Price Match"
	if item.NormalizedUnitPrice == nil || poItem.NormalizedUnitPrice == nil {
		trace.Add(step, ap.CheckPrice, ap.TraceInfo, "Skipped: unit price missing on invoice or PO.", ap.TraceDetails{})
		return
	}
	invPrice, poPrice := *item.NormalizedUnitPrice, *poItem.NormalizedUnitPrice
	details := ap.TraceDetails{
		InvoiceItem:      item.Description,
		InvoicePrice:     ap.Dec(invPrice),
		POPrice:          ap.Dec(poPrice),
		TolerancePercent: ap.Dec(tolerance),
		Unit:             item.NormalizedUnit,
	}
	allowed := tolerance.Div(decimal.NewFromInt(100)).Mul(poPrice.Abs())
	if invPrice.Sub(poPrice).Abs().GreaterThan(allowed) {
		trace.Add(step, ap.CheckPrice, ap.TraceFail,
			fmt.Sprintf("Invoice price ($%s) is outside tolerance of PO price ($%s).", invPrice.StringFixed(2), poPrice.StringFixed(2)), details)
		return
	}
	trace.Add(step, ap.CheckPrice, ap.TracePass, "Invoice price is within tolerance.", details)
}

func (e *Engine) checkFinancials(trace *ap.Trace, inv *ap.Invoice) {
	if inv.Subtotal == nil {
		trace.Add("Financial Check - Subtotal", ap.CheckFinancial, ap.TraceInfo,
			"Skipped: invoice has no subtotal.", ap.TraceDetails{})
		return
	}

	sum := decimal.Zero
	for _, li := range inv.LineItems {
		if total, ok := li.Total(); ok {
			sum = sum.Add(total)
		}
	}
	details := ap.TraceDetails{LineTotalSum: ap.Dec(sum), Subtotal: inv.Subtotal}
	if approxEqual(sum, *inv.Subtotal, e.cfg.FinancialTolerance) {
		trace.Add("Financial Check - Subtotal", ap.CheckFinancial, ap.TracePass,
			"Line totals agree with the subtotal.", details)
	} else {
		trace.Add("Financial Check - Subtotal", ap.CheckFinancial, ap.TraceFail,
			fmt.Sprintf("Line totals (%s) do not match subtotal (%s).", sum.StringFixed(2), inv.Subtotal.StringFixed(2)), details)
	}

	if inv.Tax == nil || inv.GrandTotal == nil {
		trace.Add("Financial Check - Grand Total", ap.CheckFinancial, ap.TraceInfo,
			"Skipped: tax or grand total missing.", ap.TraceDetails{})
		return
	}
	expected := inv.Subtotal.Add(*inv.Tax)
	details = ap.TraceDetails{Subtotal: inv.Subtotal, Tax: inv.Tax, GrandTotal: inv.GrandTotal}
	if approxEqual(expected, *inv.GrandTotal, e.cfg.FinancialTolerance) {
		trace.Add("Financial Check - Grand Total", ap.CheckFinancial, ap.TracePass,
			"Subtotal plus tax agrees with the grand total.", details)
		return
	}
	trace.Add("Financial Check - Grand Total", ap.CheckFinancial, ap.TraceFail,
		fmt.Sprintf("Subtotal plus tax (%s) does not match grand total (%s).", expected.StringFixed(2), inv.GrandTotal.StringFixed(2)), details)
}

// approxEqual compares with a tolerance relative to the larger magnitude.
func approxEqual(a, b, relTol decimal.Decimal) bool {
	if a.Equal(b) {
		return true
	}
	scale := decimal.Max(a.Abs(), b.Abs())
	return a.Sub(b).Abs().LessThanOrEqual(scale.Mul(relTol))
}

// Categorize picks the review category by priority over the FAIL entries.
func Categorize(trace ap.Trace) ap.ReviewCategory {
	category := ap.CategoryDataMismatch
	for _, f := range trace.Failures() {
		switch f.Kind {
		case ap.CheckPOItem, ap.CheckGRNItem:
			return ap.CategoryMissingDocument
		case ap.CheckDuplicate, ap.CheckTiming:
			category = ap.CategoryPolicyViolation
		}
	}
	return category
}

// =============================================================================
// LOOKUPS - Lines keyed by description plus owning document number
// =============================================================================

func lineKey(description, docNumber string) string {
	return description + "##" + docNumber
}

type poLine struct {
	item ap.LineItem
	po   *ap.PurchaseOrder
}

type poLookup struct {
	lines      map[string]poLine
	candidates []Candidate
	byPO       map[string][]Candidate
}

func newPOLookup(pos []ap.PurchaseOrder) *poLookup {
	l := &poLookup{lines: make(map[string]poLine), byPO: make(map[string][]Candidate)}
	for i := range pos {
		po := &pos[i]
		for _, item := range po.LineItems {
			if strings.TrimSpace(item.Description) == "" {
				continue
			}
			key := lineKey(item.Description, po.PONumber)
			if _, dup := l.lines[key]; dup {
				continue
			}
			l.lines[key] = poLine{item: item, po: po}
			c := Candidate{Key: key, Text: item.Description}
			l.candidates = append(l.candidates, c)
			l.byPO[po.PONumber] = append(l.byPO[po.PONumber], c)
		}
	}
	return l
}

// candidatesFor narrows to one PO when the invoice line names a linked PO.
func (l *poLookup) candidatesFor(poNumber string) []Candidate {
	if scoped, ok := l.byPO[poNumber]; ok && poNumber != "" {
		return scoped
	}
	return l.candidates
}

type grnLine struct {
	item      ap.LineItem
	grnNumber string
}

type grnLookup struct {
	lines      map[string]grnLine
	candidates []Candidate
	byPO       map[string][]Candidate
}

func newGRNLookup(grns []ap.GoodsReceiptNote) *grnLookup {
	l := &grnLookup{lines: make(map[string]grnLine), byPO: make(map[string][]Candidate)}
	for _, grn := range grns {
		for _, item := range grn.LineItems {
			if strings.TrimSpace(item.Description) == "" {
				continue
			}
			key := lineKey(item.Description, grn.GRNNumber)
			if _, dup := l.lines[key]; dup {
				continue
			}
			l.lines[key] = grnLine{item: item, grnNumber: grn.GRNNumber}
			c := Candidate{Key: key, Text: item.Description}
			l.candidates = append(l.candidates, c)
			if grn.PONumber != "" {
				l.byPO[grn.PONumber] = append(l.byPO[grn.PONumber], c)
			}
		}
	}
	return l
}

// candidatesFor narrows to the GRNs received against the matched PO. GRNs
// that name no linked PO are only used when the PO has none of its own.
func (l *grnLookup) candidatesFor(poNumber string) []Candidate {
	if scoped, ok := l.byPO[poNumber]; ok {
		return scoped
	}
	return l.candidates
}
