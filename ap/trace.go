package ap

import "github.com/shopspring/decimal"

// =============================================================================
// MATCH TRACE - Ordered record of every decision in one engine run
// =============================================================================

type TraceStatus string

const (
	TracePass TraceStatus = "PASS"
	TraceFail TraceStatus = "FAIL"
	TraceInfo TraceStatus = "INFO"
)

// CheckKind tags an entry with the check that produced it, so consumers do not
// have to parse step labels.
type CheckKind string

const (
	CheckInit          CheckKind = "initialisation"
	CheckDiscovery     CheckKind = "discovery"
	CheckNonPO         CheckKind = "non_po"
	CheckConfiguration CheckKind = "configuration"
	CheckDuplicate     CheckKind = "duplicate"
	CheckLineItems     CheckKind = "line_items"
	CheckPOItem        CheckKind = "po_item"
	CheckGRNItem       CheckKind = "grn_item"
	CheckTiming        CheckKind = "timing"
	CheckQuantity      CheckKind = "quantity"
	CheckPrice         CheckKind = "price"
	CheckFinancial     CheckKind = "financial"
	CheckFinal         CheckKind = "final"
	CheckEngineError   CheckKind = "engine_error"
)

// TraceDetails carries the raw values a check compared. Only the fields the
// check uses are set.
type TraceDetails struct {
	PONumbers  []string `json:"po_numbers,omitempty"`
	GRNNumbers []string `json:"grn_numbers,omitempty"`
	Duplicates []int64  `json:"duplicate_invoice_ids,omitempty"`

	InvoiceItem string `json:"invoice_item,omitempty"`
	POItemKey   string `json:"po_item_key,omitempty"`
	GRNItemKey  string `json:"grn_item_key,omitempty"`
	Score       int    `json:"score,omitempty"`

	InvoiceDate string `json:"invoice_date,omitempty"`
	OrderDate   string `json:"order_date,omitempty"`

	Unit             string           `json:"unit,omitempty"`
	InvoiceQty       *decimal.Decimal `json:"invoice_qty,omitempty"`
	GRNQty           *decimal.Decimal `json:"grn_qty,omitempty"`
	POQty            *decimal.Decimal `json:"po_qty,omitempty"`
	InvoicePrice     *decimal.Decimal `json:"invoice_price,omitempty"`
	POPrice          *decimal.Decimal `json:"po_price,omitempty"`
	TolerancePercent *decimal.Decimal `json:"tolerance_percent,omitempty"`

	LineTotalSum *decimal.Decimal `json:"line_total_sum,omitempty"`
	Subtotal     *decimal.Decimal `json:"subtotal,omitempty"`
	Tax          *decimal.Decimal `json:"tax,omitempty"`
	GrandTotal   *decimal.Decimal `json:"grand_total,omitempty"`

	Error string `json:"error,omitempty"`
}

// TraceEntry is immutable once appended.
type TraceEntry struct {
	Step    string       `json:"step"`
	Kind    CheckKind    `json:"kind"`
	Status  TraceStatus  `json:"status"`
	Message string       `json:"message"`
	Details TraceDetails `json:"details"`
}

type Trace []TraceEntry

func (t *Trace) Add(step string, kind CheckKind, status TraceStatus, message string, details TraceDetails) {
	*t = append(*t, TraceEntry{Step: step, Kind: kind, Status: status, Message: message, Details: details})
}

// Failures returns the FAIL entries, excluding the synthetic final result.
func (t Trace) Failures() []TraceEntry {
	var out []TraceEntry
	for _, e := range t {
		if e.Status == TraceFail && e.Kind != CheckFinal {
			out = append(out, e)
		}
	}
	return out
}

// FirstFailure returns the earliest FAIL entry, which is the root cause.
func (t Trace) FirstFailure() (TraceEntry, bool) {
	for _, e := range t {
		if e.Status == TraceFail && e.Kind != CheckFinal {
			return e, true
		}
	}
	return TraceEntry{}, false
}

func (t Trace) HasFailures() bool {
	_, ok := t.FirstFailure()
	return ok
}

// Dec is a shorthand for building TraceDetails pointers.
func Dec(d decimal.Decimal) *decimal.Decimal { return &d }
