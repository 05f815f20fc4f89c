/*
Package ap provides the accounts-payable domain model shared by every component.

PURPOSE:
  Purchase orders, goods receipt notes and vendor invoices flow through
  ingestion, matching and review. This package holds the types those stages
  exchange, the invoice status machine, the match trace, and the persistence
  interfaces. It has no knowledge of SQL, HTTP or the extraction service.

KEY CONCEPTS IN THIS FILE (types.go):
  - LineItem: one billed/ordered/received line, with its canonical-unit view
  - PurchaseOrder / GoodsReceiptNote / Invoice: the three reconciled documents
  - VendorSetting: per-vendor overrides (price tolerance, contact email)
  - LearnedHeuristic / AutomationRule / Notification: the learning loop
  - Job: one batch of uploaded files

DESIGN PRINCIPLES:
  1. Precision: quantities and money use decimal.Decimal
  2. Traceability: every engine decision lands in Invoice.MatchTrace
  3. Explicit links: invoices reference POs/GRNs by number, resolved at match time

SEE ALSO:
  - status.go: Invoice state machine
  - trace.go: Match trace records
  - store.go: Persistence interfaces
*/
package ap

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// DocumentType is the discriminator returned by the extraction service.
type DocumentType string

const (
	DocPurchaseOrder DocumentType = "Purchase Order"
	DocGoodsReceipt  DocumentType = "Goods Receipt Note"
	DocInvoice       DocumentType = "Invoice"
	DocError         DocumentType = "Error"
)

// =============================================================================
// LINE ITEM
// =============================================================================

// LineItem is a single line on any of the three documents. Quantity holds the
// ordered, received or billed quantity depending on the owning document.
type LineItem struct {
	Description string           `json:"description"`
	SKU         string           `json:"sku,omitempty"`
	Unit        string           `json:"unit,omitempty"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	LineTotal   *decimal.Decimal `json:"line_total,omitempty"`

	// Invoice lines may name the PO they bill against.
	PONumber string `json:"po_number,omitempty"`

	NormalizedQty       decimal.Decimal  `json:"normalized_qty"`
	NormalizedUnit      string           `json:"normalized_unit,omitempty"`
	NormalizedUnitPrice *decimal.Decimal `json:"normalized_unit_price,omitempty"`
}

// Total returns the line total, falling back to quantity x unit price.
func (li LineItem) Total() (decimal.Decimal, bool) {
	if li.LineTotal != nil {
		return *li.LineTotal, true
	}
	if li.UnitPrice != nil {
		return li.Quantity.Mul(*li.UnitPrice), true
	}
	return decimal.Zero, false
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type PurchaseOrder struct {
	ID         int64      `json:"id"`
	PONumber   string     `json:"po_number"`
	VendorName string     `json:"vendor_name"`
	BuyerName  string     `json:"buyer_name"`
	OrderDate  Date       `json:"order_date"`
	LineItems  []LineItem `json:"line_items"`

	Subtotal   *decimal.Decimal `json:"subtotal,omitempty"`
	Tax        *decimal.Decimal `json:"tax,omitempty"`
	GrandTotal *decimal.Decimal `json:"grand_total,omitempty"`

	// RawPayload is the extraction output as received, kept for audit and regeneration.
	RawPayload []byte `json:"raw_payload,omitempty"`
	FilePath   string `json:"file_path"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GoodsReceiptNote records what was physically received. PONumber may name a
// PO that has not been ingested yet; the link is resolved when matching.
type GoodsReceiptNote struct {
	ID           int64      `json:"id"`
	GRNNumber    string     `json:"grn_number"`
	PONumber     string     `json:"po_number,omitempty"`
	ReceivedDate Date       `json:"received_date"`
	LineItems    []LineItem `json:"line_items"`
	FilePath     string     `json:"file_path"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Invoice struct {
	ID         int64    `json:"id"`
	InvoiceID  string   `json:"invoice_id"`
	VendorName string   `json:"vendor_name"`
	BuyerName  string   `json:"buyer_name,omitempty"`
	PONumbers  []string `json:"related_po_numbers"`
	GRNNumbers []string `json:"related_grn_numbers"`

	InvoiceDate     Date `json:"invoice_date"`
	DueDate         Date `json:"due_date"`
	DiscountDueDate Date `json:"discount_due_date"`
	PaidDate        Date `json:"paid_date"`

	Subtotal       *decimal.Decimal `json:"subtotal,omitempty"`
	Tax            *decimal.Decimal `json:"tax,omitempty"`
	GrandTotal     *decimal.Decimal `json:"grand_total,omitempty"`
	DiscountAmount *decimal.Decimal `json:"discount_amount,omitempty"`
	DiscountTerms  string           `json:"discount_terms,omitempty"`

	LineItems []LineItem `json:"line_items"`

	Status         Status         `json:"status"`
	MatchTrace     Trace          `json:"match_trace"`
	ReviewCategory ReviewCategory `json:"review_category,omitempty"`

	Notes          string `json:"notes,omitempty"`
	GLCode         string `json:"gl_code,omitempty"`
	PaymentBatchID string `json:"payment_batch_id,omitempty"`
	JobID          string `json:"job_id,omitempty"`
	FilePath       string `json:"file_path"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settle records the outcome of a match run. The trace replaces any previous
// one, and the review category is dropped for every status but needs_review.
func (inv *Invoice) Settle(status Status, category ReviewCategory, trace Trace) {
	inv.Status = status
	inv.MatchTrace = trace
	if status == StatusNeedsReview {
		inv.ReviewCategory = category
	} else {
		inv.ReviewCategory = ""
	}
}

// SetStatus moves the invoice to a new status keeping the category invariant.
func (inv *Invoice) SetStatus(status Status) {
	inv.Status = status
	if status != StatusNeedsReview {
		inv.ReviewCategory = ""
	}
}

// AllPONumbers returns the header PO references plus any named on line items,
// de-duplicated in first-seen order.
func (inv *Invoice) AllPONumbers() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(n string) {
		if n == "" || seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
	}
	for _, n := range inv.PONumbers {
		add(n)
	}
	for _, li := range inv.LineItems {
		add(li.PONumber)
	}
	return out
}

// =============================================================================
// CONFIGURATION RECORDS
// =============================================================================

type VendorSetting struct {
	ID                    int64            `json:"id"`
	VendorName            string           `json:"vendor_name"`
	PriceTolerancePercent *decimal.Decimal `json:"price_tolerance_percent,omitempty"`
	ContactEmail          string           `json:"contact_email,omitempty"`
}

// =============================================================================
// LEARNING
// =============================================================================

// ExceptionType classifies the failure a human overrode.
type ExceptionType string

const (
	PriceMismatchException    ExceptionType = "PriceMismatchException"
	QuantityMismatchException ExceptionType = "QuantityMismatchException"
)

type LearnedHeuristic struct {
	ID               int64         `json:"id"`
	VendorName       string        `json:"vendor_name"`
	ExceptionType    ExceptionType `json:"exception_type"`
	LearnedCondition Condition     `json:"learned_condition"`
	TriggerCount     int           `json:"trigger_count"`
	ConfidenceScore  float64       `json:"confidence_score"`
	ResolutionAction Status        `json:"resolution_action"`
	LastAppliedAt    time.Time     `json:"last_applied_at"`
}

type RuleAction string

const RuleApprove RuleAction = "approve"

type AutomationRule struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	VendorName string     `json:"vendor_name,omitempty"`
	Conditions Condition  `json:"conditions"`
	Action     RuleAction `json:"action"`
	IsActive   bool       `json:"is_active"`
	Source     string     `json:"source"`
	CreatedAt  time.Time  `json:"created_at"`
}

type NotificationType string

const (
	NotifyAutomationSuggestion NotificationType = "AutomationSuggestion"
	NotifyOptimization         NotificationType = "Optimization"
)

// ProposedRule is the rule a suggestion notification offers to create.
type ProposedRule struct {
	RuleName   string     `json:"rule_name"`
	VendorName string     `json:"vendor_name"`
	Conditions Condition  `json:"conditions"`
	Action     RuleAction `json:"action"`
}

type Notification struct {
	ID                string           `json:"id"`
	Type              NotificationType `json:"type"`
	Message           string           `json:"message"`
	RelatedEntityID   string           `json:"related_entity_id"`
	RelatedEntityType string           `json:"related_entity_type"`
	ProposedAction    *ProposedRule    `json:"proposed_action,omitempty"`
	IsRead            bool             `json:"is_read"`
	CreatedAt         time.Time        `json:"created_at"`
}

// =============================================================================
// JOBS
// =============================================================================

type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobMatching   JobStatus = "matching"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

type Job struct {
	ID             string      `json:"id"`
	Status         JobStatus   `json:"status"`
	TotalFiles     int         `json:"total_files"`
	ProcessedFiles int         `json:"processed_files"`
	Summary        *JobSummary `json:"summary,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// FileResult is the per-file outcome recorded in a job summary.
type FileResult struct {
	Filename          string       `json:"filename"`
	DocumentType      DocumentType `json:"document_type,omitempty"`
	Success           bool         `json:"success"`
	Message           string       `json:"message"`
	AffectedPONumbers []string     `json:"affected_po_numbers,omitempty"`
	InvoiceRowID      int64        `json:"invoice_row_id,omitempty"`
}

type JobSummary struct {
	Message           string       `json:"message"`
	TotalFiles        int          `json:"total_files"`
	SuccessfulFiles   int          `json:"successful_files"`
	FailedFiles       int          `json:"failed_files"`
	AffectedPONumbers []string     `json:"affected_pos,omitempty"`
	InvoicesMatched   int          `json:"invoices_matched"`
	InvoicesForReview int          `json:"invoices_for_review"`
	Files             []FileResult `json:"files"`
	Error             string       `json:"error,omitempty"`
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditEntry struct {
	ID           string         `json:"id"`
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	InvoiceRowID int64          `json:"invoice_row_id,omitempty"`
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	Summary      string         `json:"summary,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
