/*
store.go - Persistence interfaces for AP documents and the learning loop

PURPOSE:
  Defines the interface between the domain logic and the database. Each
  component depends on the narrowest interface it needs; store/sqlite
  implements all of them on one handle.

KEY INTERFACES:
  DocumentStore:     POs and GRNs, unique by their document numbers
  InvoiceStore:      Invoices and their PO/GRN links
  VendorStore:       Per-vendor tolerance overrides
  LearningStore:     Heuristics, automation rules, notifications
  JobStore:          Ingestion job progress and summaries
  AuditLog:          Append-only record of who did what

LINKS:
  Invoices store the PO and GRN numbers they reference, not row IDs. The
  links resolve at match time, so an invoice ingested before its PO finds
  the PO once it arrives.

SEE ALSO:
  - store/sqlite/sqlite.go: Concrete implementation
*/
package ap

import (
	"context"
	"time"
)

// =============================================================================
// DOCUMENTS
// =============================================================================

type DocumentStore interface {
	// SavePurchaseOrder inserts a PO. Returns ErrDuplicateDocument if the number exists.
	SavePurchaseOrder(ctx context.Context, po *PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, poNumber string) (*PurchaseOrder, error)
	UpdatePurchaseOrder(ctx context.Context, po *PurchaseOrder) error

	SaveGoodsReceipt(ctx context.Context, grn *GoodsReceiptNote) error
	GetGoodsReceipt(ctx context.Context, grnNumber string) (*GoodsReceiptNote, error)
	UpdateGoodsReceipt(ctx context.Context, grn *GoodsReceiptNote) error
	ListGoodsReceiptsForPO(ctx context.Context, poNumber string) ([]GoodsReceiptNote, error)
}

// =============================================================================
// INVOICES
// =============================================================================

// InvoiceFilter narrows ListInvoices. Zero fields are ignored.
type InvoiceFilter struct {
	Statuses       []Status
	Category       ReviewCategory
	VendorName     string
	PaymentBatchID string
	JobID          string
	// DiscountDueFrom/To bound discount_due_date inclusively.
	DiscountDueFrom Date
	DiscountDueTo   Date
	DueBefore       Date
	IDs             []int64
}

type InvoiceStore interface {
	// CreateInvoice inserts the invoice with its links and sets inv.ID.
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id int64) (*Invoice, error)

	// UpdateInvoice persists the mutable review fields: status, trace,
	// review category, notes, GL code, payment batch and paid date.
	UpdateInvoice(ctx context.Context, inv *Invoice) error
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// InvoiceIDsForPO returns invoices linked to the PO directly or through
	// any GRN that references it.
	InvoiceIDsForPO(ctx context.Context, poNumber string) ([]int64, error)
	InvoiceIDsForGRN(ctx context.Context, grnNumber string) ([]int64, error)

	// FindDuplicateInvoices returns other invoices with the same vendor and
	// invoice_id whose status is in statuses.
	FindDuplicateInvoices(ctx context.Context, vendorName, invoiceID string, excludeID int64, statuses []Status) ([]int64, error)
}

type VendorStore interface {
	GetVendorSetting(ctx context.Context, vendorName string) (*VendorSetting, error)
	ListVendorSettings(ctx context.Context) ([]VendorSetting, error)
	UpsertVendorSetting(ctx context.Context, vs *VendorSetting) error
}

// =============================================================================
// LEARNING
// =============================================================================

type LearningStore interface {
	FindHeuristics(ctx context.Context, vendorName string, exceptionType ExceptionType) ([]LearnedHeuristic, error)
	// SaveHeuristic inserts when h.ID is zero, otherwise updates.
	SaveHeuristic(ctx context.Context, h *LearnedHeuristic) error
	// ListHeuristics returns every heuristic, or one vendor's when vendorName is set.
	ListHeuristics(ctx context.Context, vendorName string) ([]LearnedHeuristic, error)

	CreateAutomationRule(ctx context.Context, rule *AutomationRule) error
	ListAutomationRules(ctx context.Context, activeOnly bool) ([]AutomationRule, error)

	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, unreadOnly bool) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	HasUnreadNotification(ctx context.Context, typ NotificationType, relatedEntityID string) (bool, error)
}

// =============================================================================
// JOBS
// =============================================================================

type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	// UpdateJobProgress writes the status and raises the counter; it never lowers it.
	UpdateJobProgress(ctx context.Context, id string, processed int, status JobStatus) error
	FinishJob(ctx context.Context, id string, status JobStatus, summary *JobSummary, at time.Time) error
	ListJobs(ctx context.Context, limit int) ([]Job, error)
}

// =============================================================================
// AUDIT LOG - Append-only
// =============================================================================

type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	// ListAudit returns entries for one invoice, newest first.
	ListAudit(ctx context.Context, invoiceRowID int64) ([]AuditEntry, error)
}

// Store is everything the sqlite implementation provides.
type Store interface {
	DocumentStore
	InvoiceStore
	VendorStore
	LearningStore
	JobStore
	AuditLog
	Close() error
}
