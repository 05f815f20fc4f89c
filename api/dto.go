/*
dto.go - Request bodies and response wrappers for the HTTP API

PURPOSE:
  Domain records (ap.Invoice, ap.Job, ...) already carry their JSON shape
  and are returned as-is. This file holds what the domain does not have:
  request bodies with their validation tags, and small response wrappers.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Bodies are decoded, then checked with go-playground/validator. Status
  strings are parsed by the workflow against the closed status set, so a
  bad status is a 400 either way.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/workflow"
)

// =============================================================================
// INVOICES
// =============================================================================

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type BatchStatusRequest struct {
	InvoiceIDs []int64 `json:"invoice_ids" validate:"required,min=1,dive,gt=0"`
	Status     string  `json:"status" validate:"required"`
	Reason     string  `json:"reason"`
	Actor      string  `json:"actor"`
}

type BatchRematchRequest struct {
	InvoiceIDs []int64 `json:"invoice_ids" validate:"required,min=1,dive,gt=0"`
	Actor      string  `json:"actor"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
	Actor string `json:"actor"`
}

type GLCodeRequest struct {
	GLCode string `json:"gl_code" validate:"required,max=64"`
	Actor  string `json:"actor"`
}

type MessageRequest struct {
	Message string `json:"message" validate:"required"`
	Actor   string `json:"actor"`
}

type AcceptedResponse struct {
	Message    string  `json:"message"`
	InvoiceIDs []int64 `json:"invoice_ids,omitempty"`
}

// =============================================================================
// DOCUMENTS
// =============================================================================

type LineEditRequest struct {
	Description *string `json:"description"`
	SKU         *string `json:"sku"`
	Unit        *string `json:"unit"`
	Quantity    *string `json:"quantity"`
	UnitPrice   *string `json:"unit_price"`
}

type PurchaseOrderEditRequest struct {
	VendorName *string           `json:"vendor_name"`
	BuyerName  *string           `json:"buyer_name"`
	OrderDate  *string           `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	LineItems  []LineEditRequest `json:"line_items"`
	Actor      string            `json:"actor"`
}

type GoodsReceiptEditRequest struct {
	PONumber     *string           `json:"po_number"`
	ReceivedDate *string           `json:"received_date" validate:"omitempty,datetime=2006-01-02"`
	LineItems    []LineEditRequest `json:"line_items"`
	Actor        string            `json:"actor"`
}

type DocumentEditResponse struct {
	Document          any     `json:"document"`
	RematchedInvoices []int64 `json:"rematched_invoices"`
}

func lineEdits(in []LineEditRequest) []workflow.LineEdit {
	if in == nil {
		return nil
	}
	out := make([]workflow.LineEdit, len(in))
	for i, l := range in {
		out[i] = workflow.LineEdit{
			Description: l.Description,
			SKU:         l.SKU,
			Unit:        l.Unit,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		}
	}
	return out
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentBatchRequest struct {
	InvoiceIDs []int64 `json:"invoice_ids" validate:"omitempty,dive,gt=0"`
	VendorName string  `json:"vendor_name"`
	DueInDays  int     `json:"due_in_days" validate:"gte=0"`
	Actor      string  `json:"actor"`
}

type MarkPaidRequest struct {
	InvoiceIDs []int64 `json:"invoice_ids" validate:"required,min=1,dive,gt=0"`
	Actor      string  `json:"actor"`
}

type PaidResponse struct {
	Paid []int64 `json:"paid"`
}

// =============================================================================
// CONFIGURATION & LEARNING
// =============================================================================

type VendorSettingRequest struct {
	VendorName            string           `json:"vendor_name" validate:"required"`
	PriceTolerancePercent *decimal.Decimal `json:"price_tolerance_percent"`
	ContactEmail          string           `json:"contact_email" validate:"omitempty,email"`
}

type AutomationRuleRequest struct {
	RuleName   string        `json:"rule_name"`
	VendorName string        `json:"vendor_name"`
	Conditions ap.Condition  `json:"conditions"`
	Action     ap.RuleAction `json:"action"`
}

type SuggestionResponse struct {
	Suggestion any `json:"suggestion"`
}

// =============================================================================
// COMMON
// =============================================================================

type HealthResponse struct {
	Status         string `json:"status"`
	PendingRematch int    `json:"pending_rematch"`
	MonitorLastRun string `json:"monitor_last_run,omitempty"`
	MonitorNextRun string `json:"monitor_next_run,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
