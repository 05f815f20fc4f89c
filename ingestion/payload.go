/*
payload.go - Typed extraction payloads

PURPOSE:
  The extraction service returns one JSON object per file, discriminated by
  "document_type". Decode reads the discriminator, unmarshals into the
  matching payload struct, validates it, and only then lets it into the
  domain. Nothing past this file sees loosely typed extraction output.

PAYLOADS:
  POPayload       "Purchase Order"
  GRNPayload      "Goods Receipt Note"
  InvoicePayload  "Invoice"
  ErrorPayload    "Error" (the service could not read the document)

DATES AND NUMBERS:
  Dates are YYYY-MM-DD; absent dates are null or "". Money and quantities
  are JSON numbers decoded into decimal.Decimal.

SEE ALSO:
  - service.go: Converts payloads into stored records
*/
package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/units"
)

// Payload is one decoded extraction result.
type Payload interface {
	DocumentType() ap.DocumentType
}

type POLine struct {
	Description string           `json:"description" validate:"required"`
	OrderedQty  decimal.Decimal  `json:"ordered_qty"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	LineTotal   *decimal.Decimal `json:"line_total"`
	SKU         string           `json:"sku"`
	Unit        string           `json:"unit"`
}

type POPayload struct {
	PONumber   string           `json:"po_number" validate:"required"`
	VendorName string           `json:"vendor_name"`
	BuyerName  string           `json:"buyer_name"`
	OrderDate  string           `json:"order_date" validate:"omitempty,datetime=2006-01-02"`
	LineItems  []POLine         `json:"line_items" validate:"dive"`
	Subtotal   *decimal.Decimal `json:"subtotal"`
	Tax        *decimal.Decimal `json:"tax"`
	GrandTotal *decimal.Decimal `json:"grand_total"`
}

type GRNLine struct {
	Description string          `json:"description" validate:"required"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
	SKU         string          `json:"sku"`
	Unit        string          `json:"unit"`
}

type GRNPayload struct {
	GRNNumber    string    `json:"grn_number" validate:"required"`
	PONumber     string    `json:"po_number"`
	ReceivedDate string    `json:"received_date" validate:"omitempty,datetime=2006-01-02"`
	LineItems    []GRNLine `json:"line_items" validate:"dive"`
}

type InvoiceLine struct {
	Description string           `json:"description" validate:"required"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	LineTotal   *decimal.Decimal `json:"line_total"`
	SKU         string           `json:"sku"`
	PONumber    string           `json:"po_number"`
	Unit        string           `json:"unit"`
}

type InvoicePayload struct {
	InvoiceID         string           `json:"invoice_id" validate:"required"`
	VendorName        string           `json:"vendor_name"`
	BuyerName         string           `json:"buyer_name"`
	RelatedPONumbers  []string         `json:"related_po_numbers"`
	RelatedGRNNumbers []string         `json:"related_grn_numbers"`
	InvoiceDate       string           `json:"invoice_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate           string           `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	LineItems         []InvoiceLine    `json:"line_items" validate:"dive"`
	Subtotal          *decimal.Decimal `json:"subtotal"`
	Tax               *decimal.Decimal `json:"tax"`
	GrandTotal        *decimal.Decimal `json:"grand_total"`
	DiscountTerms     string           `json:"discount_terms"`
	DiscountAmount    *decimal.Decimal `json:"discount_amount"`
	DiscountDueDate   string           `json:"discount_due_date" validate:"omitempty,datetime=2006-01-02"`
}

type ErrorPayload struct {
	ErrorMessage string `json:"error_message"`
}

func (POPayload) DocumentType() ap.DocumentType      { return ap.DocPurchaseOrder }
func (GRNPayload) DocumentType() ap.DocumentType     { return ap.DocGoodsReceipt }
func (InvoicePayload) DocumentType() ap.DocumentType { return ap.DocInvoice }
func (ErrorPayload) DocumentType() ap.DocumentType   { return ap.DocError }

// =============================================================================
// DECODING
// =============================================================================

var validate = validator.New()

// Decode parses and validates raw extraction output.
func Decode(raw []byte) (Payload, error) {
	var envelope struct {
		DocumentType ap.DocumentType `json:"document_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ap.ErrInvalidPayload, err)
	}

	var p Payload
	switch envelope.DocumentType {
	case ap.DocPurchaseOrder:
		p = &POPayload{}
	case ap.DocGoodsReceipt:
		p = &GRNPayload{}
	case ap.DocInvoice:
		p = &InvoicePayload{}
	case ap.DocError:
		p = &ErrorPayload{}
	case "":
		return nil, fmt.Errorf("%w: missing document_type", ap.ErrInvalidPayload)
	default:
		return nil, fmt.Errorf("%w: %q", ap.ErrUnknownDocumentType, envelope.DocumentType)
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ap.ErrInvalidPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s", ap.ErrInvalidPayload, describeValidation(err))
	}
	return p, nil
}

// describeValidation flattens validator errors into "field: tag" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

// =============================================================================
// CONVERSION - Payload to domain record, with normalized line items
// =============================================================================

func (p *POPayload) PurchaseOrder(raw []byte, filename string) *ap.PurchaseOrder {
	po := &ap.PurchaseOrder{
		PONumber:   strings.TrimSpace(p.PONumber),
		VendorName: strings.TrimSpace(p.VendorName),
		BuyerName:  strings.TrimSpace(p.BuyerName),
		OrderDate:  mustDate(p.OrderDate),
		Subtotal:   p.Subtotal,
		Tax:        p.Tax,
		GrandTotal: p.GrandTotal,
		RawPayload: raw,
		FilePath:   filename,
	}
	for _, l := range p.LineItems {
		po.LineItems = append(po.LineItems, units.Normalize(ap.LineItem{
			Description: l.Description,
			SKU:         l.SKU,
			Unit:        l.Unit,
			Quantity:    l.OrderedQty,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
		}))
	}
	return po
}

func (p *GRNPayload) GoodsReceipt(filename string) *ap.GoodsReceiptNote {
	grn := &ap.GoodsReceiptNote{
		GRNNumber:    strings.TrimSpace(p.GRNNumber),
		PONumber:     strings.TrimSpace(p.PONumber),
		ReceivedDate: mustDate(p.ReceivedDate),
		FilePath:     filename,
	}
	for _, l := range p.LineItems {
		grn.LineItems = append(grn.LineItems, units.Normalize(ap.LineItem{
			Description: l.Description,
			SKU:         l.SKU,
			Unit:        l.Unit,
			Quantity:    l.ReceivedQty,
		}))
	}
	return grn
}

func (p *InvoicePayload) Invoice(jobID, filename string) *ap.Invoice {
	inv := &ap.Invoice{
		InvoiceID:       strings.TrimSpace(p.InvoiceID),
		VendorName:      strings.TrimSpace(p.VendorName),
		BuyerName:       strings.TrimSpace(p.BuyerName),
		PONumbers:       trimAll(p.RelatedPONumbers),
		GRNNumbers:      trimAll(p.RelatedGRNNumbers),
		InvoiceDate:     mustDate(p.InvoiceDate),
		DueDate:         mustDate(p.DueDate),
		DiscountDueDate: mustDate(p.DiscountDueDate),
		Subtotal:        p.Subtotal,
		Tax:             p.Tax,
		GrandTotal:      p.GrandTotal,
		DiscountAmount:  p.DiscountAmount,
		DiscountTerms:   p.DiscountTerms,
		Status:          ap.StatusIngested,
		JobID:           jobID,
		FilePath:        filename,
	}
	for _, l := range p.LineItems {
		inv.LineItems = append(inv.LineItems, units.Normalize(ap.LineItem{
			Description: l.Description,
			SKU:         l.SKU,
			Unit:        l.Unit,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal,
			PONumber:    strings.TrimSpace(l.PONumber),
		}))
	}
	return inv
}

// mustDate parses a date that already passed validation.
func mustDate(s string) ap.Date {
	d, _ := ap.ParseDate(s)
	return d
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
