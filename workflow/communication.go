package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"github.com/warp/ap-engine/ap"
)

// =============================================================================
// QUERIES - Parking an invoice while someone else answers
// =============================================================================

// RequestVendorResponse parks an invoice in review until the vendor replies.
func (s *Service) RequestVendorResponse(ctx context.Context, invoiceRowID int64, message, actor string) (*ap.Invoice, error) {
	return s.request(ctx, invoiceRowID, ap.StatusPendingVendorResponse, "Vendor Response Requested", message, actor)
}

// RequestInternalResponse parks an invoice until a colleague (buyer,
// receiving) answers.
func (s *Service) RequestInternalResponse(ctx context.Context, invoiceRowID int64, message, actor string) (*ap.Invoice, error) {
	return s.request(ctx, invoiceRowID, ap.StatusPendingInternalResponse, "Internal Response Requested", message, actor)
}

func (s *Service) request(ctx context.Context, id int64, to ap.Status, action, message, actor string) (*ap.Invoice, error) {
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", ap.ErrInvalidInput)
	}
	inv, err := s.UpdateStatus(ctx, id, string(to), actor, message)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, inv, actor, action, message, map[string]any{"message": message})
	return inv, nil
}

// =============================================================================
// VENDOR DRAFT
// =============================================================================

// VendorDraft is an email ready for a reviewer to edit and send. To is empty
// when no contact is on file for the vendor.
type VendorDraft struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

var vendorDraftTmpl = template.Must(template.New("vendor").Parse(`Dear {{.Vendor}} team,

We are reviewing invoice {{.InvoiceID}}{{if .InvoiceDate}} dated {{.InvoiceDate}}{{end}} and found the following discrepancies against our records:
{{range .Issues}}
  - {{.}}{{end}}

Please provide a corrected invoice or a credit note for the difference, or let us know if our records need updating.

Kind regards,
Accounts Payable
`))

// DraftVendorQuery writes a query email listing every failed check on the
// invoice.
func (s *Service) DraftVendorQuery(ctx context.Context, invoiceRowID int64) (*VendorDraft, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceRowID)
	if err != nil {
		return nil, err
	}
	failures := inv.MatchTrace.Failures()
	if len(failures) == 0 {
		return nil, fmt.Errorf("%w: invoice %s has no discrepancies to query", ap.ErrInvalidInput, inv.InvoiceID)
	}

	to := ""
	vs, err := s.store.GetVendorSetting(ctx, inv.VendorName)
	switch {
	case err == nil:
		to = vs.ContactEmail
	case !errors.Is(err, ap.ErrNotFound):
		return nil, err
	}

	issues := make([]string, 0, len(failures))
	for _, f := range failures {
		issues = append(issues, describeFailure(f))
	}

	var body bytes.Buffer
	err = vendorDraftTmpl.Execute(&body, map[string]any{
		"Vendor":      inv.VendorName,
		"InvoiceID":   inv.InvoiceID,
		"InvoiceDate": inv.InvoiceDate.String(),
		"Issues":      issues,
	})
	if err != nil {
		return nil, fmt.Errorf("render vendor draft: %w", err)
	}
	return &VendorDraft{
		To:      to,
		Subject: "Query regarding Invoice " + inv.InvoiceID,
		Body:    body.String(),
	}, nil
}

// describeFailure turns a FAIL entry into one sentence a vendor can act on.
func describeFailure(f ap.TraceEntry) string {
	d := f.Details
	switch f.Kind {
	case ap.CheckPrice:
		if d.InvoicePrice != nil && d.POPrice != nil {
			return fmt.Sprintf("%s: invoiced at %s per %s, PO price is %s",
				d.InvoiceItem, d.InvoicePrice.String(), orUnit(d.Unit), d.POPrice.String())
		}
	case ap.CheckQuantity:
		if d.InvoiceQty != nil && d.GRNQty != nil {
			return fmt.Sprintf("%s: billed %s %s, received %s",
				d.InvoiceItem, d.InvoiceQty.String(), d.Unit, d.GRNQty.String())
		}
		if d.InvoiceQty != nil && d.POQty != nil {
			return fmt.Sprintf("%s: billed %s %s, ordered %s",
				d.InvoiceItem, d.InvoiceQty.String(), d.Unit, d.POQty.String())
		}
	}
	return f.Message
}

func orUnit(u string) string {
	if u == "" {
		return "unit"
	}
	return u
}
