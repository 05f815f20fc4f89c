/*
payments.go - Payment batches

PURPOSE:
  Groups matched invoices into a batch for the payment run. A batch is the
  set of invoices carrying the same payment_batch_id; it has no table of its
  own.

LIFECYCLE:
  matched -> pending_payment (CreatePaymentBatch) -> paid (MarkBatchPaid / MarkPaid)

SEE ALSO:
  - export.go: ExportBatch
*/
package workflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/ap-engine/ap"
)

const batchIDLayout = "20060102150405"

// PaymentProposal selects invoices for a batch: explicit IDs, or every matched
// invoice of a vendor (or all vendors) due within DueInDays. Zero DueInDays
// means no due-date limit.
type PaymentProposal struct {
	InvoiceIDs []int64
	VendorName string
	DueInDays  int
}

type PaymentBatch struct {
	ID           string          `json:"payment_batch_id"`
	InvoiceIDs   []int64         `json:"invoice_ids"`
	InvoiceCount int             `json:"invoice_count"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	// Skipped lists requested invoices that were not matched.
	Skipped   []int64   `json:"skipped,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PayableInvoices returns matched invoices eligible for the proposal.
func (s *Service) PayableInvoices(ctx context.Context, p PaymentProposal) ([]ap.Invoice, error) {
	filter := ap.InvoiceFilter{
		Statuses:   []ap.Status{ap.StatusMatched},
		VendorName: p.VendorName,
		IDs:        p.InvoiceIDs,
	}
	if p.DueInDays > 0 {
		filter.DueBefore = ap.DateOf(s.now()).AddDays(p.DueInDays)
	}
	return s.store.ListInvoices(ctx, filter)
}

// CreatePaymentBatch moves the selected matched invoices to pending_payment
// under a new batch ID.
func (s *Service) CreatePaymentBatch(ctx context.Context, p PaymentProposal, actor string) (*PaymentBatch, error) {
	s.payMu.Lock()
	defer s.payMu.Unlock()

	invoices, err := s.PayableInvoices(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, fmt.Errorf("%w: no matched invoices to pay", ap.ErrInvalidInput)
	}

	now := s.now().UTC()
	id, err := s.nextBatchID(ctx, now)
	if err != nil {
		return nil, err
	}

	batch := &PaymentBatch{ID: id, TotalAmount: decimal.Zero, CreatedAt: now}
	for i := range invoices {
		inv := &invoices[i]
		inv.SetStatus(ap.StatusPendingPayment)
		inv.PaymentBatchID = id
		if err := s.store.UpdateInvoice(ctx, inv); err != nil {
			return nil, fmt.Errorf("update invoice %d: %w", inv.ID, err)
		}
		s.audit(ctx, inv, actor, "Added to Payment Batch", fmt.Sprintf("Added to payment batch %s", id),
			map[string]any{"payment_batch_id": id, "from": ap.StatusMatched, "to": ap.StatusPendingPayment})

		batch.InvoiceIDs = append(batch.InvoiceIDs, inv.ID)
		batch.TotalAmount = batch.TotalAmount.Add(InvoiceTotal(inv))
	}
	batch.InvoiceCount = len(batch.InvoiceIDs)
	batch.Skipped = missing(p.InvoiceIDs, batch.InvoiceIDs)

	s.log.WithField("batch", id).WithField("invoices", batch.InvoiceCount).Info("payment batch created")
	return batch, nil
}

// nextBatchID returns PAY-BATCH-<timestamp>, with a numeric suffix when a
// batch was already created in the same second.
func (s *Service) nextBatchID(ctx context.Context, now time.Time) (string, error) {
	base := "PAY-BATCH-" + now.Format(batchIDLayout)
	id := base
	for n := 2; ; n++ {
		taken, err := s.store.ListInvoices(ctx, ap.InvoiceFilter{PaymentBatchID: id})
		if err != nil {
			return "", err
		}
		if len(taken) == 0 {
			return id, nil
		}
		id = base + "-" + strconv.Itoa(n)
	}
}

// MarkBatchPaid settles every pending invoice of a batch.
func (s *Service) MarkBatchPaid(ctx context.Context, batchID, actor string) ([]int64, error) {
	invoices, err := s.store.ListInvoices(ctx, ap.InvoiceFilter{PaymentBatchID: batchID})
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, &ap.NotFoundError{Entity: "payment batch", Key: batchID}
	}
	ids := make([]int64, 0, len(invoices))
	for _, inv := range invoices {
		if inv.Status == ap.StatusPendingPayment {
			ids = append(ids, inv.ID)
		}
	}
	return s.MarkPaid(ctx, ids, actor)
}

// MarkPaid moves pending_payment invoices to paid and stamps the paid date.
// It fails on the first invoice that is not awaiting payment.
func (s *Service) MarkPaid(ctx context.Context, ids []int64, actor string) ([]int64, error) {
	paid := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, err := s.UpdateStatus(ctx, id, string(ap.StatusPaid), actor, ""); err != nil {
			return paid, err
		}
		paid = append(paid, id)
	}
	return paid, nil
}

// InvoiceTotal is the amount to pay: the grand total, else subtotal plus tax,
// else the sum of line totals.
func InvoiceTotal(inv *ap.Invoice) decimal.Decimal {
	if inv.GrandTotal != nil {
		return *inv.GrandTotal
	}
	if inv.Subtotal != nil {
		total := *inv.Subtotal
		if inv.Tax != nil {
			total = total.Add(*inv.Tax)
		}
		return total
	}
	sum := decimal.Zero
	for _, li := range inv.LineItems {
		if t, ok := li.Total(); ok {
			sum = sum.Add(t)
		}
	}
	return sum
}

func missing(requested, got []int64) []int64 {
	have := make(map[int64]bool, len(got))
	for _, id := range got {
		have[id] = true
	}
	var out []int64
	for _, id := range requested {
		if !have[id] {
			out = append(out, id)
		}
	}
	return out
}
