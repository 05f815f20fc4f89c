/*
rematch.go - Background re-match queue and document corrections

PURPOSE:
  A re-match request flips the invoice to matching right away and hands the
  engine run to a worker. The HTTP caller never waits for the engine.

DESIGN:
  - Buffered channel of invoice row IDs, drained by a fixed set of workers
  - Start/Stop follow the monitor's lifecycle: Stop closes the queue and
    waits for queued work to finish
  - Each run takes the invoice lock, so a re-match and an ingestion pass
    never write the same invoice at once
  - Enqueue blocks while the queue is full, bounded by ctx

SEE ALSO:
  - lock.go: Locker implementations
  - service.go: RunMatchSafely (what a worker runs)
*/
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/config"
	"github.com/warp/ap-engine/units"
)

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("rematch queue is stopped")

// =============================================================================
// QUEUE
// =============================================================================

// RematchQueue runs a handler for every enqueued invoice row ID.
type RematchQueue struct {
	Workers int

	handle func(ctx context.Context, id int64)
	log    logrus.FieldLogger

	jobs    chan int64
	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	closed  bool
}

func NewRematchQueue(workers, size int, handle func(ctx context.Context, id int64), log logrus.FieldLogger) *RematchQueue {
	return &RematchQueue{
		Workers: workers,
		handle:  handle,
		log:     log,
		jobs:    make(chan int64, size),
	}
}

func (q *RematchQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.Workers; i++ {
		q.wg.Add(1)
		go q.run()
	}
	q.log.WithField("workers", q.Workers).Info("[Rematch] Started")
}

// Stop refuses new work, lets the workers drain what is queued, and waits.
func (q *RematchQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if started {
		q.wg.Wait()
		q.log.Info("[Rematch] Stopped")
	}
}

// Enqueue schedules one re-match.
func (q *RematchQueue) Enqueue(ctx context.Context, id int64) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued re-matches not yet picked up.
func (q *RematchQueue) Pending() int { return len(q.jobs) }

func (q *RematchQueue) run() {
	defer q.wg.Done()
	for id := range q.jobs {
		q.handle(context.Background(), id)
	}
}

// =============================================================================
// RE-MATCH
// =============================================================================

// Rematch moves each invoice to matching, records who asked, and queues the
// engine run. It stops at the first invoice that cannot be found or queued.
func (s *Service) Rematch(ctx context.Context, actor string, ids ...int64) error {
	for _, id := range ids {
		inv, err := s.store.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		from := inv.Status
		s.setStatus(inv, ap.StatusMatching)
		if err := s.store.UpdateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("update invoice %d: %w", id, err)
		}
		s.audit(ctx, inv, actor, "Manual Rematch Triggered",
			fmt.Sprintf("Re-match requested from status %s", from), map[string]any{"from": from})

		if err := s.queue.Enqueue(ctx, id); err != nil {
			return fmt.Errorf("enqueue rematch %d: %w", id, err)
		}
	}
	return nil
}

// RematchNow runs the engine synchronously, for the CLI.
func (s *Service) RematchNow(ctx context.Context, actor string, id int64) (*ap.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, inv, actor, "Manual Rematch Triggered", "Re-match run synchronously", nil)
	return s.RunMatchSafely(ctx, id)
}

func (s *Service) rematchOne(ctx context.Context, id int64) {
	inv, err := s.RunMatchSafely(ctx, id)
	if err != nil {
		config.LogError(s.log, "workflow", "rematchOne", "run match", id, err)
	}
	if inv != nil {
		s.log.WithFields(logrus.Fields{"invoice": id, "status": inv.Status}).Info("[Rematch] Completed")
	}
}

// =============================================================================
// DOCUMENT CORRECTIONS
// =============================================================================

// LineEdit replaces the editable fields of one line item. Nil fields keep
// their value.
type LineEdit struct {
	Description *string
	SKU         *string
	Unit        *string
	Quantity    *string
	UnitPrice   *string
}

type PurchaseOrderEdit struct {
	VendorName *string
	BuyerName  *string
	OrderDate  *string
	// LineItems replaces the whole line list when non-nil.
	LineItems []LineEdit
}

type GoodsReceiptEdit struct {
	PONumber     *string
	ReceivedDate *string
	LineItems    []LineEdit
}

// EditPurchaseOrder applies a correction to a stored PO and re-matches every
// invoice that references it, directly or through a GRN.
func (s *Service) EditPurchaseOrder(ctx context.Context, poNumber string, edit PurchaseOrderEdit, actor string) (*ap.PurchaseOrder, []int64, error) {
	po, err := s.store.GetPurchaseOrder(ctx, poNumber)
	if err != nil {
		return nil, nil, err
	}
	changes := map[string]any{}

	if edit.VendorName != nil {
		po.VendorName = *edit.VendorName
		changes["vendor_name"] = po.VendorName
	}
	if edit.BuyerName != nil {
		po.BuyerName = *edit.BuyerName
		changes["buyer_name"] = po.BuyerName
	}
	if edit.OrderDate != nil {
		d, err := ap.ParseDate(*edit.OrderDate)
		if err != nil {
			return nil, nil, err
		}
		po.OrderDate = d
		changes["order_date"] = d.String()
	}
	if edit.LineItems != nil {
		lines, raw, err := applyLineEdits(po.LineItems, edit.LineItems)
		if err != nil {
			return nil, nil, err
		}
		po.LineItems = lines
		changes["line_items"] = raw
	}
	if len(changes) == 0 {
		return nil, nil, fmt.Errorf("%w: nothing to change", ap.ErrInvalidInput)
	}

	po.RawPayload = mergeRaw(po.RawPayload, changes)
	if err := s.store.UpdatePurchaseOrder(ctx, po); err != nil {
		return nil, nil, err
	}
	s.auditDocument(ctx, "PurchaseOrder", po.PONumber, actor, "Purchase Order Edited",
		fmt.Sprintf("PO %s corrected", po.PONumber), changes)

	ids, err := s.store.InvoiceIDsForPO(ctx, po.PONumber)
	if err != nil {
		return po, nil, err
	}
	if err := s.Rematch(ctx, actor, ids...); err != nil {
		return po, nil, err
	}
	return po, ids, nil
}

func (s *Service) EditGoodsReceipt(ctx context.Context, grnNumber string, edit GoodsReceiptEdit, actor string) (*ap.GoodsReceiptNote, []int64, error) {
	grn, err := s.store.GetGoodsReceipt(ctx, grnNumber)
	if err != nil {
		return nil, nil, err
	}
	changes := map[string]any{}

	if edit.PONumber != nil {
		grn.PONumber = *edit.PONumber
		changes["po_number"] = grn.PONumber
	}
	if edit.ReceivedDate != nil {
		d, err := ap.ParseDate(*edit.ReceivedDate)
		if err != nil {
			return nil, nil, err
		}
		grn.ReceivedDate = d
		changes["received_date"] = d.String()
	}
	if edit.LineItems != nil {
		lines, raw, err := applyLineEdits(grn.LineItems, edit.LineItems)
		if err != nil {
			return nil, nil, err
		}
		grn.LineItems = lines
		changes["line_items"] = raw
	}
	if len(changes) == 0 {
		return nil, nil, fmt.Errorf("%w: nothing to change", ap.ErrInvalidInput)
	}

	if err := s.store.UpdateGoodsReceipt(ctx, grn); err != nil {
		return nil, nil, err
	}
	s.auditDocument(ctx, "GoodsReceiptNote", grn.GRNNumber, actor, "Goods Receipt Edited",
		fmt.Sprintf("GRN %s corrected", grn.GRNNumber), changes)

	ids, err := s.store.InvoiceIDsForGRN(ctx, grn.GRNNumber)
	if err != nil {
		return grn, nil, err
	}
	if err := s.Rematch(ctx, actor, ids...); err != nil {
		return grn, nil, err
	}
	return grn, ids, nil
}

// applyLineEdits builds the new line list. Edits at index i start from the
// existing line i when there is one; the canonical-unit view is recomputed.
func applyLineEdits(current []ap.LineItem, edits []LineEdit) ([]ap.LineItem, []map[string]any, error) {
	lines := make([]ap.LineItem, 0, len(edits))
	raw := make([]map[string]any, 0, len(edits))
	for i, e := range edits {
		var li ap.LineItem
		if i < len(current) {
			li = current[i]
		}
		if e.Description != nil {
			li.Description = *e.Description
		}
		if e.SKU != nil {
			li.SKU = *e.SKU
		}
		if e.Unit != nil {
			li.Unit = *e.Unit
		}
		if e.Quantity != nil {
			q, err := parseDecimal("quantity", *e.Quantity)
			if err != nil {
				return nil, nil, err
			}
			li.Quantity = q
		}
		if e.UnitPrice != nil {
			p, err := parseDecimal("unit_price", *e.UnitPrice)
			if err != nil {
				return nil, nil, err
			}
			li.UnitPrice = &p
			li.LineTotal = nil
		}
		if li.Description == "" {
			return nil, nil, fmt.Errorf("%w: line %d has no description", ap.ErrInvalidInput, i+1)
		}
		lines = append(lines, units.Normalize(li))

		entry := map[string]any{"description": li.Description, "quantity": li.Quantity.String()}
		if li.Unit != "" {
			entry["unit"] = li.Unit
		}
		if li.SKU != "" {
			entry["sku"] = li.SKU
		}
		if li.UnitPrice != nil {
			entry["unit_price"] = li.UnitPrice.String()
		}
		raw = append(raw, entry)
	}
	return lines, raw, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a number", ap.ErrInvalidInput, field, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s must not be negative", ap.ErrInvalidInput, field)
	}
	return d, nil
}

// mergeRaw overlays changes on the stored extraction payload. A payload that
// is not a JSON object is replaced by the changes alone.
func mergeRaw(raw []byte, changes map[string]any) []byte {
	doc := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			doc = map[string]any{}
		}
	}
	for k, v := range changes {
		doc[k] = v
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return raw
	}
	return out
}
