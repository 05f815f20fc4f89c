package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/ap-engine/ap"
)

// =============================================================================
// INVOICES (ap.InvoiceStore)
// =============================================================================

const invoiceColumns = `id, invoice_id, vendor_name, buyer_name, related_po_numbers_json, related_grn_numbers_json,
	invoice_date, due_date, discount_due_date, paid_date, subtotal, tax, grand_total, discount_amount,
	discount_terms, line_items_json, status, match_trace_json, review_category, notes, gl_code,
	payment_batch_id, job_id, file_path, created_at, updated_at`

// CreateInvoice inserts the invoice and its PO/GRN links in one transaction.
func (s *Store) CreateInvoice(ctx context.Context, inv *ap.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	poNumbers, err := marshalJSON(nonNilStrings(inv.PONumbers))
	if err != nil {
		return err
	}
	grnNumbers, err := marshalJSON(nonNilStrings(inv.GRNNumbers))
	if err != nil {
		return err
	}
	items, err := marshalJSON(nonNilItems(inv.LineItems))
	if err != nil {
		return fmt.Errorf("failed to encode invoice line items: %w", err)
	}
	trace, err := marshalJSON(nonNilTrace(inv.MatchTrace))
	if err != nil {
		return fmt.Errorf("failed to encode match trace: %w", err)
	}
	if inv.Status == "" {
		inv.Status = ap.StatusIngested
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	now := s.now()
	res, err := sqlTx.ExecContext(ctx, `
		INSERT INTO invoices
		(invoice_id, vendor_name, buyer_name, related_po_numbers_json, related_grn_numbers_json,
		 invoice_date, due_date, discount_due_date, paid_date, subtotal, tax, grand_total, discount_amount,
		 discount_terms, line_items_json, status, match_trace_json, review_category, notes, gl_code,
		 payment_batch_id, job_id, file_path, created_at, updated_at)
		VALUES (`+placeholders(25)+`)`,
		inv.InvoiceID, inv.VendorName, inv.BuyerName, poNumbers, grnNumbers,
		nullDate(inv.InvoiceDate), nullDate(inv.DueDate), nullDate(inv.DiscountDueDate), nullDate(inv.PaidDate),
		nullDecimal(inv.Subtotal), nullDecimal(inv.Tax), nullDecimal(inv.GrandTotal), nullDecimal(inv.DiscountAmount),
		nullString(inv.DiscountTerms), items, inv.Status, trace, nullString(string(inv.ReviewCategory)),
		nullString(inv.Notes), nullString(inv.GLCode), nullString(inv.PaymentBatchID), nullString(inv.JobID),
		inv.FilePath, formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read invoice id: %w", err)
	}

	if err := insertLinks(ctx, sqlTx, "invoice_po_links", "po_number", id, inv.AllPONumbers()); err != nil {
		return err
	}
	if err := insertLinks(ctx, sqlTx, "invoice_grn_links", "grn_number", id, inv.GRNNumbers); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invoice: %w", err)
	}

	inv.ID = id
	inv.CreatedAt, inv.UpdatedAt = now, now
	return nil
}

func insertLinks(ctx context.Context, db execer, table, column string, invoiceRowID int64, numbers []string) error {
	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (invoice_row_id, %s) VALUES (?, ?)", table, column)
	for _, n := range numbers {
		if n == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, query, invoiceRowID, n); err != nil {
			return fmt.Errorf("failed to link invoice %d to %s: %w", invoiceRowID, n, err)
		}
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*ap.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ap.NotFoundError{Entity: "invoice", Key: fmt.Sprint(id)}
	}
	return inv, err
}

// UpdateInvoice persists the review-side fields. Extracted fields are immutable.
func (s *Store) UpdateInvoice(ctx context.Context, inv *ap.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trace, err := marshalJSON(nonNilTrace(inv.MatchTrace))
	if err != nil {
		return fmt.Errorf("failed to encode match trace: %w", err)
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET
			status = ?, match_trace_json = ?, review_category = ?, notes = ?, gl_code = ?,
			payment_batch_id = ?, paid_date = ?, updated_at = ?
		WHERE id = ?`,
		inv.Status, trace, nullString(string(inv.ReviewCategory)), nullString(inv.Notes), nullString(inv.GLCode),
		nullString(inv.PaymentBatchID), nullDate(inv.PaidDate), formatTime(now), inv.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ap.NotFoundError{Entity: "invoice", Key: fmt.Sprint(inv.ID)}
	}
	inv.UpdatedAt = now
	return nil
}

func (s *Store) ListInvoices(ctx context.Context, filter ap.InvoiceFilter) ([]ap.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, st)
		}
	}
	if filter.Category != "" {
		where = append(where, "review_category = ?")
		args = append(args, filter.Category)
	}
	if filter.VendorName != "" {
		where = append(where, "vendor_name = ?")
		args = append(args, filter.VendorName)
	}
	if filter.PaymentBatchID != "" {
		where = append(where, "payment_batch_id = ?")
		args = append(args, filter.PaymentBatchID)
	}
	if filter.JobID != "" {
		where = append(where, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if !filter.DiscountDueFrom.IsZero() {
		where = append(where, "discount_due_date >= ?")
		args = append(args, filter.DiscountDueFrom.String())
	}
	if !filter.DiscountDueTo.IsZero() {
		where = append(where, "discount_due_date <= ?")
		args = append(args, filter.DiscountDueTo.String())
	}
	if !filter.DueBefore.IsZero() {
		where = append(where, "due_date IS NOT NULL AND due_date <= ?")
		args = append(args, filter.DueBefore.String())
	}
	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	query := "SELECT " + invoiceColumns + " FROM invoices"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []ap.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// InvoiceIDsForPO returns invoices linked to the PO directly or via its GRNs.
func (s *Store) InvoiceIDsForPO(ctx context.Context, poNumber string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryIDs(ctx, `
		SELECT invoice_row_id FROM invoice_po_links WHERE po_number = ?
		UNION
		SELECT l.invoice_row_id FROM invoice_grn_links l
		JOIN goods_receipts g ON g.grn_number = l.grn_number
		WHERE g.po_number = ?
		ORDER BY 1`, poNumber, poNumber)
}

func (s *Store) InvoiceIDsForGRN(ctx context.Context, grnNumber string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryIDs(ctx,
		"SELECT invoice_row_id FROM invoice_grn_links WHERE grn_number = ? ORDER BY invoice_row_id", grnNumber)
}

func (s *Store) FindDuplicateInvoices(ctx context.Context, vendorName, invoiceID string, excludeID int64, statuses []ap.Status) ([]int64, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	args := []any{vendorName, invoiceID, excludeID}
	for _, st := range statuses {
		args = append(args, st)
	}
	return s.queryIDs(ctx, `
		SELECT id FROM invoices
		WHERE vendor_name = ? AND invoice_id = ? AND id != ?
		  AND status IN (`+placeholders(len(statuses))+`)
		ORDER BY id`, args...)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanInvoice(row rowScanner) (*ap.Invoice, error) {
	var (
		inv                                 ap.Invoice
		poNumbers, grnNumbers               sql.NullString
		invoiceDate, dueDate, discountDue   sql.NullString
		paidDate                            sql.NullString
		subtotal, tax, grandTotal, discount sql.NullString
		discountTerms, items, trace         sql.NullString
		category, notes, glCode, batch, job sql.NullString
		createdAt, updatedAt                string
	)
	err := row.Scan(&inv.ID, &inv.InvoiceID, &inv.VendorName, &inv.BuyerName, &poNumbers, &grnNumbers,
		&invoiceDate, &dueDate, &discountDue, &paidDate, &subtotal, &tax, &grandTotal, &discount,
		&discountTerms, &items, &inv.Status, &trace, &category, &notes, &glCode,
		&batch, &job, &inv.FilePath, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(poNumbers, &inv.PONumbers); err != nil {
		return nil, fmt.Errorf("failed to decode invoice PO numbers: %w", err)
	}
	if err := unmarshalJSON(grnNumbers, &inv.GRNNumbers); err != nil {
		return nil, fmt.Errorf("failed to decode invoice GRN numbers: %w", err)
	}
	if err := unmarshalJSON(items, &inv.LineItems); err != nil {
		return nil, fmt.Errorf("failed to decode invoice line items: %w", err)
	}
	if err := unmarshalJSON(trace, &inv.MatchTrace); err != nil {
		return nil, fmt.Errorf("failed to decode match trace: %w", err)
	}
	inv.InvoiceDate = parseNullDate(invoiceDate)
	inv.DueDate = parseNullDate(dueDate)
	inv.DiscountDueDate = parseNullDate(discountDue)
	inv.PaidDate = parseNullDate(paidDate)
	inv.Subtotal = parseNullDecimal(subtotal)
	inv.Tax = parseNullDecimal(tax)
	inv.GrandTotal = parseNullDecimal(grandTotal)
	inv.DiscountAmount = parseNullDecimal(discount)
	inv.DiscountTerms = discountTerms.String
	inv.ReviewCategory = ap.ReviewCategory(category.String)
	inv.Notes = notes.String
	inv.GLCode = glCode.String
	inv.PaymentBatchID = batch.String
	inv.JobID = job.String
	inv.CreatedAt = parseTime(createdAt)
	inv.UpdatedAt = parseTime(updatedAt)
	return &inv, nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilTrace(t ap.Trace) ap.Trace {
	if t == nil {
		return ap.Trace{}
	}
	return t
}
