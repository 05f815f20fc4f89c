package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/ap-engine/ap"
)

// =============================================================================
// PURCHASE ORDERS (ap.DocumentStore)
// =============================================================================

const poColumns = `id, po_number, vendor_name, buyer_name, order_date, line_items_json,
	subtotal, tax, grand_total, raw_payload, file_path, created_at, updated_at`

// SavePurchaseOrder inserts a PO and sets its ID.
func (s *Store) SavePurchaseOrder(ctx context.Context, po *ap.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := marshalJSON(nonNilItems(po.LineItems))
	if err != nil {
		return fmt.Errorf("failed to encode PO line items: %w", err)
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO purchase_orders
		(po_number, vendor_name, buyer_name, order_date, line_items_json,
		 subtotal, tax, grand_total, raw_payload, file_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		po.PONumber, po.VendorName, po.BuyerName, nullDate(po.OrderDate), items,
		nullDecimal(po.Subtotal), nullDecimal(po.Tax), nullDecimal(po.GrandTotal),
		nullString(string(po.RawPayload)), po.FilePath, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("PO %s: %w", po.PONumber, ap.ErrDuplicateDocument)
		}
		return fmt.Errorf("failed to insert PO: %w", err)
	}
	po.ID, _ = res.LastInsertId()
	po.CreatedAt, po.UpdatedAt = now, now
	return nil
}

func (s *Store) GetPurchaseOrder(ctx context.Context, poNumber string) (*ap.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+poColumns+" FROM purchase_orders WHERE po_number = ?", poNumber)
	po, err := scanPurchaseOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ap.NotFoundError{Entity: "purchase order", Key: poNumber}
	}
	return po, err
}

// UpdatePurchaseOrder rewrites the header, line items and raw payload.
func (s *Store) UpdatePurchaseOrder(ctx context.Context, po *ap.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := marshalJSON(nonNilItems(po.LineItems))
	if err != nil {
		return fmt.Errorf("failed to encode PO line items: %w", err)
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE purchase_orders SET
			vendor_name = ?, buyer_name = ?, order_date = ?, line_items_json = ?,
			subtotal = ?, tax = ?, grand_total = ?, raw_payload = ?, updated_at = ?
		WHERE po_number = ?`,
		po.VendorName, po.BuyerName, nullDate(po.OrderDate), items,
		nullDecimal(po.Subtotal), nullDecimal(po.Tax), nullDecimal(po.GrandTotal),
		nullString(string(po.RawPayload)), formatTime(now), po.PONumber,
	)
	if err != nil {
		return fmt.Errorf("failed to update PO: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ap.NotFoundError{Entity: "purchase order", Key: po.PONumber}
	}
	po.UpdatedAt = now
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchaseOrder(row rowScanner) (*ap.PurchaseOrder, error) {
	var (
		po                        ap.PurchaseOrder
		orderDate, items          sql.NullString
		subtotal, tax, grandTotal sql.NullString
		rawPayload                sql.NullString
		createdAt, updatedAt      string
	)
	err := row.Scan(&po.ID, &po.PONumber, &po.VendorName, &po.BuyerName, &orderDate, &items,
		&subtotal, &tax, &grandTotal, &rawPayload, &po.FilePath, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	po.OrderDate = parseNullDate(orderDate)
	if err := unmarshalJSON(items, &po.LineItems); err != nil {
		return nil, fmt.Errorf("failed to decode PO %s line items: %w", po.PONumber, err)
	}
	po.Subtotal = parseNullDecimal(subtotal)
	po.Tax = parseNullDecimal(tax)
	po.GrandTotal = parseNullDecimal(grandTotal)
	if rawPayload.Valid {
		po.RawPayload = []byte(rawPayload.String)
	}
	po.CreatedAt = parseTime(createdAt)
	po.UpdatedAt = parseTime(updatedAt)
	return &po, nil
}

// =============================================================================
// GOODS RECEIPT NOTES (ap.DocumentStore)
// =============================================================================

const grnColumns = `id, grn_number, po_number, received_date, line_items_json, file_path, created_at, updated_at`

func (s *Store) SaveGoodsReceipt(ctx context.Context, grn *ap.GoodsReceiptNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := marshalJSON(nonNilItems(grn.LineItems))
	if err != nil {
		return fmt.Errorf("failed to encode GRN line items: %w", err)
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO goods_receipts
		(grn_number, po_number, received_date, line_items_json, file_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		grn.GRNNumber, nullString(grn.PONumber), nullDate(grn.ReceivedDate), items,
		grn.FilePath, formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("GRN %s: %w", grn.GRNNumber, ap.ErrDuplicateDocument)
		}
		return fmt.Errorf("failed to insert GRN: %w", err)
	}
	grn.ID, _ = res.LastInsertId()
	grn.CreatedAt, grn.UpdatedAt = now, now
	return nil
}

func (s *Store) GetGoodsReceipt(ctx context.Context, grnNumber string) (*ap.GoodsReceiptNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+grnColumns+" FROM goods_receipts WHERE grn_number = ?", grnNumber)
	grn, err := scanGoodsReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ap.NotFoundError{Entity: "goods receipt", Key: grnNumber}
	}
	return grn, err
}

func (s *Store) UpdateGoodsReceipt(ctx context.Context, grn *ap.GoodsReceiptNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := marshalJSON(nonNilItems(grn.LineItems))
	if err != nil {
		return fmt.Errorf("failed to encode GRN line items: %w", err)
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE goods_receipts SET po_number = ?, received_date = ?, line_items_json = ?, updated_at = ?
		WHERE grn_number = ?`,
		nullString(grn.PONumber), nullDate(grn.ReceivedDate), items, formatTime(now), grn.GRNNumber,
	)
	if err != nil {
		return fmt.Errorf("failed to update GRN: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ap.NotFoundError{Entity: "goods receipt", Key: grn.GRNNumber}
	}
	grn.UpdatedAt = now
	return nil
}

func (s *Store) ListGoodsReceiptsForPO(ctx context.Context, poNumber string) ([]ap.GoodsReceiptNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+grnColumns+" FROM goods_receipts WHERE po_number = ? ORDER BY id", poNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query GRNs: %w", err)
	}
	defer rows.Close()

	var grns []ap.GoodsReceiptNote
	for rows.Next() {
		grn, err := scanGoodsReceipt(rows)
		if err != nil {
			return nil, err
		}
		grns = append(grns, *grn)
	}
	return grns, rows.Err()
}

func scanGoodsReceipt(row rowScanner) (*ap.GoodsReceiptNote, error) {
	var (
		grn                  ap.GoodsReceiptNote
		poNumber, received   sql.NullString
		items                sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&grn.ID, &grn.GRNNumber, &poNumber, &received, &items, &grn.FilePath, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	grn.PONumber = poNumber.String
	grn.ReceivedDate = parseNullDate(received)
	if err := unmarshalJSON(items, &grn.LineItems); err != nil {
		return nil, fmt.Errorf("failed to decode GRN %s line items: %w", grn.GRNNumber, err)
	}
	grn.CreatedAt = parseTime(createdAt)
	grn.UpdatedAt = parseTime(updatedAt)
	return &grn, nil
}

func nonNilItems(items []ap.LineItem) []ap.LineItem {
	if items == nil {
		return []ap.LineItem{}
	}
	return items
}
