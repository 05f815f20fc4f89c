package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/warp/ap-engine/ap"
)

// =============================================================================
// AUDIT LOG (ap.AuditLog) - Append-only
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry ap.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	var details sql.NullString
	if len(entry.Details) > 0 {
		b, err := marshalJSON(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = nullString(b)
	}
	var invoiceRowID sql.NullInt64
	if entry.InvoiceRowID != 0 {
		invoiceRowID = sql.NullInt64{Int64: entry.InvoiceRowID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, entity_type, entity_id, invoice_row_id, actor, action, summary, details_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EntityType, entry.EntityID, invoiceRowID, entry.Actor, entry.Action,
		nullString(entry.Summary), details, formatTime(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, invoiceRowID int64) ([]ap.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, invoice_row_id, actor, action, summary, details_json, timestamp
		FROM audit_log WHERE invoice_row_id = ?
		ORDER BY timestamp DESC, rowid DESC`, invoiceRowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []ap.AuditEntry
	for rows.Next() {
		var (
			e                ap.AuditEntry
			rowID            sql.NullInt64
			summary, details sql.NullString
			ts               string
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &rowID, &e.Actor, &e.Action, &summary, &details, &ts); err != nil {
			return nil, err
		}
		e.InvoiceRowID = rowID.Int64
		e.Summary = summary.String
		if err := unmarshalJSON(details, &e.Details); err != nil {
			return nil, fmt.Errorf("failed to decode audit details: %w", err)
		}
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
