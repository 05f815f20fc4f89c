/*
Package sqlite provides a SQLite-backed implementation of the ap storage interfaces.

PURPOSE:
  Implements every persistence interface in ap/store.go on one database
  handle: documents, invoices and their links, vendor settings, the learning
  tables, jobs and the audit log.

KEY TABLES:
  purchase_orders:    Unique po_number, line items as JSON
  goods_receipts:     Unique grn_number, optional po_number back-reference
  invoices:           Status, trace and review fields; invoice_id NOT unique
  invoice_po_links:   Invoice to PO numbers (many-to-many)
  invoice_grn_links:  Invoice to GRN numbers (many-to-many)
  vendor_settings:    Per-vendor tolerance and contact
  learned_heuristics: Unique (vendor, exception type, condition)
  automation_rules:   Approve rules, user-made or accepted suggestions
  notifications:      Suggestions and optimizations
  jobs:               Ingestion batches
  audit_log:          Append-only

INVOICE IDENTITY:
  Invoices get an integer row ID. A resubmitted invoice_id is stored as a new
  row so the engine's duplicate check can flag it; rejecting it at insert
  would hide the resubmission from reviewers.

CONCURRENCY:
  Uses sync.RWMutex so writes are serialized. Each call takes its own pooled
  connection from database/sql, so concurrent ingestion workers never share
  a session. ":memory:" databases are pinned to one connection because each
  SQLite connection would otherwise see a separate empty database.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/ap.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ap/store.go: Interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/ap-engine/ap"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

var _ ap.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS purchase_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		po_number TEXT NOT NULL UNIQUE,
		vendor_name TEXT NOT NULL DEFAULT '',
		buyer_name TEXT NOT NULL DEFAULT '',
		order_date TEXT,
		line_items_json TEXT NOT NULL DEFAULT '[]',
		subtotal TEXT,
		tax TEXT,
		grand_total TEXT,
		raw_payload TEXT,
		file_path TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goods_receipts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		grn_number TEXT NOT NULL UNIQUE,
		po_number TEXT,
		received_date TEXT,
		line_items_json TEXT NOT NULL DEFAULT '[]',
		file_path TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goods_receipts_po
		ON goods_receipts(po_number);

	CREATE TABLE IF NOT EXISTS invoices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		invoice_id TEXT NOT NULL,
		vendor_name TEXT NOT NULL DEFAULT '',
		buyer_name TEXT NOT NULL DEFAULT '',
		related_po_numbers_json TEXT NOT NULL DEFAULT '[]',
		related_grn_numbers_json TEXT NOT NULL DEFAULT '[]',
		invoice_date TEXT,
		due_date TEXT,
		discount_due_date TEXT,
		paid_date TEXT,
		subtotal TEXT,
		tax TEXT,
		grand_total TEXT,
		discount_amount TEXT,
		discount_terms TEXT,
		line_items_json TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL,
		match_trace_json TEXT NOT NULL DEFAULT '[]',
		review_category TEXT,
		notes TEXT,
		gl_code TEXT,
		payment_batch_id TEXT,
		job_id TEXT,
		file_path TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Not unique: resubmissions are stored and flagged by the duplicate check
	CREATE INDEX IF NOT EXISTS idx_invoices_vendor_invoice
		ON invoices(vendor_name, invoice_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_status
		ON invoices(status);
	CREATE INDEX IF NOT EXISTS idx_invoices_batch
		ON invoices(payment_batch_id) WHERE payment_batch_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS invoice_po_links (
		invoice_row_id INTEGER NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		po_number TEXT NOT NULL,
		PRIMARY KEY (invoice_row_id, po_number)
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_po_links_po
		ON invoice_po_links(po_number);

	CREATE TABLE IF NOT EXISTS invoice_grn_links (
		invoice_row_id INTEGER NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		grn_number TEXT NOT NULL,
		PRIMARY KEY (invoice_row_id, grn_number)
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_grn_links_grn
		ON invoice_grn_links(grn_number);

	CREATE TABLE IF NOT EXISTS vendor_settings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vendor_name TEXT NOT NULL UNIQUE,
		price_tolerance_percent TEXT,
		contact_email TEXT
	);

	CREATE TABLE IF NOT EXISTS learned_heuristics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vendor_name TEXT NOT NULL,
		exception_type TEXT NOT NULL,
		learned_condition TEXT NOT NULL,
		trigger_count INTEGER NOT NULL DEFAULT 1,
		confidence_score REAL NOT NULL,
		resolution_action TEXT NOT NULL,
		last_applied_at TEXT NOT NULL,
		UNIQUE(vendor_name, exception_type, learned_condition)
	);

	CREATE TABLE IF NOT EXISTS automation_rules (
		id TEXT PRIMARY KEY,
		rule_name TEXT NOT NULL,
		vendor_name TEXT,
		conditions_json TEXT NOT NULL,
		action TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		source TEXT NOT NULL DEFAULT 'user',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		related_entity_id TEXT,
		related_entity_type TEXT,
		proposed_action_json TEXT,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_unread
		ON notifications(type, related_entity_id) WHERE is_read = FALSE;

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		total_files INTEGER NOT NULL DEFAULT 0,
		processed_files INTEGER NOT NULL DEFAULT 0,
		summary_json TEXT,
		created_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		invoice_row_id INTEGER,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		summary TEXT,
		details_json TEXT,
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_invoice
		ON audit_log(invoice_row_id, timestamp DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func nullDate(d ap.Date) sql.NullString {
	return nullString(d.String())
}

func parseNullDate(ns sql.NullString) ap.Date {
	if !ns.Valid {
		return ap.Date{}
	}
	d, _ := ap.ParseDate(ns.String)
	return d
}

// timeLayout is fixed-width so timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalJSON(ns sql.NullString, v any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), v)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
