/*
Package workflow implements the review actions around a matched invoice.

PURPOSE:
  Everything a reviewer or an automated policy does to an invoice after the
  engine has run goes through Service: status changes, re-matches, PO/GRN
  corrections, notes and GL codes, vendor and internal queries, payment
  batches and exports. Each action writes an audit entry.

KEY RULES:
  - Status strings from outside are parsed against the closed status set
  - Transitions follow ap.CanTransition
  - A manual needs_review -> matched approval teaches the learner
  - After every engine run here, active automation rules may approve the
    invoice; that approval is not a manual one and teaches nothing
  - Re-matches run on a background queue, one writer per invoice

SEE ALSO:
  - rematch.go: Queue, locking, PO/GRN edits
  - payments.go: Payment batches
  - export.go: Spreadsheet exports
  - communication.go: Vendor and internal queries
*/
package workflow

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/config"
	"github.com/warp/ap-engine/learning"
	"github.com/warp/ap-engine/matching"
)

// Store is the persistence the workflow needs.
type Store interface {
	ap.InvoiceStore
	ap.DocumentStore
	ap.VendorStore
	ap.LearningStore
	ap.AuditLog
}

// Matcher runs the engine on one invoice. *matching.Engine implements it.
type Matcher interface {
	RunMatchSafely(ctx context.Context, invoiceRowID int64) (*ap.Invoice, error)
	RecordEngineError(ctx context.Context, invoiceRowID int64, cause error) *ap.Invoice
}

type Options struct {
	RematchWorkers int
	QueueSize      int
}

func DefaultOptions() Options {
	return Options{RematchWorkers: 2, QueueSize: 256}
}

// SystemActor is recorded for actions no user took.
const SystemActor = "system"

type Service struct {
	store   Store
	engine  Matcher
	learner *learning.Learner
	locker  Locker
	queue   *RematchQueue
	log     logrus.FieldLogger
	now     func() time.Time

	// payMu serializes batch creation so two batches never share an ID.
	payMu sync.Mutex
}

// NewService wires the workflow. locker may be nil for an in-process lock.
func NewService(store Store, engine Matcher, learner *learning.Learner, locker Locker, opts Options, log logrus.FieldLogger) *Service {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if opts.RematchWorkers <= 0 {
		opts.RematchWorkers = DefaultOptions().RematchWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	s := &Service{store: store, engine: engine, learner: learner, locker: locker, log: log, now: time.Now}
	s.queue = NewRematchQueue(opts.RematchWorkers, opts.QueueSize, s.rematchOne, log)
	return s
}

// Start launches the re-match workers.
func (s *Service) Start() { s.queue.Start() }

// Stop drains queued re-matches and stops the workers.
func (s *Service) Stop() { s.queue.Stop() }

// PendingRematches is the number of queued re-matches not yet started.
func (s *Service) PendingRematches() int { return s.queue.Pending() }

// =============================================================================
// MATCHING WITH AUTOMATION
// =============================================================================

// RunMatchSafely runs the engine under the invoice's lock, then applies
// automation rules to an invoice left in review. Engine failures, including
// a lock that cannot be obtained, are recorded on the invoice; the error is
// returned for logging.
func (s *Service) RunMatchSafely(ctx context.Context, invoiceRowID int64) (*ap.Invoice, error) {
	unlock, err := s.locker.Lock(ctx, invoiceKey(invoiceRowID))
	if err != nil {
		err = fmt.Errorf("lock invoice %d: %w", invoiceRowID, err)
		return s.engine.RecordEngineError(ctx, invoiceRowID, err), err
	}
	defer unlock()

	inv, matchErr := s.engine.RunMatchSafely(ctx, invoiceRowID)
	if inv == nil || inv.Status != ap.StatusNeedsReview {
		return inv, matchErr
	}
	s.applyRulesSafely(ctx, inv)
	return inv, matchErr
}

// applyRulesSafely applies automation rules, logging failures and panics.
// The invoice stays in review when no rule could be applied.
func (s *Service) applyRulesSafely(ctx context.Context, inv *ap.Invoice) {
	defer func() {
		if r := recover(); r != nil {
			config.LogError(s.log, "workflow", "applyRulesSafely", "automation rules panicked", inv.ID, fmt.Errorf("%v", r))
		}
	}()
	if _, err := s.ApplyAutomationRules(ctx, inv); err != nil {
		config.LogError(s.log, "workflow", "applyRulesSafely", "apply automation rules", inv.ID, err)
	}
}

func invoiceKey(id int64) string { return "invoice:" + strconv.FormatInt(id, 10) }

// =============================================================================
// STATUS
// =============================================================================

// UpdateStatus applies a reviewer's status change. Moving to matching is a
// re-match request and is queued.
func (s *Service) UpdateStatus(ctx context.Context, invoiceRowID int64, status, actor, reason string) (*ap.Invoice, error) {
	to, err := ap.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if to == ap.StatusMatching {
		if err := s.Rematch(ctx, actor, invoiceRowID); err != nil {
			return nil, err
		}
		return s.store.GetInvoice(ctx, invoiceRowID)
	}

	inv, err := s.store.GetInvoice(ctx, invoiceRowID)
	if err != nil {
		return nil, err
	}
	from := inv.Status
	if !ap.CanTransition(from, to) {
		return nil, &ap.TransitionError{InvoiceRowID: invoiceRowID, From: from, To: to}
	}

	s.setStatus(inv, to)
	if to == ap.StatusPaid && inv.PaidDate.IsZero() {
		inv.PaidDate = ap.DateOf(s.now())
	}
	if err := s.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice %d: %w", invoiceRowID, err)
	}

	details := map[string]any{"from": from, "to": to}
	if reason != "" {
		details["reason"] = reason
	}
	s.audit(ctx, inv, actor, "Status Change", fmt.Sprintf("Status changed from %s to %s", from, to), details)

	if from == ap.StatusNeedsReview && to == ap.StatusMatched && s.learner != nil {
		if _, err := s.learner.LearnFromApproval(ctx, inv); err != nil {
			config.LogError(s.log, "workflow", "UpdateStatus", "learn from approval", invoiceRowID, err)
		}
	}
	return inv, nil
}

// setStatus keeps the review category consistent: an invoice returning to
// review gets its category back from the trace.
func (s *Service) setStatus(inv *ap.Invoice, to ap.Status) {
	inv.SetStatus(to)
	if to == ap.StatusNeedsReview && inv.ReviewCategory == "" {
		inv.ReviewCategory = matching.Categorize(inv.MatchTrace)
	}
}

// BatchResult reports a bulk action per invoice.
type BatchResult struct {
	Updated []int64          `json:"updated"`
	Failed  map[int64]string `json:"failed,omitempty"`
}

func (s *Service) BatchUpdateStatus(ctx context.Context, ids []int64, status, actor, reason string) (*BatchResult, error) {
	if _, err := ap.ParseStatus(status); err != nil {
		return nil, err
	}
	res := &BatchResult{Updated: []int64{}}
	for _, id := range ids {
		if _, err := s.UpdateStatus(ctx, id, status, actor, reason); err != nil {
			if res.Failed == nil {
				res.Failed = make(map[int64]string)
			}
			res.Failed[id] = err.Error()
			continue
		}
		res.Updated = append(res.Updated, id)
	}
	return res, nil
}

// =============================================================================
// NOTES & GL CODE
// =============================================================================

func (s *Service) UpdateNotes(ctx context.Context, invoiceRowID int64, notes, actor string) (*ap.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceRowID)
	if err != nil {
		return nil, err
	}
	inv.Notes = notes
	if err := s.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	s.audit(ctx, inv, actor, "Notes Updated", "Reviewer notes updated", nil)
	return inv, nil
}

func (s *Service) UpdateGLCode(ctx context.Context, invoiceRowID int64, glCode, actor string) (*ap.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceRowID)
	if err != nil {
		return nil, err
	}
	previous := inv.GLCode
	inv.GLCode = glCode
	if err := s.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	s.audit(ctx, inv, actor, "GL Code Applied", fmt.Sprintf("GL code set to %s", glCode),
		map[string]any{"from": previous, "to": glCode})
	return inv, nil
}

// Suggest returns a learned-pattern hint for an invoice in review.
func (s *Service) Suggest(ctx context.Context, invoiceRowID int64) (*learning.Suggestion, error) {
	inv, err := s.store.GetInvoice(ctx, invoiceRowID)
	if err != nil {
		return nil, err
	}
	if s.learner == nil {
		return nil, nil
	}
	return s.learner.Suggest(ctx, inv)
}

// =============================================================================
// AUDIT
// =============================================================================

func (s *Service) audit(ctx context.Context, inv *ap.Invoice, actor, action, summary string, details map[string]any) {
	if actor == "" {
		actor = SystemActor
	}
	entry := ap.AuditEntry{
		ID:           uuid.NewString(),
		EntityType:   "Invoice",
		EntityID:     inv.InvoiceID,
		InvoiceRowID: inv.ID,
		Actor:        actor,
		Action:       action,
		Summary:      summary,
		Details:      details,
		Timestamp:    s.now().UTC(),
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		config.LogError(s.log, "workflow", "audit", action, inv.ID, err)
	}
}

func (s *Service) auditDocument(ctx context.Context, entityType, entityID, actor, action, summary string, details map[string]any) {
	if actor == "" {
		actor = SystemActor
	}
	entry := ap.AuditEntry{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Action:     action,
		Summary:    summary,
		Details:    details,
		Timestamp:  s.now().UTC(),
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		config.LogError(s.log, "workflow", "auditDocument", action, entityID, err)
	}
}
