/*
scheduler.go - Periodic monitoring cycle

PURPOSE:
  Looks for things a reviewer should act on without being asked:
  heuristics confident enough to become automation rules, and matched
  invoices whose early-payment discount is about to lapse. Both become
  notifications.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs one cycle immediately on start
  - A notification is not repeated while an unread one exists for the same
    (type, related entity)

CONFIGURATION:
  - Interval: How often to check (default: 1 hour)
  - DiscountWindowDays: How far ahead a discount deadline counts (default: 3)

USAGE:
  s := monitor.NewScheduler(store, promoter, log)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - learning/promoter.go: Automation suggestions
*/
package monitor

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
)

// Store is what a cycle reads and writes.
type Store interface {
	ListInvoices(ctx context.Context, filter ap.InvoiceFilter) ([]ap.Invoice, error)
	CreateNotification(ctx context.Context, n *ap.Notification) error
	HasUnreadNotification(ctx context.Context, typ ap.NotificationType, relatedEntityID string) (bool, error)
}

// Promoter proposes automation rules. *learning.Promoter implements it.
type Promoter interface {
	Scan(ctx context.Context) (int, error)
}

// CycleResult counts the notifications one cycle created.
type CycleResult struct {
	Suggestions   int `json:"suggestions"`
	Optimizations int `json:"optimizations"`
}

type Scheduler struct {
	Interval           time.Duration
	DiscountWindowDays int
	Enabled            bool

	store    Store
	promoter Promoter
	log      logrus.FieldLogger
	now      func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu sync.Mutex
	last   time.Time
}

func NewScheduler(store Store, promoter Promoter, log logrus.FieldLogger) *Scheduler {
	return &Scheduler{
		Interval:           time.Hour,
		DiscountWindowDays: 3,
		Enabled:            true,
		store:              store,
		promoter:           promoter,
		log:                log,
		now:                time.Now,
		stop:               make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("[Monitor] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run()

	s.log.WithField("interval", s.Interval.String()).Info("[Monitor] Started")
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.log.Info("[Monitor] Stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	s.cycle()
	for {
		select {
		case <-s.ticker.C:
			s.cycle()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) cycle() {
	res, err := s.RunOnce(context.Background())
	if err != nil {
		config.LogError(s.log, "monitor", "cycle", "monitoring cycle", res, err)
		return
	}
	if res.Suggestions > 0 || res.Optimizations > 0 {
		s.log.WithFields(logrus.Fields{
			"suggestions":   res.Suggestions,
			"optimizations": res.Optimizations,
		}).Info("[Monitor] Cycle completed")
	}
}

// RunOnce runs one cycle now. Both checks run even if the first fails; the
// first error is returned.
func (s *Scheduler) RunOnce(ctx context.Context) (CycleResult, error) {
	var (
		res      CycleResult
		firstErr error
	)
	s.log.Debug("[Monitor] Checking for suggestions and optimizations")

	n, err := s.promoter.Scan(ctx)
	res.Suggestions = n
	if err != nil {
		firstErr = fmt.Errorf("automation suggestions: %w", err)
	}

	n, err = s.discountOptimizations(ctx)
	res.Optimizations = n
	if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("discount optimizations: %w", err)
	}

	s.lastMu.Lock()
	s.last = s.now()
	s.lastMu.Unlock()
	return res, firstErr
}

// LastRun returns when the last cycle finished, zero before the first.
func (s *Scheduler) LastRun() time.Time {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last
}

// NextRunTime returns when the next scheduled cycle will occur.
func (s *Scheduler) NextRunTime() time.Time {
	last := s.LastRun()
	if last.IsZero() {
		return s.now()
	}
	return last.Add(s.Interval)
}

// =============================================================================
// EARLY-PAYMENT DISCOUNTS
// =============================================================================

// discountOptimizations flags matched invoices whose discount deadline falls
// between today and today + DiscountWindowDays.
func (s *Scheduler) discountOptimizations(ctx context.Context) (int, error) {
	today := ap.DateOf(s.now())
	invoices, err := s.store.ListInvoices(ctx, ap.InvoiceFilter{
		Statuses:        []ap.Status{ap.StatusMatched},
		DiscountDueFrom: today,
		DiscountDueTo:   today.AddDays(s.DiscountWindowDays),
	})
	if err != nil {
		return 0, err
	}

	created := 0
	for _, inv := range invoices {
		entityID := strconv.FormatInt(inv.ID, 10)
		pending, err := s.store.HasUnreadNotification(ctx, ap.NotifyOptimization, entityID)
		if err != nil {
			return created, err
		}
		if pending {
			continue
		}
		n := &ap.Notification{
			ID:                uuid.NewString(),
			Type:              ap.NotifyOptimization,
			Message:           discountMessage(inv, today),
			RelatedEntityID:   entityID,
			RelatedEntityType: "Invoice",
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func discountMessage(inv ap.Invoice, today ap.Date) string {
	days := ap.DaysBetween(today, inv.DiscountDueDate)
	when := fmt.Sprintf("within %d days", days)
	switch days {
	case 0:
		when = "today"
	case 1:
		when = "by tomorrow"
	}
	amount := ""
	if inv.DiscountAmount != nil {
		amount = " of $" + inv.DiscountAmount.StringFixed(2)
	}
	return fmt.Sprintf("Pay invoice %s from %s %s (%s) to capture the early-payment discount%s.",
		inv.InvoiceID, inv.VendorName, when, inv.DiscountDueDate, amount)
}
