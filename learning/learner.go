/*
Package learning turns manual review decisions into reusable knowledge.

PURPOSE:
  When a reviewer approves an invoice the engine sent to review, the first
  failure in its trace explains what the reviewer tolerated. The learner
  generalizes that failure into a per-vendor heuristic whose confidence grows
  with every repeat. Confident heuristics are offered back as review
  suggestions and, past a higher bar, as automation rule proposals.

KEY CONCEPTS:
  - Observation: exception type plus the bound a single failure implies
  - Heuristic: vendor + exception type + bound, with trigger count and confidence
  - Confidence: 1 - 1/(n+1), so 0.5, 0.667, 0.75 ... never reaching 1

GENERALIZATION:
  A new observation strengthens the tightest existing heuristic whose bound
  already covers it. Only when nothing covers it is a new heuristic created
  with the observed bound. Approving a 5% variance after a 7% one therefore
  counts toward the 7% heuristic.

SEE ALSO:
  - promoter.go: Heuristic to automation suggestion
  - rules.go: Automation rule coverage
*/
package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/ap-engine/ap"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

type Config struct {
	// SuggestionConfidence is the minimum confidence for review suggestions.
	SuggestionConfidence float64
	// PromotionConfidence is the minimum confidence for automation proposals.
	PromotionConfidence float64
}

func DefaultConfig() Config {
	return Config{SuggestionConfidence: 0.8, PromotionConfidence: 0.9}
}

// Confidence returns the score for a heuristic triggered n times.
func Confidence(n int) float64 {
	return 1 - 1/float64(n+1)
}

// =============================================================================
// OBSERVATIONS
// =============================================================================

// Observation is what one FAIL entry says the reviewer accepted.
type Observation struct {
	Type      ap.ExceptionType
	Condition ap.Condition
}

// Observe classifies a single trace entry. Only price and quantity failures
// with enough detail to compute a bound are classifiable.
func Observe(entry ap.TraceEntry) (Observation, bool) {
	if entry.Status != ap.TraceFail {
		return Observation{}, false
	}
	d := entry.Details
	switch entry.Kind {
	case ap.CheckPrice:
		if d.InvoicePrice == nil || d.POPrice == nil || d.POPrice.IsZero() {
			return Observation{}, false
		}
		variance := d.InvoicePrice.Sub(*d.POPrice).Abs().
			Div(d.POPrice.Abs()).
			Mul(decimal.NewFromInt(100)).
			Ceil().IntPart()
		return Observation{Type: ap.PriceMismatchException, Condition: ap.VarianceCondition(variance)}, true

	case ap.CheckQuantity:
		if d.InvoiceQty == nil {
			return Observation{}, false
		}
		expected := d.GRNQty
		if expected == nil {
			expected = d.POQty
		}
		if expected == nil {
			return Observation{}, false
		}
		return Observation{Type: ap.QuantityMismatchException, Condition: ap.QuantityCondition(d.InvoiceQty.Sub(*expected).Abs())}, true
	}
	return Observation{}, false
}

// ObserveFirst classifies the earliest failure, the root cause of review.
func ObserveFirst(trace ap.Trace) (Observation, bool) {
	first, ok := trace.FirstFailure()
	if !ok {
		return Observation{}, false
	}
	return Observe(first)
}

// =============================================================================
// LEARNER
// =============================================================================

type Learner struct {
	store ap.LearningStore
	cfg   Config
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewLearner(store ap.LearningStore, cfg Config, log logrus.FieldLogger) *Learner {
	return &Learner{store: store, cfg: cfg, log: log, now: time.Now}
}

// LearnFromApproval records the reviewer's override of inv. It must be called
// only for a manual needs_review -> matched transition. Returns nil when the
// trace holds no classifiable failure.
func (l *Learner) LearnFromApproval(ctx context.Context, inv *ap.Invoice) (*ap.LearnedHeuristic, error) {
	obs, ok := ObserveFirst(inv.MatchTrace)
	if !ok {
		l.log.WithField("invoice_id", inv.InvoiceID).Debug("no classifiable failure, nothing learned")
		return nil, nil
	}

	existing, err := l.store.FindHeuristics(ctx, inv.VendorName, obs.Type)
	if err != nil {
		return nil, fmt.Errorf("find heuristics for %q: %w", inv.VendorName, err)
	}

	h := tightestCovering(existing, obs.Condition)
	if h == nil {
		h = &ap.LearnedHeuristic{
			VendorName:       inv.VendorName,
			ExceptionType:    obs.Type,
			LearnedCondition: obs.Condition,
			ResolutionAction: ap.StatusMatched,
		}
	}
	h.TriggerCount++
	h.ConfidenceScore = Confidence(h.TriggerCount)
	h.LastAppliedAt = l.now().UTC()

	if err := l.store.SaveHeuristic(ctx, h); err != nil {
		return nil, fmt.Errorf("save heuristic: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"invoice_id": inv.InvoiceID,
		"vendor":     inv.VendorName,
		"exception":  obs.Type,
		"condition":  h.LearnedCondition.String(),
		"triggers":   h.TriggerCount,
		"confidence": h.ConfidenceScore,
	}).Info("heuristic updated from manual approval")
	return h, nil
}

// tightestCovering returns the approve heuristic with the smallest bound that
// still covers observed, or nil.
func tightestCovering(hs []ap.LearnedHeuristic, observed ap.Condition) *ap.LearnedHeuristic {
	var best *ap.LearnedHeuristic
	for i := range hs {
		h := &hs[i]
		if h.ResolutionAction != ap.StatusMatched || !h.LearnedCondition.Covers(observed) {
			continue
		}
		if best == nil || tighter(h.LearnedCondition, best.LearnedCondition) {
			best = h
		}
	}
	return best
}

func tighter(a, b ap.Condition) bool {
	if a.MaxVariancePercent != nil && b.MaxVariancePercent != nil && *a.MaxVariancePercent != *b.MaxVariancePercent {
		return *a.MaxVariancePercent < *b.MaxVariancePercent
	}
	if a.MaxQuantityDiff != nil && b.MaxQuantityDiff != nil {
		return a.MaxQuantityDiff.LessThan(*b.MaxQuantityDiff)
	}
	return false
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

// Suggestion tells a reviewer that a past pattern explains this invoice.
type Suggestion struct {
	Message   string               `json:"message"`
	Heuristic *ap.LearnedHeuristic `json:"heuristic"`
}

// Suggest looks for a confident heuristic that covers the invoice's first
// failure. Returns nil when the invoice is not in review or nothing applies.
func (l *Learner) Suggest(ctx context.Context, inv *ap.Invoice) (*Suggestion, error) {
	if inv.Status != ap.StatusNeedsReview {
		return nil, nil
	}
	obs, ok := ObserveFirst(inv.MatchTrace)
	if !ok {
		return nil, nil
	}
	hs, err := l.store.FindHeuristics(ctx, inv.VendorName, obs.Type)
	if err != nil {
		return nil, fmt.Errorf("find heuristics for %q: %w", inv.VendorName, err)
	}

	var best *ap.LearnedHeuristic
	for i := range hs {
		h := &hs[i]
		if h.ResolutionAction != ap.StatusMatched || h.ConfidenceScore < l.cfg.SuggestionConfidence {
			continue
		}
		if !h.LearnedCondition.Covers(obs.Condition) {
			continue
		}
		if best == nil || h.ConfidenceScore > best.ConfidenceScore {
			best = h
		}
	}
	if best == nil {
		return nil, nil
	}
	return &Suggestion{Message: suggestionMessage(best), Heuristic: best}, nil
}

func suggestionMessage(h *ap.LearnedHeuristic) string {
	c := h.LearnedCondition
	switch {
	case h.ExceptionType == ap.PriceMismatchException && c.MaxVariancePercent != nil:
		return fmt.Sprintf("You have previously approved price mismatches of up to %d%% for %s. This invoice appears to match that pattern.",
			*c.MaxVariancePercent, h.VendorName)
	case h.ExceptionType == ap.QuantityMismatchException && c.MaxQuantityDiff != nil:
		return fmt.Sprintf("You have previously approved quantity differences of up to %s units for %s. This invoice appears to match that pattern.",
			c.MaxQuantityDiff.String(), h.VendorName)
	}
	return fmt.Sprintf("You have previously approved similar exceptions (%s) for %s.", c.String(), h.VendorName)
}
