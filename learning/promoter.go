package learning

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/ap-engine/ap"
)

// Promoter proposes automation rules for heuristics confident enough to act
// on without a reviewer. Proposals are notifications; nothing is approved
// until a user accepts one.
type Promoter struct {
	store ap.LearningStore
	cfg   Config
	log   logrus.FieldLogger
}

func NewPromoter(store ap.LearningStore, cfg Config, log logrus.FieldLogger) *Promoter {
	return &Promoter{store: store, cfg: cfg, log: log}
}

// Scan creates one AutomationSuggestion notification per promotable heuristic
// that has no equivalent rule and no unread suggestion. Returns the number
// of notifications created.
func (p *Promoter) Scan(ctx context.Context) (int, error) {
	hs, err := p.store.ListHeuristics(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list heuristics: %w", err)
	}
	rules, err := p.store.ListAutomationRules(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list automation rules: %w", err)
	}

	created := 0
	for _, h := range hs {
		if h.ConfidenceScore < p.cfg.PromotionConfidence || h.ResolutionAction != ap.StatusMatched {
			continue
		}
		if hasEquivalentRule(rules, h) {
			continue
		}
		entityID := strconv.FormatInt(h.ID, 10)
		pending, err := p.store.HasUnreadNotification(ctx, ap.NotifyAutomationSuggestion, entityID)
		if err != nil {
			return created, fmt.Errorf("check notifications for heuristic %d: %w", h.ID, err)
		}
		if pending {
			continue
		}

		n := &ap.Notification{
			ID:                uuid.NewString(),
			Type:              ap.NotifyAutomationSuggestion,
			Message:           promotionMessage(h),
			RelatedEntityID:   entityID,
			RelatedEntityType: "LearnedHeuristic",
			ProposedAction:    ProposeRule(h),
		}
		if err := p.store.CreateNotification(ctx, n); err != nil {
			return created, fmt.Errorf("create suggestion for heuristic %d: %w", h.ID, err)
		}
		created++
		p.log.WithFields(logrus.Fields{
			"vendor":     h.VendorName,
			"exception":  h.ExceptionType,
			"confidence": h.ConfidenceScore,
		}).Info("automation suggestion created")
	}
	return created, nil
}

// ProposeRule is the approve rule a heuristic suggests.
func ProposeRule(h ap.LearnedHeuristic) *ap.ProposedRule {
	return &ap.ProposedRule{
		RuleName:   fmt.Sprintf("Auto-approve %s for %s (%s)", h.ExceptionType, h.VendorName, h.LearnedCondition),
		VendorName: h.VendorName,
		Conditions: h.LearnedCondition,
		Action:     ap.RuleApprove,
	}
}

func hasEquivalentRule(rules []ap.AutomationRule, h ap.LearnedHeuristic) bool {
	for _, r := range rules {
		if SameRule(h.VendorName, h.LearnedCondition, ap.RuleApprove, r) {
			return true
		}
	}
	return false
}

func promotionMessage(h ap.LearnedHeuristic) string {
	return fmt.Sprintf("You have approved %s for %s %d times (%s). Create a rule to approve these automatically?",
		h.ExceptionType, h.VendorName, h.TriggerCount, h.LearnedCondition)
}
