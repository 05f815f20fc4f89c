package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/ap-engine/ap"
	"github.com/warp/ap-engine/learning"
)

// =============================================================================
// AUTOMATION RULES
// =============================================================================

// ApplyAutomationRules approves an invoice in review when an active rule
// covers every failure. Returns the rule that fired, or nil.
func (s *Service) ApplyAutomationRules(ctx context.Context, inv *ap.Invoice) (*ap.AutomationRule, error) {
	if inv.Status != ap.StatusNeedsReview {
		return nil, nil
	}
	rules, err := s.store.ListAutomationRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list automation rules: %w", err)
	}
	rule := learning.ApplicableRule(rules, inv)
	if rule == nil {
		return nil, nil
	}

	s.setStatus(inv, ap.StatusMatched)
	if err := s.store.UpdateInvoice(ctx, inv); err != nil {
		return nil, fmt.Errorf("update invoice %d: %w", inv.ID, err)
	}
	s.audit(ctx, inv, SystemActor, "Automation Rule Applied",
		fmt.Sprintf("Approved by rule %q", rule.RuleName),
		map[string]any{"rule_id": rule.ID, "from": ap.StatusNeedsReview, "to": ap.StatusMatched})
	return rule, nil
}

// RuleInput is a user-defined rule.
type RuleInput struct {
	RuleName   string
	VendorName string
	Conditions ap.Condition
	Action     ap.RuleAction
}

// CreateAutomationRule stores a new active rule. An equivalent rule for the
// same vendor is a conflict.
func (s *Service) CreateAutomationRule(ctx context.Context, in RuleInput, source string) (*ap.AutomationRule, error) {
	if in.Action == "" {
		in.Action = ap.RuleApprove
	}
	if in.Action != ap.RuleApprove {
		return nil, fmt.Errorf("%w: unsupported rule action %q", ap.ErrInvalidInput, in.Action)
	}
	if in.Conditions.IsEmpty() {
		return nil, fmt.Errorf("%w: a rule needs at least one condition", ap.ErrInvalidInput)
	}
	in.VendorName = strings.TrimSpace(in.VendorName)
	if in.RuleName == "" {
		in.RuleName = fmt.Sprintf("Auto-approve %s (%s)", vendorLabel(in.VendorName), in.Conditions)
	}

	existing, err := s.store.ListAutomationRules(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if learning.SameRule(in.VendorName, in.Conditions, in.Action, r) {
			return nil, fmt.Errorf("%w: %s", ap.ErrDuplicateRule, r.RuleName)
		}
	}

	rule := &ap.AutomationRule{
		ID:         uuid.NewString(),
		RuleName:   in.RuleName,
		VendorName: in.VendorName,
		Conditions: in.Conditions,
		Action:     in.Action,
		IsActive:   true,
		Source:     source,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateAutomationRule(ctx, rule); err != nil {
		return nil, err
	}
	s.log.WithField("rule", rule.RuleName).Info("automation rule created")
	return rule, nil
}

// AcceptSuggestion turns an AutomationSuggestion notification into a rule and
// marks the notification read.
func (s *Service) AcceptSuggestion(ctx context.Context, notificationID string) (*ap.AutomationRule, error) {
	all, err := s.store.ListNotifications(ctx, false)
	if err != nil {
		return nil, err
	}
	var n *ap.Notification
	for i := range all {
		if all[i].ID == notificationID {
			n = &all[i]
			break
		}
	}
	if n == nil {
		return nil, &ap.NotFoundError{Entity: "notification", Key: notificationID}
	}
	if n.Type != ap.NotifyAutomationSuggestion || n.ProposedAction == nil {
		return nil, fmt.Errorf("%w: notification %s proposes no rule", ap.ErrInvalidInput, notificationID)
	}

	p := n.ProposedAction
	rule, err := s.CreateAutomationRule(ctx, RuleInput{
		RuleName:   p.RuleName,
		VendorName: p.VendorName,
		Conditions: p.Conditions,
		Action:     p.Action,
	}, "suggestion")
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkNotificationRead(ctx, n.ID); err != nil {
		return rule, err
	}
	return rule, nil
}

func vendorLabel(vendor string) string {
	if vendor == "" {
		return "any vendor"
	}
	return vendor
}
