package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/warp/ap-engine/ap"
)

// =============================================================================
// VENDOR SETTINGS (ap.VendorStore)
// =============================================================================

func (s *Store) GetVendorSetting(ctx context.Context, vendorName string) (*ap.VendorSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		vs        ap.VendorSetting
		tolerance sql.NullString
		email     sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, vendor_name, price_tolerance_percent, contact_email FROM vendor_settings WHERE vendor_name = ?",
		vendorName,
	).Scan(&vs.ID, &vs.VendorName, &tolerance, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ap.NotFoundError{Entity: "vendor setting", Key: vendorName}
	}
	if err != nil {
		return nil, err
	}
	vs.PriceTolerancePercent = parseNullDecimal(tolerance)
	vs.ContactEmail = email.String
	return &vs, nil
}

func (s *Store) ListVendorSettings(ctx context.Context) ([]ap.VendorSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, vendor_name, price_tolerance_percent, contact_email FROM vendor_settings ORDER BY vendor_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []ap.VendorSetting
	for rows.Next() {
		var (
			vs               ap.VendorSetting
			tolerance, email sql.NullString
		)
		if err := rows.Scan(&vs.ID, &vs.VendorName, &tolerance, &email); err != nil {
			return nil, err
		}
		vs.PriceTolerancePercent = parseNullDecimal(tolerance)
		vs.ContactEmail = email.String
		settings = append(settings, vs)
	}
	return settings, rows.Err()
}

// UpsertVendorSetting inserts or replaces the setting keyed by vendor name.
func (s *Store) UpsertVendorSetting(ctx context.Context, vs *ap.VendorSetting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendor_settings (vendor_name, price_tolerance_percent, contact_email)
		VALUES (?, ?, ?)
		ON CONFLICT(vendor_name) DO UPDATE SET
			price_tolerance_percent = excluded.price_tolerance_percent,
			contact_email = excluded.contact_email`,
		vs.VendorName, nullDecimal(vs.PriceTolerancePercent), nullString(vs.ContactEmail),
	)
	if err != nil {
		return fmt.Errorf("failed to save vendor setting: %w", err)
	}
	return s.db.QueryRowContext(ctx, "SELECT id FROM vendor_settings WHERE vendor_name = ?", vs.VendorName).Scan(&vs.ID)
}

// =============================================================================
// LEARNED HEURISTICS (ap.LearningStore)
// =============================================================================

const heuristicColumns = `id, vendor_name, exception_type, learned_condition, trigger_count,
	confidence_score, resolution_action, last_applied_at`

func (s *Store) FindHeuristics(ctx context.Context, vendorName string, exceptionType ap.ExceptionType) ([]ap.LearnedHeuristic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryHeuristics(ctx,
		"SELECT "+heuristicColumns+" FROM learned_heuristics WHERE vendor_name = ? AND exception_type = ? ORDER BY id",
		vendorName, exceptionType)
}

func (s *Store) ListHeuristics(ctx context.Context, vendorName string) ([]ap.LearnedHeuristic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if vendorName != "" {
		return s.queryHeuristics(ctx,
			"SELECT "+heuristicColumns+" FROM learned_heuristics WHERE vendor_name = ? ORDER BY confidence_score DESC, id",
			vendorName)
	}
	return s.queryHeuristics(ctx,
		"SELECT "+heuristicColumns+" FROM learned_heuristics ORDER BY confidence_score DESC, id")
}

// SaveHeuristic inserts when h.ID is zero, otherwise updates count and confidence.
func (s *Store) SaveHeuristic(ctx context.Context, h *ap.LearnedHeuristic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO learned_heuristics
			(vendor_name, exception_type, learned_condition, trigger_count, confidence_score, resolution_action, last_applied_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			h.VendorName, h.ExceptionType, h.LearnedCondition.Key(), h.TriggerCount,
			h.ConfidenceScore, h.ResolutionAction, formatTime(h.LastAppliedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert heuristic: %w", err)
		}
		h.ID, _ = res.LastInsertId()
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE learned_heuristics SET trigger_count = ?, confidence_score = ?, last_applied_at = ?
		WHERE id = ?`,
		h.TriggerCount, h.ConfidenceScore, formatTime(h.LastAppliedAt), h.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update heuristic: %w", err)
	}
	return nil
}

func (s *Store) queryHeuristics(ctx context.Context, query string, args ...any) ([]ap.LearnedHeuristic, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query heuristics: %w", err)
	}
	defer rows.Close()

	var out []ap.LearnedHeuristic
	for rows.Next() {
		var (
			h           ap.LearnedHeuristic
			condition   sql.NullString
			lastApplied string
		)
		if err := rows.Scan(&h.ID, &h.VendorName, &h.ExceptionType, &condition, &h.TriggerCount,
			&h.ConfidenceScore, &h.ResolutionAction, &lastApplied); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(condition, &h.LearnedCondition); err != nil {
			return nil, fmt.Errorf("failed to decode heuristic condition: %w", err)
		}
		h.LastAppliedAt = parseTime(lastApplied)
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// AUTOMATION RULES (ap.LearningStore)
// =============================================================================

func (s *Store) CreateAutomationRule(ctx context.Context, rule *ap.AutomationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_rules (id, rule_name, vendor_name, conditions_json, action, is_active, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.RuleName, nullString(rule.VendorName), rule.Conditions.Key(), rule.Action,
		rule.IsActive, rule.Source, formatTime(rule.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert automation rule: %w", err)
	}
	return nil
}

func (s *Store) ListAutomationRules(ctx context.Context, activeOnly bool) ([]ap.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, rule_name, vendor_name, conditions_json, action, is_active, source, created_at FROM automation_rules"
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query automation rules: %w", err)
	}
	defer rows.Close()

	var rules []ap.AutomationRule
	for rows.Next() {
		var (
			r                  ap.AutomationRule
			vendor, conditions sql.NullString
			createdAt          string
		)
		if err := rows.Scan(&r.ID, &r.RuleName, &vendor, &conditions, &r.Action, &r.IsActive, &r.Source, &createdAt); err != nil {
			return nil, err
		}
		r.VendorName = vendor.String
		if err := unmarshalJSON(conditions, &r.Conditions); err != nil {
			return nil, fmt.Errorf("failed to decode rule conditions: %w", err)
		}
		r.CreatedAt = parseTime(createdAt)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// =============================================================================
// NOTIFICATIONS (ap.LearningStore)
// =============================================================================

func (s *Store) CreateNotification(ctx context.Context, n *ap.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var proposed sql.NullString
	if n.ProposedAction != nil {
		b, err := marshalJSON(n.ProposedAction)
		if err != nil {
			return err
		}
		proposed = nullString(b)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, type, message, related_entity_id, related_entity_type, proposed_action_json, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Type, n.Message, nullString(n.RelatedEntityID), nullString(n.RelatedEntityType),
		proposed, n.IsRead, formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, unreadOnly bool) ([]ap.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, type, message, related_entity_id, related_entity_type, proposed_action_json, is_read, created_at
		FROM notifications`
	if unreadOnly {
		query += " WHERE is_read = FALSE"
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []ap.Notification
	for rows.Next() {
		var (
			n                           ap.Notification
			entityID, entityType, propo sql.NullString
			createdAt                   string
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Message, &entityID, &entityType, &propo, &n.IsRead, &createdAt); err != nil {
			return nil, err
		}
		n.RelatedEntityID = entityID.String
		n.RelatedEntityType = entityType.String
		if propo.Valid {
			n.ProposedAction = &ap.ProposedRule{}
			if err := unmarshalJSON(propo, n.ProposedAction); err != nil {
				return nil, fmt.Errorf("failed to decode proposed action: %w", err)
			}
		}
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE notifications SET is_read = TRUE WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ap.NotFoundError{Entity: "notification", Key: id}
	}
	return nil
}

func (s *Store) HasUnreadNotification(ctx context.Context, typ ap.NotificationType, relatedEntityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE type = ? AND related_entity_id = ? AND is_read = FALSE",
		typ, relatedEntityID,
	).Scan(&count)
	return count > 0, err
}
