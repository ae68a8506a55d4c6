package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements RuleStore, OccurrenceStore, and ExecutionRecorder
// backed by PostgreSQL. Trigger, condition, and action configs are stored as
// JSONB in their wire envelope form and decoded through the registry on read.
type PostgresStore struct {
	db  *sql.DB
	reg *Registry
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(db *sql.DB, reg *Registry) *PostgresStore {
	return &PostgresStore{db: db, reg: reg}
}

var _ RuleStore = (*PostgresStore)(nil)
var _ OccurrenceStore = (*PostgresStore)(nil)
var _ ExecutionRecorder = (*PostgresStore)(nil)

// Add inserts a new rule.
func (s *PostgresStore) Add(ctx context.Context, rule *Rule) error {
	triggerJSON, conditionsJSON, actionsJSON, err := encodeRuleColumns(rule)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, family_id, name, description, trigger_kind, trigger_config, conditions, actions, enabled, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rule.ID, rule.FamilyID, rule.Name, rule.Description, string(rule.Trigger.Kind()),
		triggerJSON, conditionsJSON, actionsJSON, rule.Enabled, rule.CreatedBy,
		rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// Get retrieves a rule by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, family_id, name, description, trigger_config, conditions, actions, enabled, created_by, created_at, updated_at
		FROM rules
		WHERE id = $1
	`, id)
	rule, err := s.scanRule(row)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListByFamily returns a family's rules ordered by creation time.
func (s *PostgresStore) ListByFamily(ctx context.Context, familyID string, enabledOnly bool) ([]*Rule, error) {
	query := `
		SELECT id, family_id, name, description, trigger_config, conditions, actions, enabled, created_by, created_at, updated_at
		FROM rules
		WHERE family_id = $1`
	if enabledOnly {
		query += ` AND enabled = true`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	return s.queryRules(ctx, query, familyID)
}

// ListByTrigger returns a family's enabled rules of one trigger kind.
func (s *PostgresStore) ListByTrigger(ctx context.Context, familyID string, kind TriggerKind) ([]*Rule, error) {
	return s.queryRules(ctx, `
		SELECT id, family_id, name, description, trigger_config, conditions, actions, enabled, created_by, created_at, updated_at
		FROM rules
		WHERE family_id = $1 AND trigger_kind = $2 AND enabled = true
		ORDER BY created_at ASC, id ASC
	`, familyID, string(kind))
}

// ListTimeBased returns every enabled time-based rule across families.
func (s *PostgresStore) ListTimeBased(ctx context.Context) ([]*Rule, error) {
	return s.queryRules(ctx, `
		SELECT id, family_id, name, description, trigger_config, conditions, actions, enabled, created_by, created_at, updated_at
		FROM rules
		WHERE trigger_kind = $1 AND enabled = true
		ORDER BY created_at ASC, id ASC
	`, string(TriggerTimeBased))
}

// Update replaces a rule's stored fields.
func (s *PostgresStore) Update(ctx context.Context, rule *Rule) error {
	triggerJSON, conditionsJSON, actionsJSON, err := encodeRuleColumns(rule)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rules
		SET name = $1, description = $2, trigger_config = $3, conditions = $4, actions = $5, enabled = $6, updated_at = $7
		WHERE id = $8
	`, rule.Name, rule.Description, triggerJSON, conditionsJSON, actionsJSON,
		rule.Enabled, rule.UpdatedAt, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return requireRowAffected(result, ErrRuleNotFound)
}

// SetEnabled flips a rule's enabled flag.
func (s *PostgresStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rules SET enabled = $1, updated_at = $2 WHERE id = $3
	`, enabled, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set rule enabled: %w", err)
	}
	return requireRowAffected(result, ErrRuleNotFound)
}

// Delete removes a rule. Execution records and occurrence markers go with it
// through the schema's cascading foreign keys.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireRowAffected(result, ErrRuleNotFound)
}

// Claim marks a (rule, period) occurrence taken. The primary key on
// (rule_id, period_key) makes the insert the atomic check-and-set; only the
// first caller sees an affected row.
func (s *PostgresStore) Claim(ctx context.Context, ruleID, periodKey string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_occurrences (rule_id, period_key, claimed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (rule_id, period_key) DO NOTHING
	`, ruleID, periodKey, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to claim occurrence: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// Record appends one execution record.
func (s *PostgresStore) Record(ctx context.Context, rec *ExecutionRecord) error {
	eventJSON, err := json.Marshal(rec.Event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	outcomesJSON, err := json.Marshal(rec.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to encode outcomes: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_executions (id, rule_id, event, condition_result, outcomes, status, error, dispatched_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.RuleID, eventJSON, string(rec.ConditionResult), outcomesJSON,
		string(rec.Status), rec.Error, rec.DispatchedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert execution record: %w", err)
	}
	return nil
}

// ListByRule returns a rule's execution records newest-first.
func (s *PostgresStore) ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]*ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, event, condition_result, outcomes, status, error, dispatched_at, completed_at
		FROM rule_executions
		WHERE rule_id = $1
		ORDER BY dispatched_at DESC
		LIMIT $2 OFFSET $3
	`, ruleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var records []*ExecutionRecord
	for rows.Next() {
		var rec ExecutionRecord
		var eventJSON, outcomesJSON []byte
		var conditionResult, status string
		if err := rows.Scan(&rec.ID, &rec.RuleID, &eventJSON, &conditionResult,
			&outcomesJSON, &status, &rec.Error, &rec.DispatchedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution record: %w", err)
		}
		if err := json.Unmarshal(eventJSON, &rec.Event); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		if len(outcomesJSON) > 0 {
			if err := json.Unmarshal(outcomesJSON, &rec.Outcomes); err != nil {
				return nil, fmt.Errorf("failed to decode outcomes: %w", err)
			}
		}
		rec.ConditionResult = ConditionResult(conditionResult)
		rec.Status = ExecutionStatus(status)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution records: %w", err)
	}
	return records, nil
}

// CountSince returns how many records for the rule were dispatched at or
// after the cutoff.
func (s *PostgresStore) CountSince(ctx context.Context, ruleID string, cutoff time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rule_executions
		WHERE rule_id = $1 AND dispatched_at >= $2
	`, ruleID, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}
	return count, nil
}

// Stats summarizes a rule's execution history. Failure counting happens in
// SQL over the outcomes JSON so the full history never crosses the wire.
func (s *PostgresStore) Stats(ctx context.Context, ruleID string) (*ExecutionStats, error) {
	stats := &ExecutionStats{}
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'fired' AND NOT failed),
			COUNT(*) FILTER (WHERE status = 'error' OR (status = 'fired' AND failed)),
			MAX(dispatched_at)
		FROM (
			SELECT status, dispatched_at,
				EXISTS (
					SELECT 1 FROM jsonb_array_elements(COALESCE(outcomes, '[]'::jsonb)) o
					WHERE o->>'status' = 'failed'
				) AS failed
			FROM rule_executions
			WHERE rule_id = $1
		) e
	`, ruleID).Scan(&stats.TotalExecutions, &stats.SuccessfulExecutions, &stats.FailedExecutions, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to compute execution stats: %w", err)
	}
	if stats.TotalExecutions > 0 {
		stats.SuccessRate = int(float64(stats.SuccessfulExecutions)/float64(stats.TotalExecutions)*100 + 0.5)
	}
	if last.Valid {
		t := last.Time
		stats.LastExecutionAt = &t
	}
	return stats, nil
}

// PruneBefore deletes execution records dispatched before the cutoff.
func (s *PostgresStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM rule_executions WHERE dispatched_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune executions: %w", err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return pruned, nil
}

func (s *PostgresStore) queryRules(ctx context.Context, query string, args ...any) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		rule, err := s.scanRule(rows)
		if err != nil {
			return nil, err
		}
		rulesList = append(rulesList, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rulesList, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	var triggerJSON, actionsJSON []byte
	var conditionsJSON sql.NullString
	if err := row.Scan(&rule.ID, &rule.FamilyID, &rule.Name, &rule.Description,
		&triggerJSON, &conditionsJSON, &actionsJSON, &rule.Enabled, &rule.CreatedBy,
		&rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}

	var tc TriggerConfig
	if err := json.Unmarshal(triggerJSON, &tc); err != nil {
		return nil, fmt.Errorf("failed to decode trigger for rule %s: %w", rule.ID, err)
	}
	trigger, err := s.reg.DecodeTrigger(tc)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	rule.Trigger = trigger

	if conditionsJSON.Valid && conditionsJSON.String != "" && conditionsJSON.String != "null" {
		var tree ConditionTree
		if err := json.Unmarshal([]byte(conditionsJSON.String), &tree); err != nil {
			return nil, fmt.Errorf("failed to decode conditions for rule %s: %w", rule.ID, err)
		}
		rule.Conditions = &tree
	}

	var acs []ActionConfig
	if err := json.Unmarshal(actionsJSON, &acs); err != nil {
		return nil, fmt.Errorf("failed to decode actions for rule %s: %w", rule.ID, err)
	}
	actions, err := s.reg.DecodeActions(acs)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	rule.Actions = actions

	return &rule, nil
}

func encodeRuleColumns(rule *Rule) (triggerJSON, conditionsJSON, actionsJSON []byte, err error) {
	tc, err := EncodeTrigger(rule.Trigger)
	if err != nil {
		return nil, nil, nil, err
	}
	triggerJSON, err = json.Marshal(tc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode trigger: %w", err)
	}

	if rule.Conditions != nil {
		conditionsJSON, err = json.Marshal(rule.Conditions)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode conditions: %w", err)
		}
	}

	acs, err := EncodeActions(rule.Actions)
	if err != nil {
		return nil, nil, nil, err
	}
	actionsJSON, err = json.Marshal(acs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to encode actions: %w", err)
	}
	return triggerJSON, conditionsJSON, actionsJSON, nil
}

func requireRowAffected(result sql.Result, missing error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return missing
	}
	return nil
}
