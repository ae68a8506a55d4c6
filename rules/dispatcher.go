package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Dispatcher routes events to matching rules and runs them. Candidate lookup
// happens once per event; each candidate is then evaluated independently, so
// one rule's failure never affects its siblings.
type Dispatcher struct {
	store    RuleStore
	cache    RulesCache
	recorder ExecutionRecorder
	executor *Executor
	limits   SafetyLimits
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	failures map[string]int // consecutive failed executions per rule id
}

// NewDispatcher wires a dispatcher. cache may be nil to read the store
// directly on every event.
func NewDispatcher(store RuleStore, cache RulesCache, recorder ExecutionRecorder, executor *Executor, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		cache:    cache,
		recorder: recorder,
		executor: executor,
		limits:   DefaultSafetyLimits(),
		logger:   logger,
		now:      time.Now,
		failures: make(map[string]int),
	}
}

// WithLimits overrides the default safety limits.
func (d *Dispatcher) WithLimits(limits SafetyLimits) *Dispatcher {
	d.limits = limits
	return d
}

// Dispatch evaluates an event against the family's enabled rules with the
// event's trigger kind and returns the records produced, in rule order. A
// candidate whose trigger targeting does not match produces no record. A
// failed candidate lookup fails the whole dispatch; recorder failures are
// logged and tolerated.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) ([]*ExecutionRecord, error) {
	candidates, err := d.candidates(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s for family %s: %w", ev.Kind, ev.FamilyID, err)
	}

	records := make([]*ExecutionRecord, 0, len(candidates))
	for _, rule := range candidates {
		rec := d.evaluate(ctx, rule, ev)
		if rec == nil {
			continue
		}
		if err := d.recorder.Record(ctx, rec); err != nil {
			d.logger.Error("failed to persist execution record",
				"ruleId", rule.ID,
				"status", string(rec.Status),
				"error", err)
		}
		records = append(records, rec)
		d.trackFailures(ctx, rule, rec)
	}
	return records, nil
}

func (d *Dispatcher) candidates(ctx context.Context, ev Event) ([]*Rule, error) {
	if ev.RuleID != "" {
		rule, err := d.store.Get(ctx, ev.RuleID)
		if err != nil {
			return nil, err
		}
		if rule.FamilyID != ev.FamilyID || rule.Trigger.Kind() != ev.Kind {
			return nil, nil
		}
		return []*Rule{rule}, nil
	}

	if d.cache != nil {
		if rules, ok := d.cache.Get(ev.FamilyID, ev.Kind); ok {
			return rules, nil
		}
	}
	rules, err := d.store.ListByTrigger(ctx, ev.FamilyID, ev.Kind)
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		d.cache.Set(ev.FamilyID, ev.Kind, rules)
	}
	return rules, nil
}

// evaluate runs one candidate and returns its record, or nil when the event
// produces no record for this rule (targeting mismatch or rate limit).
func (d *Dispatcher) evaluate(ctx context.Context, rule *Rule, ev Event) *ExecutionRecord {
	dispatchedAt := d.now()

	if !rule.Enabled {
		return &ExecutionRecord{
			ID:              uuid.New().String(),
			RuleID:          rule.ID,
			Event:           ev,
			ConditionResult: ConditionSkipped,
			Status:          StatusDisabled,
			DispatchedAt:    dispatchedAt,
			CompletedAt:     d.now(),
		}
	}

	if d.rateLimited(ctx, rule.ID, dispatchedAt) {
		d.logger.Warn("rule rate limited",
			"ruleId", rule.ID,
			"familyId", rule.FamilyID,
			"maxPerHour", d.limits.MaxExecutionsPerHour)
		return nil
	}

	if !rule.Trigger.Matches(ev.Context) {
		return nil
	}

	rec := &ExecutionRecord{
		ID:           uuid.New().String(),
		RuleID:       rule.ID,
		Event:        ev,
		DispatchedAt: dispatchedAt,
	}

	if rule.Conditions == nil {
		rec.ConditionResult = ConditionSkipped
	} else if EvaluateConditions(rule.Conditions, ev.Context) {
		rec.ConditionResult = ConditionMatched
	} else {
		rec.ConditionResult = ConditionNotMatched
		rec.Status = StatusSkippedConditions
		rec.CompletedAt = d.now()
		return rec
	}

	rec.Outcomes = d.executor.Execute(ctx, withRuleID(ev, rule.ID), rule.Actions)
	rec.Status = StatusFired
	rec.CompletedAt = d.now()

	d.logger.Info("rule fired",
		"ruleId", rule.ID,
		"familyId", rule.FamilyID,
		"trigger", string(ev.Kind),
		"actions", len(rec.Outcomes),
		"failed", rec.Failed())
	return rec
}

func (d *Dispatcher) rateLimited(ctx context.Context, ruleID string, now time.Time) bool {
	if d.limits.MaxExecutionsPerHour <= 0 {
		return false
	}
	count, err := d.recorder.CountSince(ctx, ruleID, now.Add(-time.Hour))
	if err != nil {
		d.logger.Error("failed to count recent executions", "ruleId", ruleID, "error", err)
		return false
	}
	return count >= d.limits.MaxExecutionsPerHour
}

// trackFailures disables a rule after too many consecutive fired executions
// with at least one failed action.
func (d *Dispatcher) trackFailures(ctx context.Context, rule *Rule, rec *ExecutionRecord) {
	if rec.Status != StatusFired {
		return
	}

	d.mu.Lock()
	if rec.Failed() {
		d.failures[rule.ID]++
	} else {
		delete(d.failures, rule.ID)
	}
	count := d.failures[rule.ID]
	disable := count >= d.limits.MaxConsecutiveFailures
	if disable {
		delete(d.failures, rule.ID)
	}
	d.mu.Unlock()

	if !disable {
		return
	}
	if err := d.store.SetEnabled(ctx, rule.ID, false); err != nil {
		d.logger.Error("failed to auto-disable rule", "ruleId", rule.ID, "error", err)
		return
	}
	if d.cache != nil {
		d.cache.Invalidate(rule.FamilyID)
	}
	d.logger.Warn("rule auto-disabled after consecutive failures",
		"ruleId", rule.ID,
		"familyId", rule.FamilyID,
		"failures", count)
}

func withRuleID(ev Event, ruleID string) Event {
	ev.RuleID = ruleID
	return ev
}
