package rules

import (
	"context"
	"log/slog"
	"time"
)

// periodKeyLayout identifies one schedule occurrence: the matched minute in
// UTC. Two ticks landing in the same minute claim the same key.
const periodKeyLayout = "2006-01-02T15:04"

// DefaultSchedulerInterval is the tick cadence. It must stay under a minute
// so no schedule minute is skipped.
const DefaultSchedulerInterval = 30 * time.Second

// TickSummary reports what one scheduler pass did.
type TickSummary struct {
	Scanned  int // enabled time-based rules examined
	Due      int // rules whose schedule matched the tick minute
	Fired    int // rules dispatched after claiming their occurrence
	Claimed  int // occurrences won by this tick
	Errors   int // per-rule errors (bad cron, claim or dispatch failures)
	TickedAt time.Time
}

// Scheduler drives time-based rules. Every tick it scans enabled time-based
// rules, checks each cron schedule against the current minute, and claims the
// (rule, period) occurrence before dispatching so overlapping ticks and
// multiple processes fire each period at most once.
type Scheduler struct {
	store       RuleStore
	occurrences OccurrenceStore
	dispatcher  *Dispatcher
	interval    time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewScheduler wires a scheduler with the default tick interval.
func NewScheduler(store RuleStore, occurrences OccurrenceStore, dispatcher *Dispatcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:       store,
		occurrences: occurrences,
		dispatcher:  dispatcher,
		interval:    DefaultSchedulerInterval,
		logger:      logger,
		now:         time.Now,
	}
}

// WithInterval overrides the tick interval.
func (s *Scheduler) WithInterval(d time.Duration) *Scheduler {
	s.interval = d
	return s
}

// Run ticks until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx, s.now()); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick runs one scheduler pass at the given time. Per-rule problems are
// counted and logged without stopping the pass; only the initial rule scan
// can fail the tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (TickSummary, error) {
	summary := TickSummary{TickedAt: now}

	candidates, err := s.store.ListTimeBased(ctx)
	if err != nil {
		return summary, err
	}
	summary.Scanned = len(candidates)

	minute := now.UTC().Truncate(time.Minute)
	periodKey := minute.Format(periodKeyLayout)

	for _, rule := range candidates {
		trigger, ok := rule.Trigger.(*TimeBasedTrigger)
		if !ok {
			continue
		}
		schedule, err := ParseCron(trigger.Cron)
		if err != nil {
			summary.Errors++
			s.logger.Error("invalid cron expression on stored rule",
				"ruleId", rule.ID, "cron", trigger.Cron, "error", err)
			continue
		}
		if !schedule.Matches(minute) {
			continue
		}
		summary.Due++

		claimed, err := s.occurrences.Claim(ctx, rule.ID, periodKey)
		if err != nil {
			summary.Errors++
			s.logger.Error("failed to claim schedule occurrence",
				"ruleId", rule.ID, "periodKey", periodKey, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		summary.Claimed++

		ev := Event{
			Kind:     TriggerTimeBased,
			FamilyID: rule.FamilyID,
			RuleID:   rule.ID,
			Context: EventContext{
				"timestamp": minute.Format(time.RFC3339),
				"date":      minute.Format("2006-01-02"),
				"dayOfWeek": int(minute.Weekday()),
				"hour":      minute.Hour(),
				"minute":    minute.Minute(),
			},
			OccurredAt: now,
		}
		if _, err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			summary.Errors++
			s.logger.Error("scheduled dispatch failed", "ruleId", rule.ID, "error", err)
			continue
		}
		summary.Fired++
	}

	if summary.Due > 0 || summary.Errors > 0 {
		s.logger.Info("scheduler tick",
			"scanned", summary.Scanned,
			"due", summary.Due,
			"claimed", summary.Claimed,
			"fired", summary.Fired,
			"errors", summary.Errors)
	}
	return summary, nil
}
