package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestInMemoryStoreCRUD(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	rule := newTestRule(t, "fam-1", &ChoreCompletedTrigger{AnyChore: true}, nil,
		&AwardCreditsAction{Amount: 10})
	if err := store.Add(ctx, rule); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != rule.Name {
		t.Errorf("got name %q", got.Name)
	}

	got.Name = "changed"
	if err := store.Update(ctx, got); err != nil {
		t.Fatal(err)
	}
	again, _ := store.Get(ctx, rule.ID)
	if again.Name != "changed" {
		t.Error("update did not persist")
	}

	if err := store.SetEnabled(ctx, rule.ID, false); err != nil {
		t.Fatal(err)
	}
	again, _ = store.Get(ctx, rule.ID)
	if again.Enabled {
		t.Error("SetEnabled did not persist")
	}

	if err := store.Delete(ctx, rule.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("get after delete = %v", err)
	}
	if err := store.Update(ctx, rule); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("update of missing rule = %v", err)
	}
}

func TestInMemoryStoreListing(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	older := newTestRule(t, "fam-1", &ChoreCompletedTrigger{AnyChore: true}, nil,
		&AwardCreditsAction{Amount: 1})
	older.CreatedAt = time.Now().Add(-2 * time.Hour)
	newer := newTestRule(t, "fam-1", &ChoreCompletedTrigger{AnyChore: true}, nil,
		&AwardCreditsAction{Amount: 2})
	disabled := newTestRule(t, "fam-1", &ScreenTimeLowTrigger{ThresholdMinutes: 30}, nil,
		&AwardCreditsAction{Amount: 3})
	disabled.Enabled = false
	otherFamily := newTestRule(t, "fam-2", &ChoreCompletedTrigger{AnyChore: true}, nil,
		&AwardCreditsAction{Amount: 4})
	timeBased := newTestRule(t, "fam-1", &TimeBasedTrigger{Cron: "daily", Description: "d"}, nil,
		&AwardCreditsAction{Amount: 5})

	for _, r := range []*Rule{newer, older, disabled, otherFamily, timeBased} {
		if err := store.Add(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListByFamily(ctx, "fam-1", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("fam-1 rules = %d, want 4", len(all))
	}
	if all[0].ID != older.ID {
		t.Error("listing should be creation order ascending")
	}

	enabledOnly, err := store.ListByFamily(ctx, "fam-1", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(enabledOnly) != 3 {
		t.Errorf("enabled fam-1 rules = %d, want 3", len(enabledOnly))
	}

	byTrigger, err := store.ListByTrigger(ctx, "fam-1", TriggerChoreCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if len(byTrigger) != 2 {
		t.Errorf("chore_completed rules = %d, want 2", len(byTrigger))
	}

	timeBasedRules, err := store.ListTimeBased(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(timeBasedRules) != 1 || timeBasedRules[0].ID != timeBased.ID {
		t.Errorf("time based rules = %+v", timeBasedRules)
	}
}

func TestInMemoryClaim(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	claimed, err := store.Claim(ctx, "rule-1", "2026-03-02T09:30")
	if err != nil || !claimed {
		t.Fatalf("first claim = %v, %v", claimed, err)
	}
	claimed, err = store.Claim(ctx, "rule-1", "2026-03-02T09:30")
	if err != nil || claimed {
		t.Fatalf("second claim = %v, %v, want false", claimed, err)
	}
	claimed, _ = store.Claim(ctx, "rule-1", "2026-03-02T09:31")
	if !claimed {
		t.Error("different period should claim")
	}
	claimed, _ = store.Claim(ctx, "rule-2", "2026-03-02T09:30")
	if !claimed {
		t.Error("different rule should claim")
	}
}

func TestInMemoryRecorder(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	ruleID := uuid.New().String()
	base := time.Now()

	add := func(age time.Duration, status ExecutionStatus, failed bool) {
		rec := &ExecutionRecord{
			ID:           uuid.New().String(),
			RuleID:       ruleID,
			Status:       status,
			DispatchedAt: base.Add(-age),
			CompletedAt:  base.Add(-age),
		}
		if failed {
			rec.Outcomes = []ActionOutcome{{Status: OutcomeFailed, Error: "boom"}}
		} else if status == StatusFired {
			rec.Outcomes = []ActionOutcome{{Status: OutcomeSuccess}}
		}
		if err := store.Record(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	add(3*time.Hour, StatusFired, false)
	add(30*time.Minute, StatusFired, true)
	add(10*time.Minute, StatusFired, false)
	add(5*time.Minute, StatusSkippedConditions, false)

	recent, err := store.CountSince(ctx, ruleID, base.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if recent != 3 {
		t.Errorf("CountSince = %d, want 3", recent)
	}

	list, err := store.ListByRule(ctx, ruleID, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("limit ignored, got %d", len(list))
	}
	if !list[0].DispatchedAt.After(list[1].DispatchedAt) {
		t.Error("listing should be newest first")
	}

	stats, err := store.Stats(ctx, ruleID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalExecutions != 4 {
		t.Errorf("total = %d", stats.TotalExecutions)
	}
	if stats.SuccessfulExecutions != 2 || stats.FailedExecutions != 1 {
		t.Errorf("success/failed = %d/%d", stats.SuccessfulExecutions, stats.FailedExecutions)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("success rate = %d, want 50", stats.SuccessRate)
	}
	if stats.LastExecutionAt == nil {
		t.Error("last execution missing")
	}

	pruned, err := store.PruneBefore(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	remaining, _ := store.ListByRule(ctx, ruleID, 10, 0)
	if len(remaining) != 3 {
		t.Errorf("remaining = %d, want 3", len(remaining))
	}
}

func TestInMemoryDeleteCascades(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	rule := newTestRule(t, "fam-1", &ChoreCompletedTrigger{AnyChore: true}, nil,
		&AwardCreditsAction{Amount: 1})
	if err := store.Add(ctx, rule); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, &ExecutionRecord{
		ID: uuid.New().String(), RuleID: rule.ID,
		Status: StatusFired, DispatchedAt: time.Now(), CompletedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Claim(ctx, rule.ID, "2026-03-02T09:30"); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(ctx, rule.ID); err != nil {
		t.Fatal(err)
	}
	records, _ := store.ListByRule(ctx, rule.ID, 10, 0)
	if len(records) != 0 {
		t.Error("delete should drop execution records")
	}
	claimed, _ := store.Claim(ctx, rule.ID, "2026-03-02T09:30")
	if !claimed {
		t.Error("delete should drop occurrence markers")
	}
}
