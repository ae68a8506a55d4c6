package rules

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps rules, execution records, and occurrence markers in
// process memory. It backs tests and the no-database server mode; everything
// is lost on restart.
type InMemoryStore struct {
	mu          sync.RWMutex
	rules       map[string]*Rule
	executions  map[string][]*ExecutionRecord // keyed by rule id, append order
	occurrences map[string]bool               // ruleID + "|" + periodKey
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rules:       make(map[string]*Rule),
		executions:  make(map[string][]*ExecutionRecord),
		occurrences: make(map[string]bool),
	}
}

var _ RuleStore = (*InMemoryStore)(nil)
var _ OccurrenceStore = (*InMemoryStore)(nil)
var _ ExecutionRecorder = (*InMemoryStore)(nil)

// Add stores a new rule.
func (s *InMemoryStore) Add(ctx context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := *rule
	s.rules[rule.ID] = &cloned
	return nil
}

// Get returns the rule with the given id.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	cloned := *rule
	return &cloned, nil
}

// ListByFamily returns a family's rules ordered by creation time.
func (s *InMemoryStore) ListByFamily(ctx context.Context, familyID string, enabledOnly bool) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, rule := range s.rules {
		if rule.FamilyID != familyID {
			continue
		}
		if enabledOnly && !rule.Enabled {
			continue
		}
		cloned := *rule
		out = append(out, &cloned)
	}
	sortRules(out)
	return out, nil
}

// ListByTrigger returns a family's enabled rules of one trigger kind.
func (s *InMemoryStore) ListByTrigger(ctx context.Context, familyID string, kind TriggerKind) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, rule := range s.rules {
		if rule.FamilyID != familyID || !rule.Enabled || rule.Trigger.Kind() != kind {
			continue
		}
		cloned := *rule
		out = append(out, &cloned)
	}
	sortRules(out)
	return out, nil
}

// ListTimeBased returns every enabled time-based rule.
func (s *InMemoryStore) ListTimeBased(ctx context.Context) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Rule
	for _, rule := range s.rules {
		if !rule.Enabled || rule.Trigger.Kind() != TriggerTimeBased {
			continue
		}
		cloned := *rule
		out = append(out, &cloned)
	}
	sortRules(out)
	return out, nil
}

// Update replaces a stored rule.
func (s *InMemoryStore) Update(ctx context.Context, rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return ErrRuleNotFound
	}
	cloned := *rule
	s.rules[rule.ID] = &cloned
	return nil
}

// SetEnabled flips a rule's enabled flag.
func (s *InMemoryStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	rule.Enabled = enabled
	rule.UpdatedAt = time.Now()
	return nil
}

// Delete removes a rule, its execution records, and its occurrence markers.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(s.rules, id)
	delete(s.executions, id)
	for key := range s.occurrences {
		if len(key) > len(id) && key[:len(id)] == id && key[len(id)] == '|' {
			delete(s.occurrences, key)
		}
	}
	return nil
}

// Claim marks a (rule, period) occurrence taken.
func (s *InMemoryStore) Claim(ctx context.Context, ruleID, periodKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ruleID + "|" + periodKey
	if s.occurrences[key] {
		return false, nil
	}
	s.occurrences[key] = true
	return true, nil
}

// Record appends one execution record.
func (s *InMemoryStore) Record(ctx context.Context, rec *ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cloned := *rec
	s.executions[rec.RuleID] = append(s.executions[rec.RuleID], &cloned)
	return nil
}

// ListByRule returns a rule's execution records newest-first.
func (s *InMemoryStore) ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.executions[ruleID]
	sorted := make([]*ExecutionRecord, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DispatchedAt.After(sorted[j].DispatchedAt)
	})

	if offset >= len(sorted) {
		return nil, nil
	}
	sorted = sorted[offset:]
	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}

	out := make([]*ExecutionRecord, len(sorted))
	for i, rec := range sorted {
		cloned := *rec
		out[i] = &cloned
	}
	return out, nil
}

// CountSince returns how many records for the rule were dispatched at or
// after the cutoff.
func (s *InMemoryStore) CountSince(ctx context.Context, ruleID string, cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.executions[ruleID] {
		if !rec.DispatchedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

// Stats summarizes a rule's execution history.
func (s *InMemoryStore) Stats(ctx context.Context, ruleID string) (*ExecutionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ExecutionStats{}
	var last time.Time
	for _, rec := range s.executions[ruleID] {
		stats.TotalExecutions++
		if rec.Status == StatusError || (rec.Status == StatusFired && rec.Failed()) {
			stats.FailedExecutions++
		} else if rec.Status == StatusFired {
			stats.SuccessfulExecutions++
		}
		if rec.DispatchedAt.After(last) {
			last = rec.DispatchedAt
		}
	}
	if stats.TotalExecutions > 0 {
		stats.SuccessRate = int(float64(stats.SuccessfulExecutions)/float64(stats.TotalExecutions)*100 + 0.5)
		lastCopy := last
		stats.LastExecutionAt = &lastCopy
	}
	return stats, nil
}

// PruneBefore deletes records dispatched before the cutoff.
func (s *InMemoryStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for ruleID, recs := range s.executions {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.DispatchedAt.Before(cutoff) {
				pruned++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(s.executions, ruleID)
		} else {
			s.executions[ruleID] = kept
		}
	}
	return pruned, nil
}

func sortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}
