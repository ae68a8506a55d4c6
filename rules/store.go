package rules

import (
	"context"
	"errors"
)

// ErrRuleNotFound is returned by stores when a rule id does not exist.
var ErrRuleNotFound = errors.New("rule not found")

// RuleStore persists rule definitions. Implementations must be safe for
// concurrent use.
type RuleStore interface {
	// Add stores a new rule. The rule's ID must be set by the caller.
	Add(ctx context.Context, rule *Rule) error

	// Get returns the rule with the given id, or ErrRuleNotFound.
	Get(ctx context.Context, id string) (*Rule, error)

	// ListByFamily returns a family's rules ordered by creation time. When
	// enabledOnly is set, disabled rules are omitted.
	ListByFamily(ctx context.Context, familyID string, enabledOnly bool) ([]*Rule, error)

	// ListByTrigger returns a family's enabled rules with the given trigger
	// kind, ordered by creation time ascending. This is the dispatch path.
	ListByTrigger(ctx context.Context, familyID string, kind TriggerKind) ([]*Rule, error)

	// ListTimeBased returns every enabled time-based rule across families.
	// This is the scheduler's scan.
	ListTimeBased(ctx context.Context) ([]*Rule, error)

	// Update replaces a rule's mutable fields. Trigger and conditions are
	// fixed at creation; implementations persist the rule as given, callers
	// enforce immutability.
	Update(ctx context.Context, rule *Rule) error

	// SetEnabled flips a rule's enabled flag.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// Delete removes a rule and, where the backend supports it, its
	// execution history and occurrence markers.
	Delete(ctx context.Context, id string) error
}

// OccurrenceStore records which (rule, period) schedule occurrences have
// already fired, so a schedule period fires at most once no matter how many
// ticks observe it.
type OccurrenceStore interface {
	// Claim atomically marks the occurrence taken. It returns true for the
	// first caller and false for every later one.
	Claim(ctx context.Context, ruleID, periodKey string) (bool, error)
}
