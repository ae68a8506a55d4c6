package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ValidationError carries a user-facing validation message. Handlers map it
// to a 400 instead of a 500.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// CreateRuleInput is the request to create a rule. Trigger and Conditions
// are fixed for the rule's lifetime once accepted.
type CreateRuleInput struct {
	FamilyID    string         `json:"familyId"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Trigger     TriggerConfig  `json:"trigger"`
	Conditions  *ConditionTree `json:"conditions,omitempty"`
	Actions     []ActionConfig `json:"actions"`
	Enabled     *bool          `json:"enabled,omitempty"`
	CreatedBy   string         `json:"createdBy,omitempty"`
}

// UpdateRuleInput is the request to revise a rule. Only name, description,
// enabled, and actions can change; nil fields are left as they are.
type UpdateRuleInput struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
	Actions     []ActionConfig `json:"actions,omitempty"`
}

// DryRunResult reports what dispatching an event against one rule would do,
// without executing anything.
type DryRunResult struct {
	RuleID          string          `json:"ruleId"`
	WouldFire       bool            `json:"wouldFire"`
	TriggerMatched  bool            `json:"triggerMatched"`
	ConditionResult ConditionResult `json:"conditionResult"`
	Simulations     []string        `json:"simulations,omitempty"`
}

// Engine is the facade the HTTP layer and the scheduler drive: rule
// lifecycle, dispatch, and execution history.
type Engine struct {
	store      RuleStore
	cache      RulesCache
	recorder   ExecutionRecorder
	dispatcher *Dispatcher
	validator  *Validator
	registry   *Registry
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine wires an engine over the given store, cache, and recorder.
// cache may be nil.
func NewEngine(store RuleStore, cache RulesCache, recorder ExecutionRecorder, dispatcher *Dispatcher, reg *Registry, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		cache:      cache,
		recorder:   recorder,
		dispatcher: dispatcher,
		validator:  NewValidator(reg),
		registry:   reg,
		logger:     logger,
		now:        time.Now,
	}
}

// Registry exposes the kind registry for handlers that list valid kinds.
func (e *Engine) Registry() *Registry { return e.registry }

// CreateRule validates, decodes, and persists a new rule. Rules are enabled
// by default.
func (e *Engine) CreateRule(ctx context.Context, in CreateRuleInput) (*Rule, error) {
	if in.FamilyID == "" {
		return nil, &ValidationError{Message: "Family id is required"}
	}
	if in.Name == "" {
		return nil, &ValidationError{Message: "Rule name is required"}
	}
	if res := e.validator.ValidateRuleConfiguration(in.Trigger, in.Conditions, in.Actions); !res.Valid {
		return nil, &ValidationError{Message: res.Error}
	}

	trigger, err := e.registry.DecodeTrigger(in.Trigger)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	actions, err := e.registry.DecodeActions(in.Actions)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}

	now := e.now()
	rule := &Rule{
		ID:          uuid.New().String(),
		FamilyID:    in.FamilyID,
		Name:        in.Name,
		Description: in.Description,
		Trigger:     trigger,
		Conditions:  in.Conditions,
		Actions:     actions,
		Enabled:     enabled,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.Add(ctx, rule); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	e.invalidate(rule.FamilyID)

	e.logger.Info("rule created",
		"ruleId", rule.ID,
		"familyId", rule.FamilyID,
		"trigger", string(trigger.Kind()),
		"actions", len(actions))
	return rule, nil
}

// GetRule returns one rule.
func (e *Engine) GetRule(ctx context.Context, id string) (*Rule, error) {
	return e.store.Get(ctx, id)
}

// ListRules returns a family's rules.
func (e *Engine) ListRules(ctx context.Context, familyID string, enabledOnly bool) ([]*Rule, error) {
	return e.store.ListByFamily(ctx, familyID, enabledOnly)
}

// UpdateRule revises a rule's mutable fields. The trigger and conditions
// cannot change; replace the rule to change what it reacts to.
func (e *Engine) UpdateRule(ctx context.Context, id string, in UpdateRuleInput) (*Rule, error) {
	rule, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, &ValidationError{Message: "Rule name is required"}
		}
		rule.Name = *in.Name
	}
	if in.Description != nil {
		rule.Description = *in.Description
	}
	if in.Enabled != nil {
		rule.Enabled = *in.Enabled
	}
	if in.Actions != nil {
		if res := e.validator.ValidateActions(in.Actions); !res.Valid {
			return nil, &ValidationError{Message: res.Error}
		}
		actions, err := e.registry.DecodeActions(in.Actions)
		if err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		rule.Actions = actions
	}
	rule.UpdatedAt = e.now()

	if err := e.store.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	e.invalidate(rule.FamilyID)
	return rule, nil
}

// ToggleRule flips a rule's enabled flag and returns the new state.
func (e *Engine) ToggleRule(ctx context.Context, id string) (*Rule, error) {
	rule, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetEnabled(ctx, id, !rule.Enabled); err != nil {
		return nil, fmt.Errorf("toggle rule: %w", err)
	}
	e.invalidate(rule.FamilyID)
	return e.store.Get(ctx, id)
}

// DeleteRule removes a rule and its history.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	rule, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	e.invalidate(rule.FamilyID)
	e.logger.Info("rule deleted", "ruleId", id, "familyId", rule.FamilyID)
	return nil
}

// Dispatch routes an event through the dispatcher.
func (e *Engine) Dispatch(ctx context.Context, ev Event) ([]*ExecutionRecord, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now()
	}
	return e.dispatcher.Dispatch(ctx, ev)
}

// ListExecutions returns a rule's execution history newest-first.
func (e *Engine) ListExecutions(ctx context.Context, ruleID string, limit, offset int) ([]*ExecutionRecord, error) {
	if _, err := e.store.Get(ctx, ruleID); err != nil {
		return nil, err
	}
	return e.recorder.ListByRule(ctx, ruleID, limit, offset)
}

// ExecutionStats summarizes a rule's execution history.
func (e *Engine) ExecutionStats(ctx context.Context, ruleID string) (*ExecutionStats, error) {
	if _, err := e.store.Get(ctx, ruleID); err != nil {
		return nil, err
	}
	return e.recorder.Stats(ctx, ruleID)
}

// DryRun evaluates a rule against an event context without running actions
// and describes what each action would do.
func (e *Engine) DryRun(ctx context.Context, ruleID string, evCtx EventContext) (*DryRunResult, error) {
	rule, err := e.store.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	result := &DryRunResult{RuleID: rule.ID}
	result.TriggerMatched = rule.Trigger.Matches(evCtx)
	if !result.TriggerMatched {
		result.ConditionResult = ConditionSkipped
		return result, nil
	}

	if rule.Conditions == nil {
		result.ConditionResult = ConditionSkipped
	} else if EvaluateConditions(rule.Conditions, evCtx) {
		result.ConditionResult = ConditionMatched
	} else {
		result.ConditionResult = ConditionNotMatched
		return result, nil
	}

	result.WouldFire = true
	for _, action := range rule.Actions {
		result.Simulations = append(result.Simulations, simulateAction(action, evCtx))
	}
	return result, nil
}

func simulateAction(action Action, evCtx EventContext) string {
	switch a := action.(type) {
	case *AwardCreditsAction:
		member := a.MemberID
		if member == "" {
			member, _ = ctxString(evCtx, "memberId")
		}
		if member == "" {
			member = "the triggering member"
		}
		return fmt.Sprintf("Would award %d credits to %s", a.Amount, member)
	case *SendNotificationAction:
		return fmt.Sprintf("Would send notification %q to %d recipient(s)", a.Title, len(a.Recipients))
	case *AddShoppingItemAction:
		name := a.ItemName
		if a.FromInventory {
			if n, _ := ctxString(evCtx, "itemName"); n != "" {
				name = n
			}
		}
		return fmt.Sprintf("Would add %q to the shopping list", name)
	case *CreateTodoAction:
		return fmt.Sprintf("Would create todo %q", a.Title)
	case *LockMedicationAction:
		return fmt.Sprintf("Would lock medication %s for %d hour(s)", a.MedicationID, a.Hours)
	case *SuggestMealAction:
		return "Would suggest a meal"
	case *ReduceChoresAction:
		return fmt.Sprintf("Would reduce chores for %s by %d%% for %d day(s)", a.MemberID, a.Percentage, a.Duration)
	case *AdjustScreenTimeAction:
		return fmt.Sprintf("Would adjust screen time for %s by %d minute(s)", a.MemberID, a.AmountMinutes)
	}
	return fmt.Sprintf("Would run %s", action.Kind())
}

func (e *Engine) invalidate(familyID string) {
	if e.cache != nil {
		e.cache.Invalidate(familyID)
	}
}
