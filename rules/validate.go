package rules

import (
	"fmt"
	"strings"
)

// ValidationResult is the outcome of validating a candidate rule
// configuration. Error wording is part of the API contract: callers and
// tests match on the message substrings.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func valid() ValidationResult { return ValidationResult{Valid: true} }

func invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Error: fmt.Sprintf(format, args...)}
}

// Validator checks rule configurations before they are persisted. It is pure:
// no I/O, no side effects, deterministic output for a given input.
type Validator struct {
	reg    *Registry
	limits SafetyLimits
}

// NewValidator returns a validator over the given registry with default
// safety limits.
func NewValidator(reg *Registry) *Validator {
	return NewValidatorWithLimits(reg, DefaultSafetyLimits())
}

// NewValidatorWithLimits returns a validator with custom safety limits.
func NewValidatorWithLimits(reg *Registry, limits SafetyLimits) *Validator {
	return &Validator{reg: reg, limits: limits}
}

// ValidateRuleConfiguration validates a candidate trigger, optional condition
// tree, and action list. Checks run in a fixed order and stop at the first
// failure: trigger, then conditions, then actions.
func (v *Validator) ValidateRuleConfiguration(trigger TriggerConfig, conditions *ConditionTree, actions []ActionConfig) ValidationResult {
	if res := v.ValidateTrigger(trigger); !res.Valid {
		return res
	}
	if conditions != nil {
		if res := v.ValidateConditions(conditions); !res.Valid {
			return res
		}
	}
	return v.ValidateActions(actions)
}

// ValidateTrigger checks the trigger envelope and its kind-specific config.
func (v *Validator) ValidateTrigger(trigger TriggerConfig) ValidationResult {
	if trigger.Type == "" {
		return invalid("Trigger type is required")
	}
	if !v.reg.ValidTriggerKind(trigger.Type) {
		return invalid("Invalid trigger type: %s. Must be one of: %s", trigger.Type, v.reg.triggerKindList())
	}
	cfg, ok := trigger.Config.(map[string]any)
	if !ok || cfg == nil {
		return invalid("Trigger config must be an object")
	}
	return v.validateTriggerConfig(TriggerKind(trigger.Type), cfg)
}

func (v *Validator) validateTriggerConfig(kind TriggerKind, cfg map[string]any) ValidationResult {
	switch kind {
	case TriggerChoreCompleted:
		choreID, _ := cfgString(cfg, "choreId")
		definitionID, _ := cfgString(cfg, "choreDefinitionId")
		anyChore, _ := cfgBool(cfg, "anyChore")
		if choreID == "" && definitionID == "" && !anyChore {
			return invalid("Chore completed trigger must specify choreId, choreDefinitionId, or anyChore=true")
		}

	case TriggerChoreStreak:
		days, ok := cfgNumber(cfg, "days")
		if !ok {
			return invalid("Chore streak trigger requires days (number)")
		}
		if days < 1 || days > 365 {
			return invalid("Streak days must be between 1 and 365")
		}

	case TriggerScreenTimeLow:
		threshold, ok := cfgNumber(cfg, "thresholdMinutes")
		if !ok {
			return invalid("Screen time low trigger requires thresholdMinutes (number)")
		}
		if threshold < 0 || threshold > 1440 {
			return invalid("Threshold minutes must be between 0 and 1440 (24 hours)")
		}

	case TriggerInventoryLow:
		itemID, _ := cfgString(cfg, "itemId")
		category, _ := cfgString(cfg, "category")
		if itemID == "" && category == "" {
			return invalid("Inventory low trigger must specify itemId or category")
		}
		if raw, present := cfg["thresholdPercentage"]; present {
			pct, ok := asNumber(raw)
			if !ok || pct < 0 || pct > 100 {
				return invalid("Threshold percentage must be between 0 and 100")
			}
		}

	case TriggerCalendarBusy:
		count, ok := cfgNumber(cfg, "eventCount")
		if !ok {
			return invalid("Calendar busy trigger requires eventCount (number)")
		}
		if count < 1 || count > 50 {
			return invalid("Event count must be between 1 and 50")
		}

	case TriggerMedicationGiven:
		medicationID, _ := cfgString(cfg, "medicationId")
		anyMedication, _ := cfgBool(cfg, "anyMedication")
		if medicationID == "" && !anyMedication {
			return invalid("Medication given trigger must specify medicationId or anyMedication=true")
		}

	case TriggerRoutineCompleted:
		// Targeting is optional for routines.

	case TriggerTimeBased:
		expr, ok := cfgString(cfg, "cron")
		if !ok || expr == "" {
			return invalid("Time based trigger requires cron expression (string)")
		}
		if !isCronSpecial(expr) && len(strings.Fields(expr)) != cronFieldCount {
			return invalid("Cron expression must have 5 parts (minute hour day month weekday) or be a special value: %s", strings.Join(cronSpecials(), ", "))
		}
		if desc, ok := cfgString(cfg, "description"); !ok || desc == "" {
			return invalid("Time based trigger requires description")
		}
	}
	return valid()
}

// ValidateConditions checks a non-nil condition tree: one AND/OR level over
// 1..MaxConditionsPerRule comparison leaves.
func (v *Validator) ValidateConditions(conditions *ConditionTree) ValidationResult {
	if conditions.Operator != OperatorAnd && conditions.Operator != OperatorOr {
		return invalid("Conditions operator must be AND or OR")
	}
	if len(conditions.Rules) == 0 {
		return invalid("Conditions must have at least one rule")
	}
	if len(conditions.Rules) > v.limits.MaxConditionsPerRule {
		return invalid("Maximum %d condition rules allowed", v.limits.MaxConditionsPerRule)
	}
	for i, rule := range conditions.Rules {
		if rule.Field == "" {
			return invalid("Condition rule %d: field is required (string)", i+1)
		}
		switch rule.Operator {
		case CompareEquals, CompareGt, CompareLt, CompareGte, CompareLte, CompareContains:
		default:
			return invalid("Condition rule %d: operator must be one of: equals, gt, lt, gte, lte, contains", i+1)
		}
		if rule.Value == nil {
			return invalid("Condition rule %d: value is required", i+1)
		}
	}
	return valid()
}

// ValidateActions checks an ordered action list: non-empty, bounded, each
// entry a known kind with a well-formed config.
func (v *Validator) ValidateActions(actions []ActionConfig) ValidationResult {
	if len(actions) == 0 {
		return invalid("At least one action is required")
	}
	if len(actions) > v.limits.MaxActionsPerRule {
		return invalid("Maximum %d actions allowed per rule", v.limits.MaxActionsPerRule)
	}
	for i, action := range actions {
		if res := v.validateAction(action); !res.Valid {
			return invalid("Action %d: %s", i+1, res.Error)
		}
	}
	return valid()
}

func (v *Validator) validateAction(action ActionConfig) ValidationResult {
	if action.Type == "" {
		return invalid("Action type is required")
	}
	if !v.reg.ValidActionKind(action.Type) {
		return invalid("Invalid action type: %s. Must be one of: %s", action.Type, v.reg.actionKindList())
	}
	cfg, ok := action.Config.(map[string]any)
	if !ok || cfg == nil {
		return invalid("Action config must be an object")
	}
	return v.validateActionConfig(ActionKind(action.Type), cfg)
}

func (v *Validator) validateActionConfig(kind ActionKind, cfg map[string]any) ValidationResult {
	switch kind {
	case ActionAwardCredits:
		amount, ok := cfgNumber(cfg, "amount")
		if !ok {
			return invalid("Award credits action requires amount (number)")
		}
		if amount < 1 || amount > float64(v.limits.MaxCreditsPerAction) {
			return invalid("Credit amount must be between 1 and %d", v.limits.MaxCreditsPerAction)
		}

	case ActionSendNotification:
		recipients, ok := cfgStringSlice(cfg, "recipients")
		if !ok || len(recipients) == 0 {
			return invalid("Send notification action requires recipients array")
		}
		if len(recipients) > v.limits.MaxNotificationRecipients {
			return invalid("Maximum %d notification recipients allowed", v.limits.MaxNotificationRecipients)
		}
		if title, ok := cfgString(cfg, "title"); !ok || strings.TrimSpace(title) == "" {
			return invalid("Send notification action requires title (non-empty string)")
		}
		if message, ok := cfgString(cfg, "message"); !ok || strings.TrimSpace(message) == "" {
			return invalid("Send notification action requires message (non-empty string)")
		}

	case ActionAddShoppingItem:
		fromInventory, _ := cfgBool(cfg, "fromInventory")
		itemName, _ := cfgString(cfg, "itemName")
		if !fromInventory && strings.TrimSpace(itemName) == "" {
			return invalid("Add shopping item action requires itemName (non-empty string) unless fromInventory=true")
		}
		if raw, present := cfg["quantity"]; present {
			qty, ok := asNumber(raw)
			if !ok || qty < 1 {
				return invalid("Shopping item quantity must be a positive number")
			}
		}
		if priority, ok := cfgString(cfg, "priority"); ok && priority != "" {
			if priority != "NORMAL" && priority != "NEEDED_SOON" && priority != "URGENT" {
				return invalid("Shopping item priority must be NORMAL, NEEDED_SOON, or URGENT")
			}
		}

	case ActionCreateTodo:
		if title, ok := cfgString(cfg, "title"); !ok || strings.TrimSpace(title) == "" {
			return invalid("Create todo action requires title (non-empty string)")
		}
		if priority, ok := cfgString(cfg, "priority"); ok && priority != "" {
			if priority != "LOW" && priority != "MEDIUM" && priority != "HIGH" && priority != "URGENT" {
				return invalid("Todo priority must be LOW, MEDIUM, HIGH, or URGENT")
			}
		}

	case ActionLockMedication:
		if medicationID, ok := cfgString(cfg, "medicationId"); !ok || medicationID == "" {
			return invalid("Lock medication action requires medicationId (string)")
		}
		hours, ok := cfgNumber(cfg, "hours")
		if !ok || hours < 0 || hours > 72 {
			return invalid("Lock medication hours must be between 0 and 72")
		}

	case ActionSuggestMeal:
		if difficulty, ok := cfgString(cfg, "difficulty"); ok && difficulty != "" {
			if difficulty != "EASY" && difficulty != "MEDIUM" && difficulty != "HARD" {
				return invalid("Meal difficulty must be EASY, MEDIUM, or HARD")
			}
		}

	case ActionReduceChores:
		if memberID, ok := cfgString(cfg, "memberId"); !ok || memberID == "" {
			return invalid("Reduce chores action requires memberId (string)")
		}
		pct, ok := cfgNumber(cfg, "percentage")
		if !ok || pct < 1 || pct > 100 {
			return invalid("Reduce chores percentage must be between 1 and 100")
		}
		duration, ok := cfgNumber(cfg, "duration")
		if !ok || duration < 1 || duration > 30 {
			return invalid("Reduce chores duration must be between 1 and 30 days")
		}

	case ActionAdjustScreenTime:
		if memberID, ok := cfgString(cfg, "memberId"); !ok || memberID == "" {
			return invalid("Adjust screen time action requires memberId (string)")
		}
		amount, ok := cfgNumber(cfg, "amountMinutes")
		if !ok {
			return invalid("Adjust screen time action requires amountMinutes (number)")
		}
		if amount < -1440 || amount > 1440 {
			return invalid("Screen time adjustment must be between -1440 and 1440 minutes (24 hours)")
		}
	}
	return valid()
}

func cfgString(cfg map[string]any, key string) (string, bool) {
	v, ok := cfg[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func cfgNumber(cfg map[string]any, key string) (float64, bool) {
	v, ok := cfg[key]
	if !ok {
		return 0, false
	}
	return asNumber(v)
}

func cfgBool(cfg map[string]any, key string) (bool, bool) {
	v, ok := cfg[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func cfgStringSlice(cfg map[string]any, key string) ([]string, bool) {
	v, ok := cfg[key]
	if !ok {
		return nil, false
	}
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
