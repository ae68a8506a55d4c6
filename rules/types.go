package rules

import "time"

// TriggerKind identifies the event condition that makes a rule eligible to fire.
type TriggerKind string

const (
	TriggerChoreCompleted   TriggerKind = "chore_completed"
	TriggerChoreStreak      TriggerKind = "chore_streak"
	TriggerScreenTimeLow    TriggerKind = "screentime_low"
	TriggerInventoryLow     TriggerKind = "inventory_low"
	TriggerCalendarBusy     TriggerKind = "calendar_busy"
	TriggerMedicationGiven  TriggerKind = "medication_given"
	TriggerRoutineCompleted TriggerKind = "routine_completed"
	TriggerTimeBased        TriggerKind = "time_based"
)

// ActionKind identifies a side-effecting instruction executed when a rule fires.
type ActionKind string

const (
	ActionAwardCredits     ActionKind = "award_credits"
	ActionSendNotification ActionKind = "send_notification"
	ActionAddShoppingItem  ActionKind = "add_shopping_item"
	ActionCreateTodo       ActionKind = "create_todo"
	ActionLockMedication   ActionKind = "lock_medication"
	ActionSuggestMeal      ActionKind = "suggest_meal"
	ActionReduceChores     ActionKind = "reduce_chores"
	ActionAdjustScreenTime ActionKind = "adjust_screentime"
)

// EventContext is the flat key/value snapshot a firing event carries, built
// from the event itself plus any enrichment the caller attaches (current
// streak, current credit balance, ...).
type EventContext map[string]any

// Event is one domain occurrence routed through the dispatcher.
// RuleID, when set, narrows dispatch to a single rule; the scheduler uses it
// so one time-based rule's cron firing cannot fan out to its siblings.
type Event struct {
	Kind       TriggerKind  `json:"kind"`
	FamilyID   string       `json:"familyId"`
	RuleID     string       `json:"ruleId,omitempty"`
	Context    EventContext `json:"context"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// TriggerConfig is the wire form of a trigger: a kind tag plus a config blob.
// The validator works on this loosely-typed shape so it can report a missing
// type distinctly from an unrecognized one; everything past validation works
// on the decoded Trigger sum type.
type TriggerConfig struct {
	Type   string `json:"type"`
	Config any    `json:"config"`
}

// ActionConfig is the wire form of an action, mirroring TriggerConfig.
type ActionConfig struct {
	Type   string `json:"type"`
	Config any    `json:"config"`
}

// Trigger is the decoded, kind-specific trigger configuration. Matches
// reports whether the trigger's targeting applies to an event context;
// kind-level routing has already happened by the time it is called.
type Trigger interface {
	Kind() TriggerKind
	Matches(ctx EventContext) bool
}

// Action is the decoded, kind-specific action configuration. The executor
// switches exhaustively over the concrete types.
type Action interface {
	Kind() ActionKind
}

// Condition tree operators and leaf comparison operators. The tree is a
// single AND/OR level over a flat list of leaves.
const (
	OperatorAnd = "AND"
	OperatorOr  = "OR"
)

const (
	CompareEquals   = "equals"
	CompareGt       = "gt"
	CompareLt       = "lt"
	CompareGte      = "gte"
	CompareLte      = "lte"
	CompareContains = "contains"
)

// ConditionTree combines comparison leaves with a single logical operator.
type ConditionTree struct {
	Operator string          `json:"operator"`
	Rules    []ConditionRule `json:"rules"`
}

// ConditionRule is one comparison leaf evaluated against the event context.
type ConditionRule struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// Rule is a persisted automation definition: one trigger, an optional
// condition tree, and an ordered action list. Trigger and Conditions are
// immutable after creation; only name, description, enabled and actions may
// be revised.
type Rule struct {
	ID          string         `json:"id"`
	FamilyID    string         `json:"familyId"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Trigger     Trigger        `json:"-"`
	Conditions  *ConditionTree `json:"conditions,omitempty"`
	Actions     []Action       `json:"-"`
	Enabled     bool           `json:"enabled"`
	CreatedBy   string         `json:"createdBy,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// ExecutionStatus is the overall outcome of one dispatch attempt against one rule.
type ExecutionStatus string

const (
	StatusFired             ExecutionStatus = "fired"
	StatusSkippedConditions ExecutionStatus = "skipped_conditions"
	StatusDisabled          ExecutionStatus = "disabled"
	StatusError             ExecutionStatus = "error"
)

// ConditionResult records how the condition tree evaluated for one dispatch.
type ConditionResult string

const (
	ConditionMatched    ConditionResult = "matched"
	ConditionNotMatched ConditionResult = "not_matched"
	ConditionSkipped    ConditionResult = "skipped" // rule has no conditions
)

// OutcomeStatus is the result of one action within an execution.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

// ActionOutcome captures one action's result, in original list order.
type ActionOutcome struct {
	ActionIndex int           `json:"actionIndex"`
	Kind        ActionKind    `json:"kind"`
	Status      OutcomeStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// ExecutionRecord is the immutable audit entry for one dispatch attempt
// against one rule.
type ExecutionRecord struct {
	ID              string          `json:"id"`
	RuleID          string          `json:"ruleId"`
	Event           Event           `json:"event"`
	ConditionResult ConditionResult `json:"conditionResult"`
	Outcomes        []ActionOutcome `json:"outcomes,omitempty"`
	Status          ExecutionStatus `json:"status"`
	Error           string          `json:"error,omitempty"`
	DispatchedAt    time.Time       `json:"dispatchedAt"`
	CompletedAt     time.Time       `json:"completedAt"`
}

// Failed reports whether any action in the execution failed.
func (r *ExecutionRecord) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			return true
		}
	}
	return false
}

// ExecutionStats summarizes a rule's execution history.
type ExecutionStats struct {
	TotalExecutions      int        `json:"totalExecutions"`
	SuccessfulExecutions int        `json:"successfulExecutions"`
	FailedExecutions     int        `json:"failedExecutions"`
	SuccessRate          int        `json:"successRate"` // percent, rounded
	LastExecutionAt      *time.Time `json:"lastExecutionAt,omitempty"`
}

// SafetyLimits bounds what a single rule may do.
type SafetyLimits struct {
	MaxExecutionsPerHour      int
	MaxActionsPerRule         int
	MaxConditionsPerRule      int
	MaxCreditsPerAction       int
	MaxNotificationRecipients int
	MaxConsecutiveFailures    int
}

// DefaultSafetyLimits returns the stock limits applied when none are injected.
func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{
		MaxExecutionsPerHour:      10,
		MaxActionsPerRule:         5,
		MaxConditionsPerRule:      10,
		MaxCreditsPerAction:       1000,
		MaxNotificationRecipients: 10,
		MaxConsecutiveFailures:    3,
	}
}
