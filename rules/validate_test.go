package rules

import (
	"strings"
	"testing"
)

func validTrigger() TriggerConfig {
	return TriggerConfig{
		Type:   string(TriggerChoreCompleted),
		Config: map[string]any{"anyChore": true},
	}
}

func validActions() []ActionConfig {
	return []ActionConfig{
		{
			Type:   string(ActionAwardCredits),
			Config: map[string]any{"amount": float64(10)},
		},
	}
}

func TestValidateTrigger(t *testing.T) {
	v := NewValidator(NewRegistry())

	tests := []struct {
		name    string
		trigger TriggerConfig
		wantErr string
	}{
		{
			name:    "missing type",
			trigger: TriggerConfig{Config: map[string]any{}},
			wantErr: "Trigger type is required",
		},
		{
			name:    "unknown type",
			trigger: TriggerConfig{Type: "garage_door_opened", Config: map[string]any{}},
			wantErr: "Invalid trigger type: garage_door_opened",
		},
		{
			name:    "config missing",
			trigger: TriggerConfig{Type: string(TriggerChoreCompleted)},
			wantErr: "Trigger config must be an object",
		},
		{
			name:    "config is array",
			trigger: TriggerConfig{Type: string(TriggerChoreCompleted), Config: []any{"x"}},
			wantErr: "Trigger config must be an object",
		},
		{
			name:    "chore completed without targeting",
			trigger: TriggerConfig{Type: string(TriggerChoreCompleted), Config: map[string]any{}},
			wantErr: "must specify choreId, choreDefinitionId, or anyChore=true",
		},
		{
			name: "streak days out of range",
			trigger: TriggerConfig{
				Type:   string(TriggerChoreStreak),
				Config: map[string]any{"days": float64(400)},
			},
			wantErr: "Streak days must be between 1 and 365",
		},
		{
			name: "streak days missing",
			trigger: TriggerConfig{
				Type:   string(TriggerChoreStreak),
				Config: map[string]any{},
			},
			wantErr: "requires days",
		},
		{
			name: "screen time threshold too high",
			trigger: TriggerConfig{
				Type:   string(TriggerScreenTimeLow),
				Config: map[string]any{"thresholdMinutes": float64(2000)},
			},
			wantErr: "Threshold minutes must be between 0 and 1440",
		},
		{
			name: "calendar event count too high",
			trigger: TriggerConfig{
				Type:   string(TriggerCalendarBusy),
				Config: map[string]any{"eventCount": float64(100)},
			},
			wantErr: "Event count must be between 1 and 50",
		},
		{
			name: "time based without cron",
			trigger: TriggerConfig{
				Type:   string(TriggerTimeBased),
				Config: map[string]any{"description": "daily reset"},
			},
			wantErr: "requires cron expression",
		},
		{
			name: "time based with malformed cron",
			trigger: TriggerConfig{
				Type:   string(TriggerTimeBased),
				Config: map[string]any{"cron": "0 0 *", "description": "x"},
			},
			wantErr: "Cron expression must have 5 parts",
		},
		{
			name: "time based without description",
			trigger: TriggerConfig{
				Type:   string(TriggerTimeBased),
				Config: map[string]any{"cron": "0 0 * * *"},
			},
			wantErr: "requires description",
		},
		{
			name:    "valid chore completed",
			trigger: validTrigger(),
		},
		{
			name: "valid time based special",
			trigger: TriggerConfig{
				Type:   string(TriggerTimeBased),
				Config: map[string]any{"cron": "daily", "description": "every midnight"},
			},
		},
		{
			name: "valid medication given",
			trigger: TriggerConfig{
				Type:   string(TriggerMedicationGiven),
				Config: map[string]any{"anyMedication": true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateTrigger(tt.trigger)
			if tt.wantErr == "" {
				if !res.Valid {
					t.Fatalf("expected valid, got error: %s", res.Error)
				}
				return
			}
			if res.Valid {
				t.Fatalf("expected error containing %q, got valid", tt.wantErr)
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestValidateConditions(t *testing.T) {
	v := NewValidator(NewRegistry())

	manyRules := make([]ConditionRule, 11)
	for i := range manyRules {
		manyRules[i] = ConditionRule{Field: "x", Operator: CompareEquals, Value: float64(1)}
	}

	tests := []struct {
		name       string
		conditions *ConditionTree
		wantErr    string
	}{
		{
			name:       "bad operator",
			conditions: &ConditionTree{Operator: "XOR", Rules: []ConditionRule{{Field: "x", Operator: CompareEquals, Value: float64(1)}}},
			wantErr:    "Conditions operator must be AND or OR",
		},
		{
			name:       "empty rules",
			conditions: &ConditionTree{Operator: OperatorAnd},
			wantErr:    "Conditions must have at least one rule",
		},
		{
			name:       "too many rules",
			conditions: &ConditionTree{Operator: OperatorAnd, Rules: manyRules},
			wantErr:    "Maximum 10 condition rules allowed",
		},
		{
			name: "missing field",
			conditions: &ConditionTree{Operator: OperatorAnd, Rules: []ConditionRule{
				{Operator: CompareEquals, Value: float64(1)},
			}},
			wantErr: "Condition rule 1: field is required (string)",
		},
		{
			name: "bad comparison operator",
			conditions: &ConditionTree{Operator: OperatorOr, Rules: []ConditionRule{
				{Field: "a", Operator: CompareEquals, Value: float64(1)},
				{Field: "b", Operator: "between", Value: float64(1)},
			}},
			wantErr: "Condition rule 2: operator must be one of: equals, gt, lt, gte, lte, contains",
		},
		{
			name: "missing value",
			conditions: &ConditionTree{Operator: OperatorAnd, Rules: []ConditionRule{
				{Field: "a", Operator: CompareGt},
			}},
			wantErr: "Condition rule 1: value is required",
		},
		{
			name: "valid tree",
			conditions: &ConditionTree{Operator: OperatorAnd, Rules: []ConditionRule{
				{Field: "currentStreak", Operator: CompareGte, Value: float64(7)},
				{Field: "memberRole", Operator: CompareEquals, Value: "child"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateConditions(tt.conditions)
			if tt.wantErr == "" {
				if !res.Valid {
					t.Fatalf("expected valid, got error: %s", res.Error)
				}
				return
			}
			if res.Valid || !strings.Contains(res.Error, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestValidateActions(t *testing.T) {
	v := NewValidator(NewRegistry())

	sixActions := make([]ActionConfig, 6)
	for i := range sixActions {
		sixActions[i] = validActions()[0]
	}

	tests := []struct {
		name    string
		actions []ActionConfig
		wantErr string
	}{
		{
			name:    "no actions",
			actions: nil,
			wantErr: "At least one action is required",
		},
		{
			name:    "too many actions",
			actions: sixActions,
			wantErr: "Maximum 5 actions allowed per rule",
		},
		{
			name:    "missing type",
			actions: []ActionConfig{{Config: map[string]any{}}},
			wantErr: "Action 1: Action type is required",
		},
		{
			name:    "unknown type",
			actions: []ActionConfig{{Type: "launch_fireworks", Config: map[string]any{}}},
			wantErr: "Action 1: Invalid action type: launch_fireworks",
		},
		{
			name:    "config not an object",
			actions: []ActionConfig{{Type: string(ActionAwardCredits), Config: "nope"}},
			wantErr: "Action 1: Action config must be an object",
		},
		{
			name: "credits amount too high",
			actions: []ActionConfig{{
				Type:   string(ActionAwardCredits),
				Config: map[string]any{"amount": float64(5000)},
			}},
			wantErr: "Credit amount must be between 1 and 1000",
		},
		{
			name: "notification without recipients",
			actions: []ActionConfig{{
				Type:   string(ActionSendNotification),
				Config: map[string]any{"title": "hi", "message": "there"},
			}},
			wantErr: "requires recipients array",
		},
		{
			name: "notification too many recipients",
			actions: []ActionConfig{{
				Type: string(ActionSendNotification),
				Config: map[string]any{
					"recipients": []any{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"},
					"title":      "hi",
					"message":    "there",
				},
			}},
			wantErr: "Maximum 10 notification recipients allowed",
		},
		{
			name: "lock medication hours out of range",
			actions: []ActionConfig{{
				Type:   string(ActionLockMedication),
				Config: map[string]any{"medicationId": "med-1", "hours": float64(100)},
			}},
			wantErr: "Lock medication hours must be between 0 and 72",
		},
		{
			name: "reduce chores bad percentage",
			actions: []ActionConfig{{
				Type:   string(ActionReduceChores),
				Config: map[string]any{"memberId": "m1", "percentage": float64(0), "duration": float64(7)},
			}},
			wantErr: "percentage must be between 1 and 100",
		},
		{
			name: "screen time adjustment out of range",
			actions: []ActionConfig{{
				Type:   string(ActionAdjustScreenTime),
				Config: map[string]any{"memberId": "m1", "amountMinutes": float64(-2000)},
			}},
			wantErr: "Screen time adjustment must be between -1440 and 1440",
		},
		{
			name: "error names failing index",
			actions: []ActionConfig{
				validActions()[0],
				{Type: string(ActionCreateTodo), Config: map[string]any{}},
			},
			wantErr: "Action 2: Create todo action requires title",
		},
		{
			name:    "valid single action",
			actions: validActions(),
		},
		{
			name: "valid five actions",
			actions: []ActionConfig{
				validActions()[0], validActions()[0], validActions()[0],
				validActions()[0], validActions()[0],
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateActions(tt.actions)
			if tt.wantErr == "" {
				if !res.Valid {
					t.Fatalf("expected valid, got error: %s", res.Error)
				}
				return
			}
			if res.Valid {
				t.Fatalf("expected error containing %q, got valid", tt.wantErr)
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestValidateRuleConfigurationOrder(t *testing.T) {
	v := NewValidator(NewRegistry())

	// Trigger problems are reported before action problems.
	res := v.ValidateRuleConfiguration(TriggerConfig{}, nil, nil)
	if res.Valid || res.Error != "Trigger type is required" {
		t.Errorf("got %q, want trigger error first", res.Error)
	}

	// Condition problems come before action problems.
	res = v.ValidateRuleConfiguration(validTrigger(), &ConditionTree{Operator: "NOR"}, nil)
	if res.Valid || res.Error != "Conditions operator must be AND or OR" {
		t.Errorf("got %q, want condition error before action error", res.Error)
	}

	// A nil condition tree is fine.
	res = v.ValidateRuleConfiguration(validTrigger(), nil, validActions())
	if !res.Valid {
		t.Errorf("expected valid, got %q", res.Error)
	}
}
