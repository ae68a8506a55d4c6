package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Registry is the closed set of trigger and action kinds the engine accepts,
// plus the decoders from wire envelopes to typed variants. It is built once
// at process start and injected wherever kinds are checked, so tests can
// substitute a narrower or extended registry.
type Registry struct {
	triggerKinds []TriggerKind
	triggers     map[TriggerKind]func() Trigger
	actionKinds  []ActionKind
	actions      map[ActionKind]func() Action
}

// NewRegistry returns a registry with every built-in trigger and action kind.
func NewRegistry() *Registry {
	r := &Registry{
		triggers: make(map[TriggerKind]func() Trigger),
		actions:  make(map[ActionKind]func() Action),
	}

	r.registerTrigger(TriggerChoreCompleted, func() Trigger { return &ChoreCompletedTrigger{} })
	r.registerTrigger(TriggerChoreStreak, func() Trigger { return &ChoreStreakTrigger{} })
	r.registerTrigger(TriggerScreenTimeLow, func() Trigger { return &ScreenTimeLowTrigger{} })
	r.registerTrigger(TriggerInventoryLow, func() Trigger { return &InventoryLowTrigger{} })
	r.registerTrigger(TriggerCalendarBusy, func() Trigger { return &CalendarBusyTrigger{} })
	r.registerTrigger(TriggerMedicationGiven, func() Trigger { return &MedicationGivenTrigger{} })
	r.registerTrigger(TriggerRoutineCompleted, func() Trigger { return &RoutineCompletedTrigger{} })
	r.registerTrigger(TriggerTimeBased, func() Trigger { return &TimeBasedTrigger{} })

	r.registerAction(ActionAwardCredits, func() Action { return &AwardCreditsAction{} })
	r.registerAction(ActionSendNotification, func() Action { return &SendNotificationAction{} })
	r.registerAction(ActionAddShoppingItem, func() Action { return &AddShoppingItemAction{} })
	r.registerAction(ActionCreateTodo, func() Action { return &CreateTodoAction{} })
	r.registerAction(ActionLockMedication, func() Action { return &LockMedicationAction{} })
	r.registerAction(ActionSuggestMeal, func() Action { return &SuggestMealAction{} })
	r.registerAction(ActionReduceChores, func() Action { return &ReduceChoresAction{} })
	r.registerAction(ActionAdjustScreenTime, func() Action { return &AdjustScreenTimeAction{} })

	return r
}

func (r *Registry) registerTrigger(kind TriggerKind, factory func() Trigger) {
	r.triggerKinds = append(r.triggerKinds, kind)
	r.triggers[kind] = factory
}

func (r *Registry) registerAction(kind ActionKind, factory func() Action) {
	r.actionKinds = append(r.actionKinds, kind)
	r.actions[kind] = factory
}

// TriggerKinds returns the registered trigger kinds in registration order.
func (r *Registry) TriggerKinds() []TriggerKind {
	kinds := make([]TriggerKind, len(r.triggerKinds))
	copy(kinds, r.triggerKinds)
	return kinds
}

// ActionKinds returns the registered action kinds in registration order.
func (r *Registry) ActionKinds() []ActionKind {
	kinds := make([]ActionKind, len(r.actionKinds))
	copy(kinds, r.actionKinds)
	return kinds
}

// ValidTriggerKind reports whether kind is registered.
func (r *Registry) ValidTriggerKind(kind string) bool {
	_, ok := r.triggers[TriggerKind(kind)]
	return ok
}

// ValidActionKind reports whether kind is registered.
func (r *Registry) ValidActionKind(kind string) bool {
	_, ok := r.actions[ActionKind(kind)]
	return ok
}

func (r *Registry) triggerKindList() string {
	parts := make([]string, len(r.triggerKinds))
	for i, k := range r.triggerKinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

func (r *Registry) actionKindList() string {
	parts := make([]string, len(r.actionKinds))
	for i, k := range r.actionKinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

// DecodeTrigger turns a validated wire envelope into its typed variant.
func (r *Registry) DecodeTrigger(tc TriggerConfig) (Trigger, error) {
	factory, ok := r.triggers[TriggerKind(tc.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown trigger type %q", tc.Type)
	}
	trigger := factory()
	if err := decodeConfig(tc.Config, trigger); err != nil {
		return nil, fmt.Errorf("trigger %s config: %w", tc.Type, err)
	}
	return trigger, nil
}

// DecodeAction turns a validated wire envelope into its typed variant.
func (r *Registry) DecodeAction(ac ActionConfig) (Action, error) {
	factory, ok := r.actions[ActionKind(ac.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown action type %q", ac.Type)
	}
	action := factory()
	if err := decodeConfig(ac.Config, action); err != nil {
		return nil, fmt.Errorf("action %s config: %w", ac.Type, err)
	}
	return action, nil
}

// DecodeActions decodes an ordered action list, preserving order.
func (r *Registry) DecodeActions(configs []ActionConfig) ([]Action, error) {
	actions := make([]Action, 0, len(configs))
	for i, ac := range configs {
		action, err := r.DecodeAction(ac)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i+1, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// EncodeTrigger produces the wire envelope for a typed trigger. The config
// object is always present, even when empty.
func EncodeTrigger(t Trigger) (TriggerConfig, error) {
	cfg, err := encodeConfig(t)
	if err != nil {
		return TriggerConfig{}, fmt.Errorf("encode trigger %s: %w", t.Kind(), err)
	}
	return TriggerConfig{Type: string(t.Kind()), Config: cfg}, nil
}

// EncodeAction produces the wire envelope for a typed action.
func EncodeAction(a Action) (ActionConfig, error) {
	cfg, err := encodeConfig(a)
	if err != nil {
		return ActionConfig{}, fmt.Errorf("encode action %s: %w", a.Kind(), err)
	}
	return ActionConfig{Type: string(a.Kind()), Config: cfg}, nil
}

// EncodeActions produces wire envelopes for an ordered action list.
func EncodeActions(actions []Action) ([]ActionConfig, error) {
	configs := make([]ActionConfig, 0, len(actions))
	for _, a := range actions {
		ac, err := EncodeAction(a)
		if err != nil {
			return nil, err
		}
		configs = append(configs, ac)
	}
	return configs, nil
}

func decodeConfig(config any, into any) error {
	if config == nil {
		return nil
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

func encodeConfig(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	cfg := map[string]any{}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
