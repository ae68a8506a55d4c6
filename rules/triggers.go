package rules

// Trigger variants. Each carries the kind-specific config the wire envelope's
// config object decodes into, and knows how to match itself against an event
// context. Matching never touches I/O; enrichment (current streak, balances)
// is the event producer's job.

// ChoreCompletedTrigger fires when a chore is completed. With no targeting
// set it matches any chore completion.
type ChoreCompletedTrigger struct {
	ChoreID           string `json:"choreId,omitempty"`
	ChoreDefinitionID string `json:"choreDefinitionId,omitempty"`
	AnyChore          bool   `json:"anyChore,omitempty"`
}

func (t *ChoreCompletedTrigger) Kind() TriggerKind { return TriggerChoreCompleted }

func (t *ChoreCompletedTrigger) Matches(ctx EventContext) bool {
	instanceID, _ := ctxString(ctx, "choreInstanceId")
	definitionID, _ := ctxString(ctx, "choreDefinitionId")
	anyPresent := instanceID != "" || definitionID != ""

	if t.AnyChore {
		return anyPresent
	}
	if t.ChoreID != "" && instanceID == t.ChoreID {
		return true
	}
	if t.ChoreDefinitionID != "" && definitionID == t.ChoreDefinitionID {
		return true
	}
	// Empty targeting matches any chore.
	if t.ChoreID == "" && t.ChoreDefinitionID == "" {
		return anyPresent
	}
	return false
}

// ChoreStreakTrigger fires when a member's chore streak reaches a threshold.
type ChoreStreakTrigger struct {
	Days       int    `json:"days"`
	StreakType string `json:"streakType,omitempty"`
}

func (t *ChoreStreakTrigger) Kind() TriggerKind { return TriggerChoreStreak }

func (t *ChoreStreakTrigger) Matches(ctx EventContext) bool {
	streak, ok := ctxNumber(ctx, "currentStreak")
	if !ok {
		return false
	}
	if member, _ := ctxString(ctx, "memberId"); member == "" {
		return false
	}
	if t.StreakType != "" {
		if st, _ := ctxString(ctx, "streakType"); st != t.StreakType {
			return false
		}
	}
	return streak >= float64(t.Days)
}

// ScreenTimeLowTrigger fires when a member's screen time balance drops to or
// below the threshold.
type ScreenTimeLowTrigger struct {
	ThresholdMinutes int `json:"thresholdMinutes"`
}

func (t *ScreenTimeLowTrigger) Kind() TriggerKind { return TriggerScreenTimeLow }

func (t *ScreenTimeLowTrigger) Matches(ctx EventContext) bool {
	balance, ok := ctxNumber(ctx, "currentBalance")
	if !ok {
		return false
	}
	if member, _ := ctxString(ctx, "memberId"); member == "" {
		return false
	}
	return balance <= float64(t.ThresholdMinutes)
}

// InventoryLowTrigger fires when an inventory item crosses its remaining
// percentage threshold. ThresholdPercentage defaults to 20 when unset.
type InventoryLowTrigger struct {
	ItemID              string  `json:"itemId,omitempty"`
	Category            string  `json:"category,omitempty"`
	ThresholdPercentage float64 `json:"thresholdPercentage,omitempty"`
}

func (t *InventoryLowTrigger) Kind() TriggerKind { return TriggerInventoryLow }

func (t *InventoryLowTrigger) Matches(ctx EventContext) bool {
	if t.ItemID != "" {
		if itemID, _ := ctxString(ctx, "inventoryItemId"); itemID != t.ItemID {
			return false
		}
	}
	if t.Category != "" {
		if cat, _ := ctxString(ctx, "category"); cat != t.Category {
			return false
		}
	}
	remaining, ok := ctxNumber(ctx, "remainingPercentage")
	if !ok {
		return false
	}
	threshold := t.ThresholdPercentage
	if threshold == 0 {
		threshold = 20
	}
	return remaining <= threshold
}

// CalendarBusyTrigger fires when the day's calendar holds at least EventCount
// events.
type CalendarBusyTrigger struct {
	EventCount int    `json:"eventCount"`
	Date       string `json:"date,omitempty"`
}

func (t *CalendarBusyTrigger) Kind() TriggerKind { return TriggerCalendarBusy }

func (t *CalendarBusyTrigger) Matches(ctx EventContext) bool {
	count, ok := ctxNumber(ctx, "eventCount")
	if !ok {
		return false
	}
	if t.Date != "" {
		if date, _ := ctxString(ctx, "date"); date != t.Date {
			return false
		}
	}
	return count >= float64(t.EventCount)
}

// MedicationGivenTrigger fires when a dose is administered.
type MedicationGivenTrigger struct {
	MedicationID  string `json:"medicationId,omitempty"`
	MemberID      string `json:"memberId,omitempty"`
	AnyMedication bool   `json:"anyMedication,omitempty"`
}

func (t *MedicationGivenTrigger) Kind() TriggerKind { return TriggerMedicationGiven }

func (t *MedicationGivenTrigger) Matches(ctx EventContext) bool {
	medicationID, _ := ctxString(ctx, "medicationId")
	if t.MemberID != "" {
		if member, _ := ctxString(ctx, "memberId"); member != t.MemberID {
			return false
		}
	}
	if t.AnyMedication {
		return medicationID != ""
	}
	return t.MedicationID != "" && medicationID == t.MedicationID
}

// RoutineCompletedTrigger fires when a routine finishes. Targeting is optional.
type RoutineCompletedTrigger struct {
	RoutineID   string `json:"routineId,omitempty"`
	RoutineType string `json:"routineType,omitempty"`
}

func (t *RoutineCompletedTrigger) Kind() TriggerKind { return TriggerRoutineCompleted }

func (t *RoutineCompletedTrigger) Matches(ctx EventContext) bool {
	if t.RoutineID != "" {
		if id, _ := ctxString(ctx, "routineId"); id != t.RoutineID {
			return false
		}
	}
	if t.RoutineType != "" {
		if rt, _ := ctxString(ctx, "routineType"); rt != t.RoutineType {
			return false
		}
	}
	return true
}

// TimeBasedTrigger fires on a cron schedule. The scheduler decides when a
// period is due and targets the rule directly, so context matching is
// unconditional here.
type TimeBasedTrigger struct {
	Cron        string `json:"cron"`
	Description string `json:"description"`
}

func (t *TimeBasedTrigger) Kind() TriggerKind { return TriggerTimeBased }

func (t *TimeBasedTrigger) Matches(ctx EventContext) bool { return true }

func ctxString(ctx EventContext, key string) (string, bool) {
	v, ok := ctx[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func ctxNumber(ctx EventContext, key string) (float64, bool) {
	v, ok := ctx[key]
	if !ok {
		return 0, false
	}
	return asNumber(v)
}
