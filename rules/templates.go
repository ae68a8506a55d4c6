package rules

// RuleTemplate is a prebuilt rule configuration families can instantiate
// as-is or tweak before creating.
type RuleTemplate struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Trigger     TriggerConfig  `json:"trigger"`
	Conditions  *ConditionTree `json:"conditions,omitempty"`
	Actions     []ActionConfig `json:"actions"`
}

// BuiltinTemplates returns the stock template catalog. Every entry passes
// validation unchanged.
func BuiltinTemplates() []RuleTemplate {
	return []RuleTemplate{
		{
			ID:          "chore_streak_bonus",
			Name:        "Chore Streak Bonus",
			Description: "Award bonus credits when a member keeps a 7-day chore streak",
			Category:    "chores",
			Trigger: TriggerConfig{
				Type:   string(TriggerChoreStreak),
				Config: map[string]any{"days": 7},
			},
			Actions: []ActionConfig{
				{
					Type: string(ActionAwardCredits),
					Config: map[string]any{
						"amount": 50,
						"reason": "7-day chore streak bonus",
					},
				},
				{
					Type: string(ActionSendNotification),
					Config: map[string]any{
						"recipients": []any{"all"},
						"title":      "Streak bonus!",
						"message":    "A 7-day chore streak just earned 50 bonus credits",
					},
				},
			},
		},
		{
			ID:          "screentime_warning",
			Name:        "Screen Time Warning",
			Description: "Notify parents when a member's screen time balance runs low",
			Category:    "screentime",
			Trigger: TriggerConfig{
				Type:   string(TriggerScreenTimeLow),
				Config: map[string]any{"thresholdMinutes": 30},
			},
			Actions: []ActionConfig{
				{
					Type: string(ActionSendNotification),
					Config: map[string]any{
						"recipients": []any{"parents"},
						"title":      "Screen time running low",
						"message":    "A member has less than 30 minutes of screen time left",
					},
				},
			},
		},
		{
			ID:          "medication_cooldown",
			Name:        "Medication Safety Lock",
			Description: "Lock a medication for 4 hours after a dose is given",
			Category:    "health",
			Trigger: TriggerConfig{
				Type:   string(TriggerMedicationGiven),
				Config: map[string]any{"anyMedication": true},
			},
			Actions: []ActionConfig{
				{
					Type: string(ActionLockMedication),
					Config: map[string]any{
						"medicationId": "from_event",
						"hours":        4,
					},
				},
			},
		},
		{
			ID:          "busy_day_meals",
			Name:        "Busy Day Easy Meals",
			Description: "Suggest easy meals when the calendar shows 4 or more events",
			Category:    "meals",
			Trigger: TriggerConfig{
				Type:   string(TriggerCalendarBusy),
				Config: map[string]any{"eventCount": 4},
			},
			Actions: []ActionConfig{
				{
					Type:   string(ActionSuggestMeal),
					Config: map[string]any{"difficulty": "EASY"},
				},
				{
					Type: string(ActionSendNotification),
					Config: map[string]any{
						"recipients": []any{"parents"},
						"title":      "Busy day ahead",
						"message":    "The calendar is packed, easy dinner ideas are ready",
					},
				},
			},
		},
		{
			ID:          "weekly_allowance",
			Name:        "Weekly Allowance",
			Description: "Award allowance credits every Sunday at midnight",
			Category:    "credits",
			Trigger: TriggerConfig{
				Type: string(TriggerTimeBased),
				Config: map[string]any{
					"cron":        "0 0 * * 0",
					"description": "Every Sunday at midnight",
				},
			},
			Actions: []ActionConfig{
				{
					Type: string(ActionAwardCredits),
					Config: map[string]any{
						"amount": 20,
						"reason": "Weekly allowance",
					},
				},
			},
		},
		{
			ID:          "restock_low_inventory",
			Name:        "Restock Low Inventory",
			Description: "Add household items to the shopping list when they run low",
			Category:    "inventory",
			Trigger: TriggerConfig{
				Type: string(TriggerInventoryLow),
				Config: map[string]any{
					"category":            "household",
					"thresholdPercentage": 25,
				},
			},
			Actions: []ActionConfig{
				{
					Type: string(ActionAddShoppingItem),
					Config: map[string]any{
						"fromInventory": true,
						"priority":      "NEEDED_SOON",
					},
				},
			},
		},
	}
}

// TemplateByID looks up one template.
func TemplateByID(id string) (RuleTemplate, bool) {
	for _, t := range BuiltinTemplates() {
		if t.ID == id {
			return t, true
		}
	}
	return RuleTemplate{}, false
}
