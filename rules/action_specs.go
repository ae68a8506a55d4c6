package rules

// Action variants. Each is the typed form of one action kind's config object.
// Field names follow the wire format rules are stored with.

// AwardCreditsAction credits a member's balance. MemberID defaults to the
// triggering member from the event context when empty.
type AwardCreditsAction struct {
	Amount   int    `json:"amount"`
	MemberID string `json:"memberId,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (a *AwardCreditsAction) Kind() ActionKind { return ActionAwardCredits }

// SendNotificationAction pushes a notification to the named recipients.
// Recipients may be member ids or the aliases "all", "parents", "child".
type SendNotificationAction struct {
	Recipients []string `json:"recipients"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	ActionURL  string   `json:"actionUrl,omitempty"`
}

func (a *SendNotificationAction) Kind() ActionKind { return ActionSendNotification }

// AddShoppingItemAction appends an item to the family shopping list.
// FromInventory populates the item from the low inventory item in context.
type AddShoppingItemAction struct {
	ItemName      string `json:"itemName,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	Category      string `json:"category,omitempty"`
	Priority      string `json:"priority,omitempty"` // NORMAL, NEEDED_SOON, URGENT
	FromInventory bool   `json:"fromInventory,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func (a *AddShoppingItemAction) Kind() ActionKind { return ActionAddShoppingItem }

// CreateTodoAction creates a todo item, optionally assigned and dated.
type CreateTodoAction struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	AssignedToID string `json:"assignedToId,omitempty"`
	DueDate      string `json:"dueDate,omitempty"`
	Priority     string `json:"priority,omitempty"` // LOW, MEDIUM, HIGH, URGENT
	Category     string `json:"category,omitempty"`
}

func (a *CreateTodoAction) Kind() ActionKind { return ActionCreateTodo }

// LockMedicationAction starts a medication safety timer.
type LockMedicationAction struct {
	MedicationID string `json:"medicationId"`
	Hours        int    `json:"hours"`
}

func (a *LockMedicationAction) Kind() ActionKind { return ActionLockMedication }

// SuggestMealAction asks the meal planner for suggestions. Both fields are
// optional; an empty config means "suggest anything".
type SuggestMealAction struct {
	Difficulty string `json:"difficulty,omitempty"` // EASY, MEDIUM, HARD
	Category   string `json:"category,omitempty"`
}

func (a *SuggestMealAction) Kind() ActionKind { return ActionSuggestMeal }

// ReduceChoresAction temporarily reduces a member's chore load.
type ReduceChoresAction struct {
	MemberID   string `json:"memberId"`
	Percentage int    `json:"percentage"`
	Duration   int    `json:"duration"` // days
}

func (a *ReduceChoresAction) Kind() ActionKind { return ActionReduceChores }

// AdjustScreenTimeAction adds to or subtracts from a member's screen time.
type AdjustScreenTimeAction struct {
	MemberID      string `json:"memberId"`
	AmountMinutes int    `json:"amountMinutes"`
	Reason        string `json:"reason,omitempty"`
}

func (a *AdjustScreenTimeAction) Kind() ActionKind { return ActionAdjustScreenTime }
