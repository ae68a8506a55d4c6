package rules

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Collaborator interfaces. The executor drives the family services through
// these; the server wires real implementations, tests wire fakes.

// CreditLedger adjusts member credit balances.
type CreditLedger interface {
	AwardCredits(ctx context.Context, familyID, memberID string, amount int, reason string) error
}

// Notifier delivers notifications to members or recipient aliases.
type Notifier interface {
	Notify(ctx context.Context, familyID string, recipients []string, title, message, actionURL string) error
}

// ShoppingList appends items to the family shopping list.
type ShoppingList interface {
	AddItem(ctx context.Context, familyID string, item ShoppingItem) error
}

// ShoppingItem is one entry appended to a shopping list.
type ShoppingItem struct {
	Name     string
	Quantity int
	Category string
	Priority string
	Notes    string
}

// TodoList creates todo items.
type TodoList interface {
	CreateTodo(ctx context.Context, familyID string, todo Todo) error
}

// Todo is one created todo item.
type Todo struct {
	Title        string
	Description  string
	AssignedToID string
	DueDate      string
	Priority     string
	Category     string
}

// MedicationLocker starts medication safety timers.
type MedicationLocker interface {
	LockMedication(ctx context.Context, familyID, medicationID string, duration time.Duration) error
}

// MealPlanner produces meal suggestions.
type MealPlanner interface {
	SuggestMeal(ctx context.Context, familyID, difficulty, category string) error
}

// ChorePlanner applies temporary chore load reductions.
type ChorePlanner interface {
	ReduceChores(ctx context.Context, familyID, memberID string, percentage, durationDays int) error
}

// ScreenTimeManager adjusts member screen time balances.
type ScreenTimeManager interface {
	AdjustScreenTime(ctx context.Context, familyID, memberID string, minutes int, reason string) error
}

// Collaborators bundles the services the executor can drive. Nil entries are
// allowed; executing an action whose collaborator is missing fails that
// action without aborting the rest.
type Collaborators struct {
	Credits    CreditLedger
	Notifier   Notifier
	Shopping   ShoppingList
	Todos      TodoList
	Medication MedicationLocker
	Meals      MealPlanner
	Chores     ChorePlanner
	ScreenTime ScreenTimeManager
}

// DefaultActionTimeout bounds a single action's execution.
const DefaultActionTimeout = 10 * time.Second

// Executor runs a rule's action list in order, best effort. One action
// failing, timing out, or panicking never stops the ones after it; the
// outcome slice records what happened at each index.
type Executor struct {
	collab  Collaborators
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor returns an executor over the given collaborators.
func NewExecutor(collab Collaborators, logger *slog.Logger) *Executor {
	return &Executor{collab: collab, timeout: DefaultActionTimeout, logger: logger}
}

// WithTimeout overrides the per-action timeout.
func (e *Executor) WithTimeout(d time.Duration) *Executor {
	e.timeout = d
	return e
}

// Execute runs actions in order against the event and returns one outcome
// per action, in the same order.
func (e *Executor) Execute(ctx context.Context, ev Event, actions []Action) []ActionOutcome {
	outcomes := make([]ActionOutcome, 0, len(actions))
	for i, action := range actions {
		outcome := ActionOutcome{ActionIndex: i, Kind: action.Kind(), Status: OutcomeSuccess}
		if err := e.runOne(ctx, ev, action); err != nil {
			outcome.Status = OutcomeFailed
			outcome.Error = err.Error()
			e.logger.Warn("action failed",
				"familyId", ev.FamilyID,
				"ruleId", ev.RuleID,
				"actionIndex", i,
				"actionKind", string(action.Kind()),
				"error", err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// runOne executes a single action under the per-action timeout, converting
// panics into errors.
func (e *Executor) runOne(ctx context.Context, ev Event, action Action) error {
	actionCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("action panicked: %v", r)
			}
		}()
		done <- e.apply(actionCtx, ev, action)
	}()

	select {
	case err := <-done:
		return err
	case <-actionCtx.Done():
		return fmt.Errorf("action timed out after %s", e.timeout)
	}
}

func (e *Executor) apply(ctx context.Context, ev Event, action Action) error {
	switch a := action.(type) {
	case *AwardCreditsAction:
		if e.collab.Credits == nil {
			return fmt.Errorf("no credit ledger configured")
		}
		memberID := a.MemberID
		if memberID == "" {
			memberID, _ = ctxString(ev.Context, "memberId")
		}
		if memberID == "" {
			return fmt.Errorf("no member to award credits to")
		}
		return e.collab.Credits.AwardCredits(ctx, ev.FamilyID, memberID, a.Amount, a.Reason)

	case *SendNotificationAction:
		if e.collab.Notifier == nil {
			return fmt.Errorf("no notifier configured")
		}
		return e.collab.Notifier.Notify(ctx, ev.FamilyID, a.Recipients, a.Title, a.Message, a.ActionURL)

	case *AddShoppingItemAction:
		if e.collab.Shopping == nil {
			return fmt.Errorf("no shopping list configured")
		}
		item := ShoppingItem{
			Name:     a.ItemName,
			Quantity: a.Quantity,
			Category: a.Category,
			Priority: a.Priority,
			Notes:    a.Notes,
		}
		if a.FromInventory {
			if name, _ := ctxString(ev.Context, "itemName"); name != "" {
				item.Name = name
			}
			if item.Category == "" {
				item.Category, _ = ctxString(ev.Context, "category")
			}
		}
		if item.Name == "" {
			return fmt.Errorf("no item name resolved for shopping item")
		}
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		if item.Priority == "" {
			item.Priority = "NORMAL"
		}
		return e.collab.Shopping.AddItem(ctx, ev.FamilyID, item)

	case *CreateTodoAction:
		if e.collab.Todos == nil {
			return fmt.Errorf("no todo list configured")
		}
		return e.collab.Todos.CreateTodo(ctx, ev.FamilyID, Todo{
			Title:        a.Title,
			Description:  a.Description,
			AssignedToID: a.AssignedToID,
			DueDate:      a.DueDate,
			Priority:     a.Priority,
			Category:     a.Category,
		})

	case *LockMedicationAction:
		if e.collab.Medication == nil {
			return fmt.Errorf("no medication locker configured")
		}
		medicationID := a.MedicationID
		if medicationID == "" {
			medicationID, _ = ctxString(ev.Context, "medicationId")
		}
		if medicationID == "" {
			return fmt.Errorf("no medication to lock")
		}
		return e.collab.Medication.LockMedication(ctx, ev.FamilyID, medicationID, time.Duration(a.Hours)*time.Hour)

	case *SuggestMealAction:
		if e.collab.Meals == nil {
			return fmt.Errorf("no meal planner configured")
		}
		return e.collab.Meals.SuggestMeal(ctx, ev.FamilyID, a.Difficulty, a.Category)

	case *ReduceChoresAction:
		if e.collab.Chores == nil {
			return fmt.Errorf("no chore planner configured")
		}
		return e.collab.Chores.ReduceChores(ctx, ev.FamilyID, a.MemberID, a.Percentage, a.Duration)

	case *AdjustScreenTimeAction:
		if e.collab.ScreenTime == nil {
			return fmt.Errorf("no screen time manager configured")
		}
		memberID := a.MemberID
		if memberID == "" {
			memberID, _ = ctxString(ev.Context, "memberId")
		}
		if memberID == "" {
			return fmt.Errorf("no member to adjust screen time for")
		}
		return e.collab.ScreenTime.AdjustScreenTime(ctx, ev.FamilyID, memberID, a.AmountMinutes, a.Reason)
	}
	return fmt.Errorf("unhandled action kind %s", action.Kind())
}
