package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/hearthkeep/homerules/rules"
)

// loggingCollaborators returns a collaborator bundle whose implementations
// log what they would do. The real family services live in other processes;
// this bundle stands in until their clients are wired here.
func loggingCollaborators(log *slog.Logger) rules.Collaborators {
	lc := &logCollab{log: log}
	return rules.Collaborators{
		Credits:    lc,
		Notifier:   lc,
		Shopping:   lc,
		Todos:      lc,
		Medication: lc,
		Meals:      lc,
		Chores:     lc,
		ScreenTime: lc,
	}
}

type logCollab struct {
	log *slog.Logger
}

func (c *logCollab) AwardCredits(ctx context.Context, familyID, memberID string, amount int, reason string) error {
	c.log.Info("award credits",
		"familyId", familyID, "memberId", memberID, "amount", amount, "reason", reason)
	return nil
}

func (c *logCollab) Notify(ctx context.Context, familyID string, recipients []string, title, message, actionURL string) error {
	c.log.Info("send notification",
		"familyId", familyID, "recipients", recipients, "title", title)
	return nil
}

func (c *logCollab) AddItem(ctx context.Context, familyID string, item rules.ShoppingItem) error {
	c.log.Info("add shopping item",
		"familyId", familyID, "item", item.Name, "quantity", item.Quantity, "priority", item.Priority)
	return nil
}

func (c *logCollab) CreateTodo(ctx context.Context, familyID string, todo rules.Todo) error {
	c.log.Info("create todo",
		"familyId", familyID, "title", todo.Title, "assignedTo", todo.AssignedToID)
	return nil
}

func (c *logCollab) LockMedication(ctx context.Context, familyID, medicationID string, duration time.Duration) error {
	c.log.Info("lock medication",
		"familyId", familyID, "medicationId", medicationID, "duration", duration.String())
	return nil
}

func (c *logCollab) SuggestMeal(ctx context.Context, familyID, difficulty, category string) error {
	c.log.Info("suggest meal",
		"familyId", familyID, "difficulty", difficulty, "category", category)
	return nil
}

func (c *logCollab) ReduceChores(ctx context.Context, familyID, memberID string, percentage, durationDays int) error {
	c.log.Info("reduce chores",
		"familyId", familyID, "memberId", memberID, "percentage", percentage, "days", durationDays)
	return nil
}

func (c *logCollab) AdjustScreenTime(ctx context.Context, familyID, memberID string, minutes int, reason string) error {
	c.log.Info("adjust screen time",
		"familyId", familyID, "memberId", memberID, "minutes", minutes, "reason", reason)
	return nil
}
