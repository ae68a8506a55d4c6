package rules

import (
	"context"
	"time"
)

// ExecutionRecorder persists the execution audit trail. Records are
// append-only; nothing updates a record after Record returns.
type ExecutionRecorder interface {
	// Record appends one execution record.
	Record(ctx context.Context, rec *ExecutionRecord) error

	// ListByRule returns a rule's records newest-first.
	ListByRule(ctx context.Context, ruleID string, limit, offset int) ([]*ExecutionRecord, error)

	// CountSince returns how many records for the rule were dispatched at or
	// after the cutoff. The dispatcher's rate limiter uses this.
	CountSince(ctx context.Context, ruleID string, cutoff time.Time) (int, error)

	// Stats summarizes a rule's history. Fired executions with at least one
	// failed action count as failures; so do error-status executions.
	Stats(ctx context.Context, ruleID string) (*ExecutionStats, error)

	// PruneBefore deletes records dispatched before the cutoff and returns
	// how many were removed.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
