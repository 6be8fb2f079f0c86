// Package aggregate keeps the cached trip totals and per-member spending
// consistent with the expense set. It reacts to expense lifecycle events
// (created, updated, deleted), computes the delta each event implies, and
// applies it through one storage transaction per event.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"warikan/internal/core"
)

// TripView is the state an engine callback computes its delta from. The
// store re-reads it fresh on every transaction attempt, so a retried
// callback never replays a delta computed against stale state.
type TripView struct {
	TotalExpenses         float64
	EnabledTotalExpenses  float64
	DisabledTotalExpenses float64
	ExpenseCount          int64
	MemberIDs             []string
}

// Delta is the change one expense event applies to a trip's cached
// aggregates. Spending maps member id to a signed increment.
type Delta struct {
	Total    float64
	Enabled  float64
	Disabled float64
	Count    int64
	Spending map[string]float64
}

// IsZero reports whether applying the delta would change nothing.
func (d Delta) IsZero() bool {
	if d.Total != 0 || d.Enabled != 0 || d.Disabled != 0 || d.Count != 0 {
		return false
	}
	for _, v := range d.Spending {
		if v != 0 {
			return false
		}
	}
	return true
}

// DeltaFunc computes a delta from the current trip state. Returning a zero
// delta aborts the transaction without writing.
type DeltaFunc func(view TripView) (Delta, error)

// Store applies deltas transactionally. Implementations must re-invoke fn
// with a fresh view when the transaction aborts on a concurrency conflict,
// retry a bounded number of times, and surface core-data errors (missing
// trip or member) without retrying.
type Store interface {
	ApplyTripDelta(ctx context.Context, tripID string, fn DeltaFunc) error
}

// Engine is the aggregation engine. One instance serves all trips; each
// event is handled independently and serializes on the trip row through
// the store's transaction.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// OnExpenseCreated folds a newly created expense into the trip aggregates.
// Expenses still awaiting receipt analysis are ignored; their impact is
// added when they settle.
func (e *Engine) OnExpenseCreated(ctx context.Context, tripID string, created core.Expense) error {
	return e.react(ctx, tripID, created.ID, nil, &created)
}

// OnExpenseUpdated folds an expense change into the trip aggregates,
// including settling (processing to settled) and re-analysis (settled back
// to processing).
func (e *Engine) OnExpenseUpdated(ctx context.Context, tripID string, oldExpense, newExpense core.Expense) error {
	return e.react(ctx, tripID, newExpense.ID, &oldExpense, &newExpense)
}

// OnExpenseDeleted removes a deleted expense's impact from the trip
// aggregates. Deleting an expense that never settled is a no-op.
func (e *Engine) OnExpenseDeleted(ctx context.Context, tripID string, deleted core.Expense) error {
	return e.react(ctx, tripID, deleted.ID, &deleted, nil)
}

func (e *Engine) react(ctx context.Context, tripID, expenseID string, oldExpense, newExpense *core.Expense) error {
	change := classify(oldExpense, newExpense)
	if change == changeNone {
		slog.DebugContext(ctx, "Expense event needs no aggregation",
			"trip_id", tripID, "expense_id", expenseID)
		return nil
	}

	err := e.store.ApplyTripDelta(ctx, tripID, func(view TripView) (Delta, error) {
		return computeDelta(change, oldExpense, newExpense, view.MemberIDs), nil
	})
	if err != nil {
		// A dangling expense cannot be healed by retrying; surface it for
		// operators and leave the expense write itself untouched.
		slog.ErrorContext(ctx, "Aggregation failed",
			"trip_id", tripID,
			"expense_id", expenseID,
			"change", change.String(),
			"error", err)
		return fmt.Errorf("apply %s for expense %s: %w", change, expenseID, err)
	}

	slog.InfoContext(ctx, "Trip aggregates updated",
		"trip_id", tripID,
		"expense_id", expenseID,
		"change", change.String())
	return nil
}

// IsFatal reports whether an aggregation error is unrecoverable, meaning a
// redelivery of the same event cannot succeed either.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMissingParent)
}

// ErrMissingParent marks the data-integrity failure class: the trip or a
// member named by the expense does not exist. Stores wrap their own
// not-found errors with it.
var ErrMissingParent = errors.New("aggregation parent record missing")
