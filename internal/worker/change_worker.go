// Package worker consumes expense change events and drives the
// aggregation engine with them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"warikan/internal/aggregate"
	"warikan/internal/amqp"
	"warikan/internal/core"
)

// EngineEntry is the aggregation surface the worker dispatches to.
// *aggregate.Engine implements it.
type EngineEntry interface {
	OnExpenseCreated(ctx context.Context, tripID string, created core.Expense) error
	OnExpenseUpdated(ctx context.Context, tripID string, oldExpense, newExpense core.Expense) error
	OnExpenseDeleted(ctx context.Context, tripID string, deleted core.Expense) error
}

// ChangeWorker routes each expense change message to the matching engine
// entry point. Transient failures requeue the delivery; unrecoverable
// ones are acked so the queue does not loop on a message that can never
// succeed.
type ChangeWorker struct {
	engine EngineEntry
}

func NewChangeWorker(engine EngineEntry) *ChangeWorker {
	return &ChangeWorker{engine: engine}
}

// HandleMessage processes one expense change. A nil return acks the
// delivery; an error requeues it.
func (w *ChangeWorker) HandleMessage(ctx context.Context, msg *amqp.ExpenseChangeMessage) error {
	err := w.dispatch(ctx, msg)
	if err == nil {
		return nil
	}
	if aggregate.IsFatal(err) || errors.Is(err, errMalformed) {
		// Redelivery cannot heal a dangling expense; drop the message and
		// let the reconciler catch the totals up once the data is fixed.
		slog.ErrorContext(ctx, "Dropping unprocessable expense change",
			"trip_id", msg.TripID,
			"change", msg.Change,
			"error", err)
		return nil
	}
	return err
}

// errMalformed marks messages whose shape cannot be dispatched at all.
// Requeuing them would loop forever.
var errMalformed = errors.New("malformed change message")

func (w *ChangeWorker) dispatch(ctx context.Context, msg *amqp.ExpenseChangeMessage) error {
	switch msg.Change {
	case amqp.ChangeCreated:
		if msg.New == nil {
			return fmt.Errorf("%w: created without new state", errMalformed)
		}
		return w.engine.OnExpenseCreated(ctx, msg.TripID, msg.New.Expense())
	case amqp.ChangeUpdated:
		if msg.Old == nil || msg.New == nil {
			return fmt.Errorf("%w: updated without both states", errMalformed)
		}
		return w.engine.OnExpenseUpdated(ctx, msg.TripID, msg.Old.Expense(), msg.New.Expense())
	case amqp.ChangeDeleted:
		if msg.Old == nil {
			return fmt.Errorf("%w: deleted without old state", errMalformed)
		}
		return w.engine.OnExpenseDeleted(ctx, msg.TripID, msg.Old.Expense())
	default:
		return fmt.Errorf("%w: unknown change type %q", errMalformed, msg.Change)
	}
}
