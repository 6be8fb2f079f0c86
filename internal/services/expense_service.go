// Package services orchestrates the domain operations: persisting expense
// writes and fanning their lifecycle events out to the aggregation worker,
// resolving balances on demand, and reconciling cached totals.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"warikan/internal/amqp"
	"warikan/internal/core"
)

// ExpenseStore is the slice of storage the expense service needs.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	DeleteExpense(ctx context.Context, tripID, expenseID string) (core.Expense, error)
	GetExpense(ctx context.Context, tripID, expenseID string) (core.Expense, error)
	ListExpenses(ctx context.Context, tripID string) ([]core.Expense, error)
}

// ChangePublisher fans expense lifecycle events out to the aggregation
// worker. *amqp.Client implements it.
type ChangePublisher interface {
	PublishExpenseChange(ctx context.Context, msg *amqp.ExpenseChangeMessage) error
}

// ExpenseService persists expense writes and publishes the matching
// change events. Publishing is best-effort: the expense write has already
// succeeded, and a missed event only delays totals until the reconciler's
// next pass.
type ExpenseService struct {
	storage   ExpenseStore
	publisher ChangePublisher
}

func NewExpenseService(storage ExpenseStore, publisher ChangePublisher) *ExpenseService {
	return &ExpenseService{
		storage:   storage,
		publisher: publisher,
	}
}

// CreateExpense stores a new expense and announces it. Placeholder
// expenses still awaiting receipt analysis skip field validation; they
// are validated when the analysis settles them via UpdateExpense.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if !e.IsProcessing {
		if err := e.Validate(); err != nil {
			return core.Expense{}, fmt.Errorf("validate expense: %w", err)
		}
	}

	created, err := s.storage.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.publish(ctx, amqp.NewExpenseChangeMessage(created.TripID, amqp.ChangeCreated, nil, &created))
	return created, nil
}

// UpdateExpense overwrites an expense and announces the old and new
// states together, so the worker can compute the delta without re-reading
// a row that may have moved on.
func (s *ExpenseService) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if !e.IsProcessing {
		if err := e.Validate(); err != nil {
			return core.Expense{}, fmt.Errorf("validate expense: %w", err)
		}
	}

	old, err := s.storage.UpdateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}

	s.publish(ctx, amqp.NewExpenseChangeMessage(e.TripID, amqp.ChangeUpdated, &old, &e))
	return old, nil
}

// DeleteExpense removes an expense and announces its last stored state.
func (s *ExpenseService) DeleteExpense(ctx context.Context, tripID, expenseID string) error {
	old, err := s.storage.DeleteExpense(ctx, tripID, expenseID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.publish(ctx, amqp.NewExpenseChangeMessage(tripID, amqp.ChangeDeleted, &old, nil))
	return nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, tripID, expenseID string) (core.Expense, error) {
	return s.storage.GetExpense(ctx, tripID, expenseID)
}

func (s *ExpenseService) ListExpenses(ctx context.Context, tripID string) ([]core.Expense, error) {
	return s.storage.ListExpenses(ctx, tripID)
}

func (s *ExpenseService) publish(ctx context.Context, msg *amqp.ExpenseChangeMessage) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Change publisher not available, skipping event",
			"trip_id", msg.TripID, "change", msg.Change)
		return
	}
	if err := s.publisher.PublishExpenseChange(ctx, msg); err != nil {
		// Don't fail the request - the write succeeded and the reconciler
		// will catch the totals up.
		slog.ErrorContext(ctx, "Failed to publish expense change",
			"trip_id", msg.TripID, "change", msg.Change, "error", err)
	}
}
