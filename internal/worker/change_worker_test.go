package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"warikan/internal/aggregate"
	"warikan/internal/amqp"
	"warikan/internal/core"
)

type fakeEngine struct {
	created []core.Expense
	updated [][2]core.Expense
	deleted []core.Expense
	fail    error
}

func (e *fakeEngine) OnExpenseCreated(ctx context.Context, tripID string, created core.Expense) error {
	if e.fail != nil {
		return e.fail
	}
	e.created = append(e.created, created)
	return nil
}

func (e *fakeEngine) OnExpenseUpdated(ctx context.Context, tripID string, oldExpense, newExpense core.Expense) error {
	if e.fail != nil {
		return e.fail
	}
	e.updated = append(e.updated, [2]core.Expense{oldExpense, newExpense})
	return nil
}

func (e *fakeEngine) OnExpenseDeleted(ctx context.Context, tripID string, deleted core.Expense) error {
	if e.fail != nil {
		return e.fail
	}
	e.deleted = append(e.deleted, deleted)
	return nil
}

func workerExpense(total float64) core.Expense {
	return core.Expense{
		ID:                  "e1",
		TripID:              "trip-1",
		Description:         "Taxi",
		GrandTotal:          total,
		PaidByMemberID:      "alice",
		SharedWithMemberIDs: []string{"alice", "bob"},
		Enabled:             true,
	}
}

func TestChangeWorker_Dispatch(t *testing.T) {
	engine := &fakeEngine{}
	w := NewChangeWorker(engine)
	ctx := context.Background()

	oldExpense := workerExpense(30)
	newExpense := workerExpense(45)

	msg := amqp.NewExpenseChangeMessage("trip-1", amqp.ChangeCreated, nil, &newExpense)
	if err := w.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("created: %v", err)
	}
	if len(engine.created) != 1 || engine.created[0].GrandTotal != 45 {
		t.Errorf("created dispatch: %+v", engine.created)
	}

	msg = amqp.NewExpenseChangeMessage("trip-1", amqp.ChangeUpdated, &oldExpense, &newExpense)
	if err := w.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("updated: %v", err)
	}
	if len(engine.updated) != 1 ||
		engine.updated[0][0].GrandTotal != 30 ||
		engine.updated[0][1].GrandTotal != 45 {
		t.Errorf("updated dispatch: %+v", engine.updated)
	}

	msg = amqp.NewExpenseChangeMessage("trip-1", amqp.ChangeDeleted, &oldExpense, nil)
	if err := w.HandleMessage(ctx, msg); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if len(engine.deleted) != 1 || engine.deleted[0].GrandTotal != 30 {
		t.Errorf("deleted dispatch: %+v", engine.deleted)
	}
}

func TestChangeWorker_TransientErrorRequeues(t *testing.T) {
	engine := &fakeEngine{fail: errors.New("database is locked")}
	w := NewChangeWorker(engine)

	e := workerExpense(30)
	msg := amqp.NewExpenseChangeMessage("trip-1", amqp.ChangeCreated, nil, &e)
	if err := w.HandleMessage(context.Background(), msg); err == nil {
		t.Error("transient failure must propagate so the delivery requeues")
	}
}

func TestChangeWorker_FatalErrorAcks(t *testing.T) {
	engine := &fakeEngine{
		fail: fmt.Errorf("trip trip-1: %w", aggregate.ErrMissingParent),
	}
	w := NewChangeWorker(engine)

	e := workerExpense(30)
	msg := amqp.NewExpenseChangeMessage("trip-1", amqp.ChangeCreated, nil, &e)
	if err := w.HandleMessage(context.Background(), msg); err != nil {
		t.Errorf("unrecoverable failure must be swallowed, got %v", err)
	}
}

func TestChangeWorker_MalformedMessageAcks(t *testing.T) {
	engine := &fakeEngine{}
	w := NewChangeWorker(engine)
	ctx := context.Background()

	cases := []*amqp.ExpenseChangeMessage{
		{TripID: "trip-1", Change: amqp.ChangeCreated},               // no new state
		{TripID: "trip-1", Change: amqp.ChangeUpdated},               // no states at all
		{TripID: "trip-1", Change: amqp.ChangeDeleted},               // no old state
		{TripID: "trip-1", Change: amqp.ChangeType("materialized")},  // unknown type
	}
	for _, msg := range cases {
		if err := w.HandleMessage(ctx, msg); err != nil {
			t.Errorf("change %q: malformed message must be swallowed, got %v", msg.Change, err)
		}
	}
	if len(engine.created)+len(engine.updated)+len(engine.deleted) != 0 {
		t.Error("malformed messages must not reach the engine")
	}
}
