package aggregate

import (
	"slices"

	"warikan/internal/core"
)

// changeKind is the explicit transition table over (old, new) expense
// pairs. The processing flag hides an implicit state machine; spelling the
// transitions out keeps the edge cases (delete-while-processing,
// re-analysis) from being missed.
type changeKind int

const (
	// changeNone: nothing was ever counted and nothing needs counting.
	// Covers processing creates, processing deletes, updates between two
	// processing states, and settled updates that touch no counted field.
	changeNone changeKind = iota
	// changeFullAdd: the expense's full impact enters the aggregates.
	// Covers settled creates and the processing-to-settled transition.
	changeFullAdd
	// changeFullRemove: the expense's full impact leaves the aggregates.
	// Covers settled deletes and the settled-to-processing transition
	// (re-analysis), so the later settle cannot double-count.
	changeFullRemove
	// changeDelta: the expense stays settled and its counted fields
	// changed; only the difference is applied.
	changeDelta
)

func (c changeKind) String() string {
	switch c {
	case changeFullAdd:
		return "full add"
	case changeFullRemove:
		return "full remove"
	case changeDelta:
		return "delta"
	default:
		return "no-op"
	}
}

func classify(oldExpense, newExpense *core.Expense) changeKind {
	switch {
	case oldExpense == nil && newExpense == nil:
		return changeNone
	case oldExpense == nil:
		if newExpense.Status() == core.StatusSettled {
			return changeFullAdd
		}
		return changeNone
	case newExpense == nil:
		if oldExpense.Status() == core.StatusSettled {
			return changeFullRemove
		}
		return changeNone
	}

	oldSettled := oldExpense.Status() == core.StatusSettled
	newSettled := newExpense.Status() == core.StatusSettled
	switch {
	case !oldSettled && newSettled:
		return changeFullAdd
	case oldSettled && !newSettled:
		return changeFullRemove
	case !oldSettled && !newSettled:
		return changeNone
	}

	if !countedFieldsChanged(*oldExpense, *newExpense) {
		return changeNone
	}
	return changeDelta
}

// countedFieldsChanged reports whether an update touched anything the
// aggregates depend on. Description, category and other payload edits must
// not open a transaction at all.
func countedFieldsChanged(oldExpense, newExpense core.Expense) bool {
	return oldExpense.GrandTotal != newExpense.GrandTotal ||
		oldExpense.Enabled != newExpense.Enabled ||
		!slices.Equal(oldExpense.SharedWithMemberIDs, newExpense.SharedWithMemberIDs) ||
		!itemsEqual(oldExpense.Items, newExpense.Items)
}

func itemsEqual(a, b []core.ExpenseItem) bool {
	return slices.EqualFunc(a, b, func(x, y core.ExpenseItem) bool {
		return x.Name == y.Name &&
			x.Price == y.Price &&
			x.Quantity == y.Quantity &&
			slices.Equal(x.SharedByMemberIDs, y.SharedByMemberIDs)
	})
}

// spendingContribution is what one expense adds to member spending: its
// allocation when it is settled and enabled, nothing otherwise. Disabled
// expenses stay in the trip totals (disabled bucket) but contribute zero
// spending.
func spendingContribution(e core.Expense, memberIDs []string) map[string]float64 {
	if e.Status() != core.StatusSettled || !e.Enabled {
		return nil
	}
	return core.Allocate(e, memberIDs)
}

func bucketAmount(e core.Expense, enabled bool) float64 {
	if e.Enabled == enabled {
		return e.GrandTotal
	}
	return 0
}

func computeDelta(change changeKind, oldExpense, newExpense *core.Expense, memberIDs []string) Delta {
	switch change {
	case changeFullAdd:
		return fullImpact(*newExpense, memberIDs, +1)
	case changeFullRemove:
		return fullImpact(*oldExpense, memberIDs, -1)
	case changeDelta:
		return diffImpact(*oldExpense, *newExpense, memberIDs)
	default:
		return Delta{}
	}
}

func fullImpact(e core.Expense, memberIDs []string, sign float64) Delta {
	d := Delta{
		Total:    sign * e.GrandTotal,
		Enabled:  sign * bucketAmount(e, true),
		Disabled: sign * bucketAmount(e, false),
		Count:    int64(sign),
		Spending: make(map[string]float64),
	}
	for id, amount := range spendingContribution(e, memberIDs) {
		d.Spending[id] = sign * amount
	}
	return d
}

// diffImpact applies the "old amount fully removed, new amount fully added
// to the correct bucket" rule: toggling the enabled flag moves the whole
// grand total between buckets while the overall total and the expense
// count stay put.
func diffImpact(oldExpense, newExpense core.Expense, memberIDs []string) Delta {
	d := Delta{
		Total:    newExpense.GrandTotal - oldExpense.GrandTotal,
		Enabled:  bucketAmount(newExpense, true) - bucketAmount(oldExpense, true),
		Disabled: bucketAmount(newExpense, false) - bucketAmount(oldExpense, false),
		Spending: make(map[string]float64),
	}
	for id, amount := range spendingContribution(newExpense, memberIDs) {
		d.Spending[id] += amount
	}
	for id, amount := range spendingContribution(oldExpense, memberIDs) {
		d.Spending[id] -= amount
	}
	for id, amount := range d.Spending {
		if amount == 0 {
			delete(d.Spending, id)
		}
	}
	return d
}
