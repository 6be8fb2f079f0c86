package core

import (
	"math"
	"testing"
)

const tolerance = 1e-6

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < tolerance
}

func TestAllocate_EqualSplitWithoutItems(t *testing.T) {
	e := Expense{
		GrandTotal:          150,
		SharedWithMemberIDs: []string{"alice", "bob", "charlie"},
	}
	shares := Allocate(e, []string{"alice", "bob", "charlie"})

	for _, id := range []string{"alice", "bob", "charlie"} {
		if !almostEqual(shares[id], 50) {
			t.Errorf("share[%s] = %v, want 50", id, shares[id])
		}
	}
}

func TestAllocate_EmptyShareListAllocatesNothing(t *testing.T) {
	e := Expense{GrandTotal: 100}
	shares := Allocate(e, []string{"alice", "bob"})
	if len(shares) != 0 {
		t.Errorf("expected empty allocation, got %v", shares)
	}
}

func TestAllocate_ProportionalItemSharing(t *testing.T) {
	// Items fix proportions only: the 60/40 items decide how the grand
	// total of 100 splits, and the unrestricted 40 item spreads across the
	// whole expense share list.
	e := Expense{
		GrandTotal:          100,
		SharedWithMemberIDs: []string{"alice", "bob", "charlie"},
		Items: []ExpenseItem{
			{Name: "pizza", Price: 60, Quantity: 1, SharedByMemberIDs: []string{"alice", "bob"}},
			{Name: "drinks", Price: 40, Quantity: 1},
		},
	}
	all := []string{"alice", "bob", "charlie"}
	shares := Allocate(e, all)

	want := map[string]float64{
		"alice":   100 * (30 + 40.0/3) / 100,
		"bob":     100 * (30 + 40.0/3) / 100,
		"charlie": 100 * (40.0 / 3) / 100,
	}
	for id, w := range want {
		if !almostEqual(shares[id], w) {
			t.Errorf("share[%s] = %v, want %v", id, shares[id], w)
		}
	}
	if !almostEqual(shares["alice"], 43.333333) || !almostEqual(shares["charlie"], 13.333333) {
		t.Errorf("expected 43.33/43.33/13.33 split, got %v", shares)
	}
}

func TestAllocate_QuantityDefaultsToOne(t *testing.T) {
	e := Expense{
		GrandTotal:          20,
		SharedWithMemberIDs: []string{"alice", "bob"},
		Items: []ExpenseItem{
			{Name: "onigiri", Price: 5, Quantity: 4, SharedByMemberIDs: []string{"alice", "bob"}},
		},
	}
	shares := Allocate(e, []string{"alice", "bob"})
	if !almostEqual(shares["alice"], 10) || !almostEqual(shares["bob"], 10) {
		t.Errorf("expected 10/10 split, got %v", shares)
	}

	// Quantity 0 behaves as quantity 1.
	e.Items[0].Quantity = 0
	e.GrandTotal = 5
	shares = Allocate(e, []string{"alice", "bob"})
	if !almostEqual(shares["alice"], 2.5) || !almostEqual(shares["bob"], 2.5) {
		t.Errorf("expected 2.5/2.5 split, got %v", shares)
	}
}

func TestAllocate_ItemSharingIntersectsExpenseSharing(t *testing.T) {
	// charlie is named on the item but removed from the expense-level
	// share list, so charlie does not participate.
	e := Expense{
		GrandTotal:          90,
		SharedWithMemberIDs: []string{"alice", "bob"},
		Items: []ExpenseItem{
			{Name: "sushi", Price: 90, SharedByMemberIDs: []string{"alice", "bob", "charlie"}},
		},
	}
	shares := Allocate(e, []string{"alice", "bob", "charlie"})
	if !almostEqual(shares["alice"], 45) || !almostEqual(shares["bob"], 45) {
		t.Errorf("expected 45/45, got %v", shares)
	}
	if shares["charlie"] != 0 {
		t.Errorf("charlie should get nothing, got %v", shares["charlie"])
	}
}

func TestAllocate_EmptyItemSharingSetIsSkipped(t *testing.T) {
	// The item override names only members outside the expense share
	// list: the resolved set is empty and the item contributes to nobody,
	// but the other item still determines the full proportion base.
	e := Expense{
		GrandTotal:          100,
		SharedWithMemberIDs: []string{"alice", "bob"},
		Items: []ExpenseItem{
			{Name: "beer", Price: 50, SharedByMemberIDs: []string{"dave"}},
			{Name: "tea", Price: 50, SharedByMemberIDs: []string{"alice"}},
		},
	}
	shares := Allocate(e, []string{"alice", "bob"})
	if !almostEqual(shares["alice"], 50) {
		t.Errorf("share[alice] = %v, want 50", shares["alice"])
	}
	if shares["bob"] != 0 || shares["dave"] != 0 {
		t.Errorf("bob and dave should get nothing, got %v", shares)
	}
}

func TestAllocate_RosterFallbackWhenExpenseUnrestricted(t *testing.T) {
	// No expense-level share list at all: items without overrides fall
	// back to the full member roster.
	e := Expense{
		GrandTotal: 30,
		Items: []ExpenseItem{
			{Name: "taxi", Price: 30},
		},
	}
	shares := Allocate(e, []string{"alice", "bob", "charlie"})
	for _, id := range []string{"alice", "bob", "charlie"} {
		if !almostEqual(shares[id], 10) {
			t.Errorf("share[%s] = %v, want 10", id, shares[id])
		}
	}
}

func TestAllocate_ZeroItemsTotalFallsBackToEqualSplit(t *testing.T) {
	e := Expense{
		GrandTotal:          60,
		SharedWithMemberIDs: []string{"alice", "bob", "charlie"},
		Items: []ExpenseItem{
			{Name: "mystery", Price: 0},
			{Name: "freebie", Price: 0, Quantity: 3},
		},
	}
	shares := Allocate(e, []string{"alice", "bob", "charlie"})
	for _, id := range []string{"alice", "bob", "charlie"} {
		if !almostEqual(shares[id], 20) {
			t.Errorf("share[%s] = %v, want 20", id, shares[id])
		}
	}
}

func TestAllocate_SharesSumToGrandTotal(t *testing.T) {
	// The grand total includes un-itemized tax, so item prices do not sum
	// to it; the allocation still must.
	cases := []struct {
		name string
		e    Expense
	}{
		{
			name: "items with tax gap",
			e: Expense{
				GrandTotal:          110,
				SharedWithMemberIDs: []string{"a", "b", "c"},
				Items: []ExpenseItem{
					{Name: "ramen", Price: 55, SharedByMemberIDs: []string{"a"}},
					{Name: "gyoza", Price: 25, SharedByMemberIDs: []string{"b", "c"}},
					{Name: "rice", Price: 20},
				},
			},
		},
		{
			name: "plain split",
			e: Expense{
				GrandTotal:          99.99,
				SharedWithMemberIDs: []string{"a", "b", "c"},
			},
		},
		{
			name: "quantities",
			e: Expense{
				GrandTotal:          123.45,
				SharedWithMemberIDs: []string{"a", "b"},
				Items: []ExpenseItem{
					{Name: "coffee", Price: 4.5, Quantity: 3, SharedByMemberIDs: []string{"a"}},
					{Name: "cake", Price: 6.25, Quantity: 2},
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shares := Allocate(tc.e, []string{"a", "b", "c"})
			var sum float64
			for _, v := range shares {
				sum += v
			}
			if !almostEqual(sum, tc.e.GrandTotal) {
				t.Errorf("shares sum to %v, want %v", sum, tc.e.GrandTotal)
			}
		})
	}
}
