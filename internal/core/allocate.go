// Package core holds the trip ledger domain model and the pure arithmetic
// that turns expenses into per-member allocations and balances.
//
// This file implements the spending allocator: given one expense, how much
// of its grand total does each member consume. Items determine proportions
// only; the money allocated always sums to the grand total, so tax and tip
// that were never itemized are distributed proportionally.
package core

// sharingSet resolves which members split one item. An item-level override
// is intersected with the expense-level share list; a member named on the
// item but removed from the expense does not participate. Without an
// override the item falls back to the expense share list, and when the
// expense declares no restriction at all, to the full roster.
func sharingSet(it ExpenseItem, e Expense, allMemberIDs []string) []string {
	if len(it.SharedByMemberIDs) > 0 {
		if len(e.SharedWithMemberIDs) == 0 {
			return it.SharedByMemberIDs
		}
		shared := make([]string, 0, len(it.SharedByMemberIDs))
		for _, id := range it.SharedByMemberIDs {
			if containsID(e.SharedWithMemberIDs, id) {
				shared = append(shared, id)
			}
		}
		return shared
	}
	if len(e.SharedWithMemberIDs) > 0 {
		return e.SharedWithMemberIDs
	}
	return allMemberIDs
}

// Allocate returns each member's monetary share of one expense.
//
// With items present and priced, each member's share of the item subtotal
// determines their proportion of the grand total. Items whose sharing set
// resolves to empty contribute to nobody. Without usable items the grand
// total splits evenly across the expense share list; an empty share list
// allocates nothing to anyone.
//
// Allocate is purely arithmetic: it does not look at Enabled or
// IsProcessing. Callers decide whether an expense participates at all.
func Allocate(e Expense, allMemberIDs []string) map[string]float64 {
	shares := make(map[string]float64)

	itemsTotal := e.ItemsTotal()
	if len(e.Items) > 0 && itemsTotal > 0 {
		for _, it := range e.Items {
			members := sharingSet(it, e, allMemberIDs)
			if len(members) == 0 {
				continue
			}
			perMember := it.Total() / float64(len(members))
			for _, id := range members {
				shares[id] += perMember
			}
		}
		// Items fix the proportions; the grand total fixes the money.
		for id, itemShare := range shares {
			shares[id] = e.GrandTotal * (itemShare / itemsTotal)
		}
		return shares
	}

	if len(e.SharedWithMemberIDs) == 0 {
		return shares
	}
	perMember := e.GrandTotal / float64(len(e.SharedWithMemberIDs))
	for _, id := range e.SharedWithMemberIDs {
		shares[id] += perMember
	}
	return shares
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
