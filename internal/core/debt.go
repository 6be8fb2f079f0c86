package core

// Balance and settlement resolution. These functions are the read-side
// source of truth for who owes whom: they take the full enabled expense
// set (callers filter out disabled and processing expenses) and recompute
// everything from scratch, independent of the cached trip totals.

// PaidAmount sums the grand totals of the expenses a member paid for.
func PaidAmount(expenses []Expense, memberID string) float64 {
	var total float64
	for _, e := range expenses {
		if e.PaidByMemberID == memberID {
			total += e.GrandTotal
		}
	}
	return total
}

// OwedAmount sums the member's allocated share across all expenses,
// honoring item-level sharing.
func OwedAmount(expenses []Expense, allMemberIDs []string, memberID string) float64 {
	var total float64
	for _, e := range expenses {
		total += Allocate(e, allMemberIDs)[memberID]
	}
	return total
}

// Balance is paid minus owed. Positive means the member is a creditor.
func Balance(expenses []Expense, allMemberIDs []string, memberID string) float64 {
	return PaidAmount(expenses, memberID) - OwedAmount(expenses, allMemberIDs, memberID)
}

// DebtAmount returns the signed settlement between two members.
// Positive: member2 owes member1 that amount. Negative: member1 owes
// member2. Zero when their balances have the same sign or either is
// settled; the transfer is capped by the smaller balance magnitude.
func DebtAmount(expenses []Expense, allMemberIDs []string, member1ID, member2ID string) float64 {
	b1 := Balance(expenses, allMemberIDs, member1ID)
	b2 := Balance(expenses, allMemberIDs, member2ID)

	if b1 > 0 && b2 < 0 {
		return min(b1, -b2)
	}
	if b1 < 0 && b2 > 0 {
		return -min(-b1, b2)
	}
	return 0
}
