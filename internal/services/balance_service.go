package services

import (
	"context"
	"fmt"

	"warikan/internal/core"
)

// BalanceStore is the read-side slice of storage the resolver consumes.
type BalanceStore interface {
	GetTrip(ctx context.Context, tripID string) (core.Trip, error)
	ListMembers(ctx context.Context, tripID string) ([]core.TripMember, error)
	ListEnabledExpenses(ctx context.Context, tripID string) ([]core.Expense, error)
}

// MemberBalance is one member's resolved position across the trip.
type MemberBalance struct {
	MemberID string
	Name     string
	Paid     float64
	Owed     float64
	Balance  float64
}

// Settlement is one pairwise transfer that would resolve two members'
// balances against each other.
type Settlement struct {
	FromMemberID string
	ToMemberID   string
	Amount       float64
}

// TripBalances is the full resolved view of who paid, who owes, and which
// transfers settle the trip.
type TripBalances struct {
	TripID      string
	Members     []MemberBalance
	Settlements []Settlement
}

// BalanceService recomputes balances from the enabled expense set on
// every call. It never mutates anything and may run concurrently with the
// aggregation engine; a view slightly ahead of or behind the cached trip
// totals is acceptable.
type BalanceService struct {
	storage BalanceStore
}

func NewBalanceService(storage BalanceStore) *BalanceService {
	return &BalanceService{storage: storage}
}

// TripBalances resolves paid, owed, balance and pairwise settlements for
// every member of the trip.
func (s *BalanceService) TripBalances(ctx context.Context, tripID string) (TripBalances, error) {
	if _, err := s.storage.GetTrip(ctx, tripID); err != nil {
		return TripBalances{}, fmt.Errorf("load trip: %w", err)
	}

	members, err := s.storage.ListMembers(ctx, tripID)
	if err != nil {
		return TripBalances{}, fmt.Errorf("load members: %w", err)
	}
	expenses, err := s.storage.ListEnabledExpenses(ctx, tripID)
	if err != nil {
		return TripBalances{}, fmt.Errorf("load expenses: %w", err)
	}

	memberIDs := make([]string, len(members))
	for i, m := range members {
		memberIDs[i] = m.ID
	}

	result := TripBalances{TripID: tripID}
	for _, m := range members {
		paid := core.PaidAmount(expenses, m.ID)
		owed := core.OwedAmount(expenses, memberIDs, m.ID)
		result.Members = append(result.Members, MemberBalance{
			MemberID: m.ID,
			Name:     m.Name,
			Paid:     paid,
			Owed:     owed,
			Balance:  paid - owed,
		})
	}

	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			debt := core.DebtAmount(expenses, memberIDs, members[i].ID, members[j].ID)
			switch {
			case debt > 0:
				result.Settlements = append(result.Settlements, Settlement{
					FromMemberID: members[j].ID,
					ToMemberID:   members[i].ID,
					Amount:       debt,
				})
			case debt < 0:
				result.Settlements = append(result.Settlements, Settlement{
					FromMemberID: members[i].ID,
					ToMemberID:   members[j].ID,
					Amount:       -debt,
				})
			}
		}
	}

	return result, nil
}
