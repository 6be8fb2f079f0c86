package core

import (
	"errors"
	"strings"
	"time"
)

type (
	// Trip is the aggregate root. The running totals and the expense count
	// are caches maintained by the aggregation engine; they must never be
	// written by anything else.
	Trip struct {
		ID              string
		Name            string
		TripCurrency    string // e.g. 'JPY', 'USD'
		DefaultCurrency string // the owner's home currency
		ExchangeRate    float64
		OwnerID         string

		TotalExpenses         float64
		EnabledTotalExpenses  float64
		DisabledTotalExpenses float64
		ExpenseCount          int64

		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// TripMember belongs to exactly one trip. Spending is the cumulative
	// amount allocated to the member across settled enabled expenses,
	// maintained by the aggregation engine via commutative increments.
	TripMember struct {
		ID          string
		TripID      string
		Name        string
		AvatarEmoji string
		IsHost      bool
		Spending    float64
		CreatedAt   time.Time
	}

	// Expense records one payment in the trip's currency. While
	// IsProcessing is true the record is a placeholder awaiting receipt
	// analysis and contributes nothing to totals or balances.
	Expense struct {
		ID                  string
		TripID              string
		Description         string
		Category            string
		GrandTotal          float64
		PaidByMemberID      string
		SharedWithMemberIDs []string
		Enabled             bool
		IsProcessing        bool
		Items               []ExpenseItem
		InputCurrency       string
		ReceiptImageURL     string
		PaidAt              time.Time
		CreatedAt           time.Time
	}

	// ExpenseItem is an embedded line item. It has no identity of its own;
	// items exist only to determine how the expense's grand total is
	// proportioned between members.
	ExpenseItem struct {
		Name              string
		TranslatedName    string
		Price             float64
		Quantity          float64 // 0 means 1
		SharedByMemberIDs []string
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrNoPayer          = errors.New("expense has no payer")
	ErrNoSharers        = errors.New("expense is shared with nobody")
)

// ExpenseStatus is the explicit lifecycle state implied by the
// IsProcessing flag.
type ExpenseStatus int

const (
	// StatusProcessing marks an expense awaiting receipt analysis. It is
	// invisible to totals, spending and balances.
	StatusProcessing ExpenseStatus = iota
	// StatusSettled marks an expense whose data is final; it counts toward
	// totals according to its Enabled flag.
	StatusSettled
)

func (s ExpenseStatus) String() string {
	if s == StatusProcessing {
		return "processing"
	}
	return "settled"
}

// Status returns the lifecycle state of the expense.
func (e Expense) Status() ExpenseStatus {
	if e.IsProcessing {
		return StatusProcessing
	}
	return StatusSettled
}

// Total returns the item's price times its quantity, with a missing
// quantity counting as one.
func (it ExpenseItem) Total() float64 {
	q := it.Quantity
	if q == 0 {
		q = 1
	}
	return it.Price * q
}

// ItemsTotal sums Price*Quantity over all items. It is the denominator of
// the proportional split and may legitimately differ from GrandTotal when
// tax or tip is not itemized.
func (e Expense) ItemsTotal() float64 {
	var total float64
	for _, it := range e.Items {
		total += it.Total()
	}
	return total
}

// Validate checks the fields the API layer enforces before an expense is
// stored. The allocator itself trusts its input; this is the boundary
// where non-negativity is imposed.
func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if e.GrandTotal < 0 {
		return ErrInvalidAmount
	}
	if e.PaidByMemberID == "" {
		return ErrNoPayer
	}
	if len(e.SharedWithMemberIDs) == 0 {
		return ErrNoSharers
	}
	for _, it := range e.Items {
		if it.Price < 0 || it.Quantity < 0 {
			return ErrInvalidAmount
		}
	}
	return nil
}

func (m TripMember) Validate() error {
	if len(strings.TrimSpace(m.Name)) == 0 {
		return errors.New("empty member name")
	}
	if len(m.Name) > 100 {
		return errors.New("member name too long (max 100 characters)")
	}
	return nil
}

func (t Trip) Validate() error {
	if len(strings.TrimSpace(t.Name)) == 0 {
		return errors.New("empty trip name")
	}
	if t.TripCurrency == "" {
		return errors.New("empty trip currency")
	}
	if t.ExchangeRate < 0 {
		return ErrInvalidAmount
	}
	return nil
}
