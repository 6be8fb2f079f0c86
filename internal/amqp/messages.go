package amqp

import (
	"encoding/json"
	"time"

	"warikan/internal/core"
)

// ChangeType names the expense lifecycle event a message carries.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// ExpenseSnapshot is the wire form of an expense at one point in its
// lifecycle. The message carries full snapshots rather than ids so the
// worker can compute deltas without racing later edits of the same row.
type ExpenseSnapshot struct {
	ID                  string         `json:"id"`
	TripID              string         `json:"tripId"`
	Description         string         `json:"description"`
	Category            string         `json:"category,omitempty"`
	GrandTotal          float64        `json:"grandTotal"`
	PaidByMemberID      string         `json:"paidByMemberId"`
	SharedWithMemberIDs []string       `json:"sharedWithMemberIds"`
	Enabled             bool           `json:"enabled"`
	IsProcessing        bool           `json:"isProcessing"`
	Items               []ItemSnapshot `json:"items,omitempty"`
}

// ItemSnapshot is the wire form of an embedded expense item.
type ItemSnapshot struct {
	Name              string   `json:"name"`
	TranslatedName    string   `json:"translatedName,omitempty"`
	Price             float64  `json:"price"`
	Quantity          float64  `json:"quantity,omitempty"`
	SharedByMemberIDs []string `json:"sharedByMemberIds,omitempty"`
}

// ExpenseChangeMessage notifies the aggregation worker of one expense
// lifecycle event. Old is nil for creations, New is nil for deletions.
type ExpenseChangeMessage struct {
	TripID    string           `json:"tripId"`
	Change    ChangeType       `json:"change"`
	Old       *ExpenseSnapshot `json:"old,omitempty"`
	New       *ExpenseSnapshot `json:"new,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewExpenseChangeMessage(tripID string, change ChangeType, oldExpense, newExpense *core.Expense) *ExpenseChangeMessage {
	return &ExpenseChangeMessage{
		TripID:    tripID,
		Change:    change,
		Old:       snapshotOf(oldExpense),
		New:       snapshotOf(newExpense),
		Timestamp: time.Now(),
	}
}

func (m *ExpenseChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseChangeMessageFromJSON(data []byte) (*ExpenseChangeMessage, error) {
	var msg ExpenseChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func snapshotOf(e *core.Expense) *ExpenseSnapshot {
	if e == nil {
		return nil
	}
	s := &ExpenseSnapshot{
		ID:                  e.ID,
		TripID:              e.TripID,
		Description:         e.Description,
		Category:            e.Category,
		GrandTotal:          e.GrandTotal,
		PaidByMemberID:      e.PaidByMemberID,
		SharedWithMemberIDs: e.SharedWithMemberIDs,
		Enabled:             e.Enabled,
		IsProcessing:        e.IsProcessing,
	}
	for _, it := range e.Items {
		s.Items = append(s.Items, ItemSnapshot(it))
	}
	return s
}

// Expense converts the snapshot back into the domain type. Returns the
// zero expense for a nil snapshot, so deletions and creations stay easy
// to pass around.
func (s *ExpenseSnapshot) Expense() core.Expense {
	if s == nil {
		return core.Expense{}
	}
	e := core.Expense{
		ID:                  s.ID,
		TripID:              s.TripID,
		Description:         s.Description,
		Category:            s.Category,
		GrandTotal:          s.GrandTotal,
		PaidByMemberID:      s.PaidByMemberID,
		SharedWithMemberIDs: s.SharedWithMemberIDs,
		Enabled:             s.Enabled,
		IsProcessing:        s.IsProcessing,
	}
	for _, it := range s.Items {
		e.Items = append(e.Items, core.ExpenseItem(it))
	}
	return e
}
