// Package storage persists trips, members and expenses in SQLite and
// applies aggregation deltas transactionally.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"warikan/internal/core"

	_ "modernc.org/sqlite"
)

var (
	ErrTripNotFound    = errors.New("trip not found")
	ErrMemberNotFound  = errors.New("trip member not found")
	ErrExpenseNotFound = errors.New("expense not found")
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Concurrent event handlers share this database; WAL keeps readers off
	// the writers' backs and busy_timeout gives the retry loop room.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateTrip stores a new trip with zeroed aggregates and returns it with
// its generated id.
func (r *SQLiteRepository) CreateTrip(ctx context.Context, t core.Trip) (core.Trip, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.TotalExpenses = 0
	t.EnabledTotalExpenses = 0
	t.DisabledTotalExpenses = 0
	t.ExpenseCount = 0

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trips (id, name, trip_currency, default_currency, exchange_rate, owner_id,
			total_expenses, enabled_total_expenses, disabled_total_expenses, expense_count,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, 0, ?, ?)`,
		t.ID, t.Name, t.TripCurrency, t.DefaultCurrency, t.ExchangeRate, t.OwnerID,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return core.Trip{}, fmt.Errorf("insert trip: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) GetTrip(ctx context.Context, tripID string) (core.Trip, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, trip_currency, default_currency, exchange_rate, owner_id,
			total_expenses, enabled_total_expenses, disabled_total_expenses, expense_count,
			created_at, updated_at
		FROM trips WHERE id = ?`, tripID)

	var t core.Trip
	err := row.Scan(&t.ID, &t.Name, &t.TripCurrency, &t.DefaultCurrency, &t.ExchangeRate,
		&t.OwnerID, &t.TotalExpenses, &t.EnabledTotalExpenses, &t.DisabledTotalExpenses,
		&t.ExpenseCount, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Trip{}, fmt.Errorf("trip %s: %w", tripID, ErrTripNotFound)
	}
	if err != nil {
		return core.Trip{}, fmt.Errorf("get trip: %w", err)
	}
	return t, nil
}

// ListTripIDs returns all trip ids, oldest first. The reconciler walks
// them on its sweep.
func (r *SQLiteRepository) ListTripIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM trips ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list trip ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trip id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) AddMember(ctx context.Context, m core.TripMember) (core.TripMember, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	m.Spending = 0

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trip_members (id, trip_id, name, avatar_emoji, is_host, spending, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		m.ID, m.TripID, m.Name, m.AvatarEmoji, m.IsHost, m.CreatedAt)
	if err != nil {
		return core.TripMember{}, fmt.Errorf("insert trip member: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context, tripID string) ([]core.TripMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, trip_id, name, avatar_emoji, is_host, spending, created_at
		FROM trip_members WHERE trip_id = ? ORDER BY created_at`, tripID)
	if err != nil {
		return nil, fmt.Errorf("list trip members: %w", err)
	}
	defer rows.Close()

	var members []core.TripMember
	for rows.Next() {
		var m core.TripMember
		if err := rows.Scan(&m.ID, &m.TripID, &m.Name, &m.AvatarEmoji, &m.IsHost,
			&m.Spending, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trip member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()

	sharedWith, items, err := marshalExpenseJSON(e)
	if err != nil {
		return core.Expense{}, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO expenses (id, trip_id, description, category, grand_total, paid_by_member_id,
			shared_with, enabled, is_processing, items, input_currency, receipt_image_url,
			paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TripID, e.Description, e.Category, e.GrandTotal, e.PaidByMemberID,
		sharedWith, e.Enabled, e.IsProcessing, items, e.InputCurrency, e.ReceiptImageURL,
		nullableTime(e.PaidAt), e.CreatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return e, nil
}

// UpdateExpense overwrites the mutable expense fields and returns the
// previous state, which callers forward to the aggregation event.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin update expense: %w", err)
	}
	defer tx.Rollback()

	old, err := getExpenseTx(ctx, tx, e.TripID, e.ID)
	if err != nil {
		return core.Expense{}, err
	}

	sharedWith, items, err := marshalExpenseJSON(e)
	if err != nil {
		return core.Expense{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE expenses SET description = ?, category = ?, grand_total = ?, paid_by_member_id = ?,
			shared_with = ?, enabled = ?, is_processing = ?, items = ?, input_currency = ?,
			receipt_image_url = ?, paid_at = ?
		WHERE id = ? AND trip_id = ?`,
		e.Description, e.Category, e.GrandTotal, e.PaidByMemberID,
		sharedWith, e.Enabled, e.IsProcessing, items, e.InputCurrency,
		e.ReceiptImageURL, nullableTime(e.PaidAt), e.ID, e.TripID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit update expense: %w", err)
	}
	return old, nil
}

// DeleteExpense removes the expense and returns its last stored state.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, tripID, expenseID string) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin delete expense: %w", err)
	}
	defer tx.Rollback()

	old, err := getExpenseTx(ctx, tx, tripID, expenseID)
	if err != nil {
		return core.Expense{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM expenses WHERE id = ? AND trip_id = ?`, expenseID, tripID); err != nil {
		return core.Expense{}, fmt.Errorf("delete expense: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit delete expense: %w", err)
	}
	return old, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, tripID, expenseID string) (core.Expense, error) {
	return getExpenseTx(ctx, r.db, tripID, expenseID)
}

// ListExpenses returns every expense of the trip, newest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, tripID string) ([]core.Expense, error) {
	return r.queryExpenses(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE trip_id = ? ORDER BY created_at DESC`, tripID)
}

// ListEnabledExpenses returns the expenses the balance resolver consumes:
// enabled and settled.
func (r *SQLiteRepository) ListEnabledExpenses(ctx context.Context, tripID string) ([]core.Expense, error) {
	return r.queryExpenses(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE trip_id = ? AND enabled = 1 AND is_processing = 0
		ORDER BY created_at DESC`, tripID)
}

// ListSettledExpenses returns enabled and disabled expenses, excluding
// only those still processing. The reconciler recomputes from this set.
func (r *SQLiteRepository) ListSettledExpenses(ctx context.Context, tripID string) ([]core.Expense, error) {
	return r.queryExpenses(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE trip_id = ? AND is_processing = 0
		ORDER BY created_at DESC`, tripID)
}

const expenseColumns = `id, trip_id, description, category, grand_total, paid_by_member_id,
	shared_with, enabled, is_processing, items, input_currency, receipt_image_url, paid_at, created_at`

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getExpenseTx(ctx context.Context, q queryRower, tripID, expenseID string) (core.Expense, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND trip_id = ?`,
		expenseID, tripID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("expense %s: %w", expenseID, ErrExpenseNotFound)
	}
	return e, err
}

func scanExpense(row rowScanner) (core.Expense, error) {
	var (
		e          core.Expense
		sharedWith string
		items      string
		paidAt     sql.NullTime
	)
	err := row.Scan(&e.ID, &e.TripID, &e.Description, &e.Category, &e.GrandTotal,
		&e.PaidByMemberID, &sharedWith, &e.Enabled, &e.IsProcessing, &items,
		&e.InputCurrency, &e.ReceiptImageURL, &paidAt, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, err
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("scan expense: %w", err)
	}
	if paidAt.Valid {
		e.PaidAt = paidAt.Time
	}
	if err := json.Unmarshal([]byte(sharedWith), &e.SharedWithMemberIDs); err != nil {
		return core.Expense{}, fmt.Errorf("decode shared_with: %w", err)
	}
	var recs []itemRecord
	if err := json.Unmarshal([]byte(items), &recs); err != nil {
		return core.Expense{}, fmt.Errorf("decode items: %w", err)
	}
	e.Items = make([]core.ExpenseItem, len(recs))
	for i, rec := range recs {
		e.Items[i] = core.ExpenseItem(rec)
	}
	if len(e.Items) == 0 {
		e.Items = nil
	}
	return e, nil
}

// itemRecord is the JSON shape of an embedded line item. Items have no
// rows of their own; they live and die with the expense.
type itemRecord struct {
	Name              string   `json:"name"`
	TranslatedName    string   `json:"translatedName,omitempty"`
	Price             float64  `json:"price"`
	Quantity          float64  `json:"quantity,omitempty"`
	SharedByMemberIDs []string `json:"sharedByMemberIds,omitempty"`
}

func marshalExpenseJSON(e core.Expense) (sharedWith, items string, err error) {
	ids := e.SharedWithMemberIDs
	if ids == nil {
		ids = []string{}
	}
	rawIDs, err := json.Marshal(ids)
	if err != nil {
		return "", "", fmt.Errorf("encode shared_with: %w", err)
	}

	recs := make([]itemRecord, len(e.Items))
	for i, it := range e.Items {
		recs[i] = itemRecord(it)
	}
	rawItems, err := json.Marshal(recs)
	if err != nil {
		return "", "", fmt.Errorf("encode items: %w", err)
	}
	return string(rawIDs), string(rawItems), nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
