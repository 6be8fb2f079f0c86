package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"warikan/internal/aggregate"
)

// maxTxRetries bounds the abort-and-retry loop for conflicting trip
// transactions before the failure escalates.
const maxTxRetries = 5

// ApplyTripDelta implements aggregate.Store. Each attempt opens a fresh
// transaction, re-reads the trip row and the member roster, asks fn for
// the delta, and applies it: totals by read-modify-write on the trip row,
// member spending by commutative increment. Concurrent writers abort with
// SQLITE_BUSY and the whole read-compute-write cycle runs again, so a
// racing delta on the shared trip row is never lost and never replayed
// stale.
func (r *SQLiteRepository) ApplyTripDelta(ctx context.Context, tripID string, fn aggregate.DeltaFunc) error {
	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		if attempt > 0 {
			slog.WarnContext(ctx, "Retrying trip delta after conflict",
				"trip_id", tripID, "attempt", attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
			}
		}

		err := r.applyTripDeltaOnce(ctx, tripID, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			// Missing parents and other core-data failures do not heal on
			// retry; surface them immediately.
			if errors.Is(err, ErrTripNotFound) || errors.Is(err, ErrMemberNotFound) {
				return fmt.Errorf("%w: %w", aggregate.ErrMissingParent, err)
			}
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("trip delta abandoned after %d attempts: %w", maxTxRetries, lastErr)
}

func (r *SQLiteRepository) applyTripDeltaOnce(ctx context.Context, tripID string, fn aggregate.DeltaFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trip delta: %w", err)
	}
	defer tx.Rollback()

	view, err := readTripView(ctx, tx, tripID)
	if err != nil {
		return err
	}

	delta, err := fn(view)
	if err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE trips SET total_expenses = ?, enabled_total_expenses = ?,
			disabled_total_expenses = ?, expense_count = ?, updated_at = ?
		WHERE id = ?`,
		view.TotalExpenses+delta.Total,
		view.EnabledTotalExpenses+delta.Enabled,
		view.DisabledTotalExpenses+delta.Disabled,
		view.ExpenseCount+delta.Count,
		time.Now().UTC(), tripID)
	if err != nil {
		return fmt.Errorf("update trip totals: %w", err)
	}

	for memberID, amount := range delta.Spending {
		res, err := tx.ExecContext(ctx, `
			UPDATE trip_members SET spending = spending + ? WHERE id = ? AND trip_id = ?`,
			amount, memberID, tripID)
		if err != nil {
			return fmt.Errorf("increment member spending: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("increment member spending: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("member %s: %w", memberID, ErrMemberNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trip delta: %w", err)
	}
	return nil
}

func readTripView(ctx context.Context, tx *sql.Tx, tripID string) (aggregate.TripView, error) {
	var view aggregate.TripView
	row := tx.QueryRowContext(ctx, `
		SELECT total_expenses, enabled_total_expenses, disabled_total_expenses, expense_count
		FROM trips WHERE id = ?`, tripID)
	err := row.Scan(&view.TotalExpenses, &view.EnabledTotalExpenses,
		&view.DisabledTotalExpenses, &view.ExpenseCount)
	if errors.Is(err, sql.ErrNoRows) {
		return view, fmt.Errorf("trip %s: %w", tripID, ErrTripNotFound)
	}
	if err != nil {
		return view, fmt.Errorf("read trip totals: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM trip_members WHERE trip_id = ?`, tripID)
	if err != nil {
		return view, fmt.Errorf("read trip roster: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return view, fmt.Errorf("scan member id: %w", err)
		}
		view.MemberIDs = append(view.MemberIDs, id)
	}
	return view, rows.Err()
}

// TripAggregates is an absolute snapshot of the cached values, used by the
// reconciliation pass to overwrite whatever drift accumulated.
type TripAggregates struct {
	TotalExpenses         float64
	EnabledTotalExpenses  float64
	DisabledTotalExpenses float64
	ExpenseCount          int64
	MemberSpending        map[string]float64
}

// ReplaceTripAggregates overwrites the trip totals and every member's
// spending in one transaction. Members absent from MemberSpending reset
// to zero.
func (r *SQLiteRepository) ReplaceTripAggregates(ctx context.Context, tripID string, agg TripAggregates) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace aggregates: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE trips SET total_expenses = ?, enabled_total_expenses = ?,
			disabled_total_expenses = ?, expense_count = ?, updated_at = ?
		WHERE id = ?`,
		agg.TotalExpenses, agg.EnabledTotalExpenses, agg.DisabledTotalExpenses,
		agg.ExpenseCount, time.Now().UTC(), tripID)
	if err != nil {
		return fmt.Errorf("replace trip totals: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace trip totals: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("trip %s: %w", tripID, ErrTripNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE trip_members SET spending = 0 WHERE trip_id = ?`, tripID); err != nil {
		return fmt.Errorf("reset member spending: %w", err)
	}
	for memberID, amount := range agg.MemberSpending {
		if _, err := tx.ExecContext(ctx, `
			UPDATE trip_members SET spending = ? WHERE id = ? AND trip_id = ?`,
			amount, memberID, tripID); err != nil {
			return fmt.Errorf("replace member spending: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace aggregates: %w", err)
	}
	return nil
}

// isBusy reports whether the error is SQLite's optimistic-concurrency
// abort, the one failure mode worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
