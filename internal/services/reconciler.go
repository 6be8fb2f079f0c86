package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"warikan/internal/core"
	"warikan/internal/storage"
)

// ReconcilerStore is the slice of storage the reconciliation pass needs.
type ReconcilerStore interface {
	ListTripIDs(ctx context.Context) ([]string, error)
	ListSettledExpenses(ctx context.Context, tripID string) ([]core.Expense, error)
	ListMembers(ctx context.Context, tripID string) ([]core.TripMember, error)
	ReplaceTripAggregates(ctx context.Context, tripID string, agg storage.TripAggregates) error
}

// ReconcilerConfig holds configuration for the reconciliation pass.
type ReconcilerConfig struct {
	// Interval is how often every trip's aggregates are recomputed from
	// scratch (default: 1h).
	Interval time.Duration
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{Interval: 1 * time.Hour}
}

// Reconciler is the self-healing backstop: if an aggregation event was
// lost or abandoned after retries, the cached totals drift from the
// expense set until this pass recomputes and overwrites them.
type Reconciler struct {
	storage ReconcilerStore
	config  ReconcilerConfig
}

func NewReconciler(storage ReconcilerStore, config ReconcilerConfig) *Reconciler {
	if config.Interval <= 0 {
		config.Interval = DefaultReconcilerConfig().Interval
	}
	return &Reconciler{storage: storage, config: config}
}

// Run reconciles all trips once at startup, then on every tick until the
// context is canceled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.ReconcileAll(ctx)

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.ReconcileAll(ctx)
		}
	}
}

// ReconcileAll recomputes every trip, logging and skipping trips that
// fail rather than aborting the sweep.
func (r *Reconciler) ReconcileAll(ctx context.Context) {
	tripIDs, err := r.storage.ListTripIDs(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list trips for reconciliation", "error", err)
		return
	}

	var failed int
	for _, tripID := range tripIDs {
		if ctx.Err() != nil {
			return
		}
		if err := r.RecomputeTrip(ctx, tripID); err != nil {
			failed++
			slog.ErrorContext(ctx, "Failed to reconcile trip", "trip_id", tripID, "error", err)
		}
	}

	slog.InfoContext(ctx, "Reconciliation sweep finished",
		"trips", len(tripIDs), "failed", failed)
}

// RecomputeTrip rebuilds one trip's totals, expense count and member
// spending from the full settled expense set and overwrites the cached
// values.
func (r *Reconciler) RecomputeTrip(ctx context.Context, tripID string) error {
	expenses, err := r.storage.ListSettledExpenses(ctx, tripID)
	if err != nil {
		return fmt.Errorf("load settled expenses: %w", err)
	}
	members, err := r.storage.ListMembers(ctx, tripID)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}

	memberIDs := make([]string, len(members))
	for i, m := range members {
		memberIDs[i] = m.ID
	}

	agg := storage.TripAggregates{
		ExpenseCount:   int64(len(expenses)),
		MemberSpending: make(map[string]float64),
	}
	for _, e := range expenses {
		agg.TotalExpenses += e.GrandTotal
		if e.Enabled {
			agg.EnabledTotalExpenses += e.GrandTotal
			for id, amount := range core.Allocate(e, memberIDs) {
				agg.MemberSpending[id] += amount
			}
		} else {
			agg.DisabledTotalExpenses += e.GrandTotal
		}
	}

	if err := r.storage.ReplaceTripAggregates(ctx, tripID, agg); err != nil {
		return fmt.Errorf("replace aggregates: %w", err)
	}
	return nil
}
