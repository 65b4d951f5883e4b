package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"chainvoice/internal/types"
)

// UsageRepo provides data access for the query_usage_counters table.
//
// The table has a composite primary key (primary_identity_id, month, year).
// There is no reset mutation anywhere in the system: a new calendar period
// simply keys a fresh row, and a missing row reads as zero. Past periods
// are never written again.
type UsageRepo struct {
	db DBTX
}

// NewUsageRepo creates a new UsageRepo backed by the given database
// connection (pool or transaction).
func NewUsageRepo(db DBTX) *UsageRepo {
	return &UsageRepo{db: db}
}

// ReserveResult is the outcome of an atomic quota reservation.
type ReserveResult struct {
	// Charged is true when the counter was incremented.
	Charged bool
	// UsedCount is the counter value after the reservation attempt. When
	// Charged is false it is the already-exhausted count.
	UsedCount int
}

// GetCurrentCount returns the query counter for the given period. A
// missing row means zero usage for a fresh period.
func (r *UsageRepo) GetCurrentCount(ctx context.Context, primaryID string, month, year int) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT used_count
		 FROM query_usage_counters
		 WHERE primary_identity_id = $1 AND month = $2 AND year = $3`,
		primaryID, month, year,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to read query usage counter", err)
	}
	return count, nil
}

// Reserve atomically charges one query against the period counter, bounded
// by the plan limit. The whole check-and-increment is a single conditional
// upsert, so two concurrent requests at quota-1 can never both be charged
// past the limit: the row insert initializes at 1, and the conflict path
// only increments while used_count < limit.
//
// Returns Charged=false (with the current count) when the limit is already
// exhausted.
func (r *UsageRepo) Reserve(ctx context.Context, primaryID string, month, year, limit int) (ReserveResult, error) {
	if limit < 1 {
		return ReserveResult{Charged: false, UsedCount: 0}, nil
	}

	var used int
	err := r.db.QueryRow(ctx,
		`INSERT INTO query_usage_counters (primary_identity_id, month, year, used_count)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (primary_identity_id, month, year)
		 DO UPDATE SET used_count = query_usage_counters.used_count + 1
		 WHERE query_usage_counters.used_count < $4
		 RETURNING used_count`,
		primaryID, month, year, limit,
	).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The conditional update matched no row: the counter is at or
			// past the limit. Read it back for reporting.
			current, readErr := r.GetCurrentCount(ctx, primaryID, month, year)
			if readErr != nil {
				return ReserveResult{}, readErr
			}
			return ReserveResult{Charged: false, UsedCount: current}, nil
		}
		return ReserveResult{}, types.NewAppError(types.ErrCodeInternalDB, "failed to reserve query quota", err)
	}

	return ReserveResult{Charged: true, UsedCount: used}, nil
}

// Increment charges one query without a bound. Used for identities whose
// metered access is granted by a paid plan or an active trial, where the
// counter is kept for reporting rather than enforcement.
func (r *UsageRepo) Increment(ctx context.Context, primaryID string, month, year int) (int, error) {
	var used int
	err := r.db.QueryRow(ctx,
		`INSERT INTO query_usage_counters (primary_identity_id, month, year, used_count)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (primary_identity_id, month, year)
		 DO UPDATE SET used_count = query_usage_counters.used_count + 1
		 RETURNING used_count`,
		primaryID, month, year,
	).Scan(&used)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to increment query usage counter", err)
	}
	return used, nil
}
