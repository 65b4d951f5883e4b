package db

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"chainvoice/internal/types"
)

// LedgerRepo provides data access for the transactions table.
//
// Monthly transaction volume is derived, never counted: it is the sum of
// settled amounts for a primary identity within the current UTC calendar
// month, recomputed per query. This keeps the ledger append-only and makes
// refunds and corrections a matter of status, not counter arithmetic.
type LedgerRepo struct {
	db DBTX
}

// NewLedgerRepo creates a new LedgerRepo backed by the given database
// connection (pool or transaction).
func NewLedgerRepo(db DBTX) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// MonthlyVolume returns the sum of settled transaction amounts for the
// primary identity within [periodStart, periodEnd). Both bounds are UTC
// month boundaries supplied by the usage accountant.
func (r *LedgerRepo) MonthlyVolume(ctx context.Context, primaryID string, periodStart, periodEnd time.Time) (decimal.Decimal, error) {
	var volume decimal.Decimal
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)
		 FROM transactions
		 WHERE primary_identity_id = $1
		   AND status = $2
		   AND created_at >= $3
		   AND created_at < $4`,
		primaryID, types.TxStatusSettled, periodStart, periodEnd,
	).Scan(&volume)
	if err != nil {
		return decimal.Zero, types.NewAppError(types.ErrCodeInternalDB, "failed to sum monthly transaction volume", err)
	}
	return volume, nil
}

// RecordSettlement appends a settled transaction to the ledger. The insert
// is idempotent on transaction ID so that redelivered settlement messages
// are harmless.
func (r *LedgerRepo) RecordSettlement(ctx context.Context, txn *types.Transaction) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO transactions (id, primary_identity_id, amount, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		txn.ID, txn.PrimaryIdentityID, txn.Amount, txn.Currency, txn.Status, txn.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record settlement", err)
	}
	return nil
}
