package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"chainvoice/internal/types"
)

// IdentityRepo provides data access for the primary_identities and
// secondary_identities tables. The global invariant that a
// (wallet_address, chain_id) pair appears in at most one of the two tables
// is enforced by the schema (a shared unique index over a union view) and
// re-checked here on the write path via unique-violation mapping.
type IdentityRepo struct {
	db DBTX
}

// NewIdentityRepo creates a new IdentityRepo backed by the given database
// connection (pool or transaction).
func NewIdentityRepo(db DBTX) *IdentityRepo {
	return &IdentityRepo{db: db}
}

// SecondaryWithParent is the joined shape returned by the secondary wallet
// lookup. The parent's plan and trial fields are read live at query time,
// never denormalized onto the secondary row, so that a plan change on the
// primary is immediately visible through every secondary.
type SecondaryWithParent struct {
	Secondary types.SecondaryIdentity
	Parent    types.PrimaryIdentity
}

// GetPrimaryByWallet looks up a primary identity by exact
// (wallet_address, chain_id). Returns a not_found_wallet error when no row
// exists; storage failures map to internal_database_error so callers can
// distinguish "unregistered" from "could not determine".
func (r *IdentityRepo) GetPrimaryByWallet(ctx context.Context, walletAddress, chainID string) (*types.PrimaryIdentity, error) {
	var p types.PrimaryIdentity
	err := r.db.QueryRow(ctx,
		`SELECT id, wallet_address, chain_id, plan, trial_started_at, trial_consumed,
		        COALESCE(stripe_customer_id, ''), created_at, updated_at
		 FROM primary_identities
		 WHERE wallet_address = $1 AND chain_id = $2`,
		walletAddress, chainID,
	).Scan(
		&p.ID, &p.WalletAddress, &p.ChainID, &p.Plan,
		&p.TrialStartedAt, &p.TrialConsumed, &p.StripeCustomerID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundWallet,
				"wallet is not registered; register this wallet first", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up primary identity", err)
	}
	return &p, nil
}

// GetPrimaryByID looks up a primary identity by its ID.
func (r *IdentityRepo) GetPrimaryByID(ctx context.Context, id string) (*types.PrimaryIdentity, error) {
	var p types.PrimaryIdentity
	err := r.db.QueryRow(ctx,
		`SELECT id, wallet_address, chain_id, plan, trial_started_at, trial_consumed,
		        COALESCE(stripe_customer_id, ''), created_at, updated_at
		 FROM primary_identities
		 WHERE id = $1`,
		id,
	).Scan(
		&p.ID, &p.WalletAddress, &p.ChainID, &p.Plan,
		&p.TrialStartedAt, &p.TrialConsumed, &p.StripeCustomerID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundIdentity, "primary identity not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up primary identity", err)
	}
	return &p, nil
}

// GetPrimaryByStripeCustomer looks up a primary identity by its Stripe
// customer ID. Used by the webhook handler to map subscription events back
// to the owning identity.
func (r *IdentityRepo) GetPrimaryByStripeCustomer(ctx context.Context, customerID string) (*types.PrimaryIdentity, error) {
	var p types.PrimaryIdentity
	err := r.db.QueryRow(ctx,
		`SELECT id, wallet_address, chain_id, plan, trial_started_at, trial_consumed,
		        COALESCE(stripe_customer_id, ''), created_at, updated_at
		 FROM primary_identities
		 WHERE stripe_customer_id = $1`,
		customerID,
	).Scan(
		&p.ID, &p.WalletAddress, &p.ChainID, &p.Plan,
		&p.TrialStartedAt, &p.TrialConsumed, &p.StripeCustomerID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundIdentity, "no identity for stripe customer", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up identity by stripe customer", err)
	}
	return &p, nil
}

// GetSecondaryByWallet looks up a secondary identity by exact
// (wallet_address, chain_id), joined to its parent primary. The join is
// what guarantees the live-plan-inheritance rule.
func (r *IdentityRepo) GetSecondaryByWallet(ctx context.Context, walletAddress, chainID string) (*SecondaryWithParent, error) {
	var sp SecondaryWithParent
	err := r.db.QueryRow(ctx,
		`SELECT s.id, s.wallet_address, s.chain_id, s.parent_identity_id, s.created_at,
		        p.id, p.wallet_address, p.chain_id, p.plan, p.trial_started_at,
		        p.trial_consumed, COALESCE(p.stripe_customer_id, ''), p.created_at, p.updated_at
		 FROM secondary_identities s
		 JOIN primary_identities p ON p.id = s.parent_identity_id
		 WHERE s.wallet_address = $1 AND s.chain_id = $2`,
		walletAddress, chainID,
	).Scan(
		&sp.Secondary.ID, &sp.Secondary.WalletAddress, &sp.Secondary.ChainID,
		&sp.Secondary.ParentIdentityID, &sp.Secondary.CreatedAt,
		&sp.Parent.ID, &sp.Parent.WalletAddress, &sp.Parent.ChainID, &sp.Parent.Plan,
		&sp.Parent.TrialStartedAt, &sp.Parent.TrialConsumed, &sp.Parent.StripeCustomerID,
		&sp.Parent.CreatedAt, &sp.Parent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundWallet,
				"wallet is not registered; register this wallet first", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to look up secondary identity", err)
	}
	return &sp, nil
}

// ListSecondaries returns all secondary identities bound to the given
// primary, ordered by creation time.
func (r *IdentityRepo) ListSecondaries(ctx context.Context, primaryID string) ([]types.SecondaryIdentity, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, wallet_address, chain_id, parent_identity_id, created_at
		 FROM secondary_identities
		 WHERE parent_identity_id = $1
		 ORDER BY created_at ASC`,
		primaryID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list secondary identities", err)
	}
	defer rows.Close()

	var out []types.SecondaryIdentity
	for rows.Next() {
		var s types.SecondaryIdentity
		if err := rows.Scan(&s.ID, &s.WalletAddress, &s.ChainID, &s.ParentIdentityID, &s.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan secondary identity row", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating secondary identity rows", err)
	}
	return out, nil
}

// InsertSecondary binds a new secondary wallet to a primary identity.
// A unique-constraint violation (the wallet already exists somewhere in
// the system) maps to conflict_wallet_exists.
func (r *IdentityRepo) InsertSecondary(ctx context.Context, s *types.SecondaryIdentity) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO secondary_identities (id, wallet_address, chain_id, parent_identity_id, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))`,
		s.ID, s.WalletAddress, s.ChainID, s.ParentIdentityID, nilIfZeroTime(s.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictWalletExists,
				"wallet is already registered", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert secondary identity", err)
	}
	return nil
}

// UpdatePlanFromEvent applies a plan change driven by an upstream
// subscription event. The event timestamp guard makes webhook replays and
// out-of-order deliveries idempotent: only events newer than the last
// applied one mutate the row.
func (r *IdentityRepo) UpdatePlanFromEvent(ctx context.Context, primaryID string, plan types.PlanTier, eventAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE primary_identities
		 SET plan = $2, updated_at = NOW(), last_plan_event_at = $3
		 WHERE id = $1
		   AND (last_plan_event_at IS NULL OR last_plan_event_at < $3)`,
		primaryID, plan, eventAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update plan", err)
	}
	// Zero rows means the event was stale; that is a successful no-op.
	_ = tag
	return nil
}

// ConsumeTrial sets the trial-consumed latch. The latch is one-way: there
// is no SQL path that clears it.
func (r *IdentityRepo) ConsumeTrial(ctx context.Context, primaryID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE primary_identities
		 SET trial_consumed = true, updated_at = NOW()
		 WHERE id = $1`,
		primaryID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to consume trial", err)
	}
	return nil
}

// nilIfZeroTime returns nil if the time is zero, otherwise returns a pointer
// to the time. Used to let the DB default (NOW()) apply when no time is set.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint
// violation (error code 23505). Used by repositories to detect duplicate
// key conflicts and return appropriate application-level errors.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
