package entitlement

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"chainvoice/internal/db"
	"chainvoice/internal/types"
)

// PrimaryGetter resolves a primary identity row by ID.
type PrimaryGetter interface {
	GetPrimaryByID(ctx context.Context, id string) (*types.PrimaryIdentity, error)
}

// UsageCounters is the query counter access the accountant needs.
// Implemented by db.UsageRepo.
type UsageCounters interface {
	GetCurrentCount(ctx context.Context, primaryID string, month, year int) (int, error)
	Reserve(ctx context.Context, primaryID string, month, year, limit int) (db.ReserveResult, error)
	Increment(ctx context.Context, primaryID string, month, year int) (int, error)
}

// VolumeLedger sums settled transaction amounts for a period.
// Implemented by db.LedgerRepo.
type VolumeLedger interface {
	MonthlyVolume(ctx context.Context, primaryID string, periodStart, periodEnd time.Time) (decimal.Decimal, error)
}

// Accountant tracks monthly query counts and transaction volume and
// computes remaining quota. Quotas are shared across a whole identity
// graph: usage is always keyed on the primary identity, so a secondary
// wallet's usage is by construction its parent's.
type Accountant struct {
	identities PrimaryGetter
	counters   UsageCounters
	ledger     VolumeLedger
	catalog    Catalog
	trial      *TrialClock
	now        func() time.Time
}

// NewAccountant creates an Accountant over the given collaborators.
func NewAccountant(identities PrimaryGetter, counters UsageCounters, ledger VolumeLedger, catalog Catalog, trial *TrialClock) *Accountant {
	return &Accountant{
		identities: identities,
		counters:   counters,
		ledger:     ledger,
		catalog:    catalog,
		trial:      trial,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithNow returns a copy of the accountant using the given time source.
// Intended for tests.
func (a *Accountant) WithNow(now func() time.Time) *Accountant {
	cp := *a
	cp.now = now
	return &cp
}

// GetUsage returns the usage snapshot for the primary identity's current
// UTC calendar month. A missing counter row reads as zero: period rollover
// is the reset mechanism and nothing ever mutates a past period.
func (a *Accountant) GetUsage(ctx context.Context, primaryID string) (*types.UsageSnapshot, error) {
	primary, err := a.identities.GetPrimaryByID(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	plan := a.catalog.Get(primary.Plan)

	now := a.now()
	month, year := int(now.Month()), now.Year()
	periodStart := time.Date(year, now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0)

	queriesUsed, err := a.counters.GetCurrentCount(ctx, primaryID, month, year)
	if err != nil {
		return nil, err
	}

	volume, err := a.ledger.MonthlyVolume(ctx, primaryID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	snap := &types.UsageSnapshot{
		PrimaryID:        primaryID,
		QueriesUsed:      queriesUsed,
		QueriesLimit:     plan.QueryQuota,
		QueryPercentUsed: percentOfInt(queriesUsed, plan.QueryQuota),
		TxVolumeUsed:     volume,
		TxVolumeLimit:    plan.TxVolumeQuota,
		PeriodMonth:      month,
		PeriodYear:       year,
	}
	snap.TxVolumePercentUsed = percentOfDecimal(volume, plan.TxVolumeQuota)
	return snap, nil
}

// GetUsageForResolved returns the usage snapshot for a resolved identity.
// Secondary identities report their parent's usage at the same instant.
func (a *Accountant) GetUsageForResolved(ctx context.Context, res *types.ResolvedIdentity) (*types.UsageSnapshot, error) {
	return a.GetUsage(ctx, res.PrimaryID)
}

// ChargeQuery records one metered query against the identity graph's
// current period. For Free identities without an active trial the charge
// is an atomic bounded reservation: the counter never passes the plan
// limit, even under concurrent load. Paid and trialing identities are
// charged unconditionally; their counter exists for reporting.
//
// The gate never calls this. Charging is the completion step of the action
// itself so that authorized-but-failed actions are not billed.
func (a *Accountant) ChargeQuery(ctx context.Context, primaryID string) (db.ReserveResult, error) {
	primary, err := a.identities.GetPrimaryByID(ctx, primaryID)
	if err != nil {
		return db.ReserveResult{}, err
	}
	plan := a.catalog.Get(primary.Plan)

	now := a.now()
	month, year := int(now.Month()), now.Year()

	if IsPaid(primary.Plan) || a.trial.Status(primary.TrialStartedAt, primary.TrialConsumed).Active {
		used, err := a.counters.Increment(ctx, primaryID, month, year)
		if err != nil {
			return db.ReserveResult{}, err
		}
		return db.ReserveResult{Charged: true, UsedCount: used}, nil
	}

	return a.counters.Reserve(ctx, primaryID, month, year, plan.QueryQuota)
}

// percentOfInt computes min(100, round(used/limit*100)) for integer quotas.
// A non-positive limit reports 0.
func percentOfInt(used, limit int) int {
	if limit <= 0 {
		return 0
	}
	pct := int(math.Round(float64(used) / float64(limit) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// percentOfDecimal computes min(100, round(used/limit*100)) for monetary
// quotas. A nil limit means unlimited and reports 0; the caller renders
// "Unlimited". A zero limit with any usage reports 100.
func percentOfDecimal(used decimal.Decimal, limit *decimal.Decimal) int {
	if limit == nil {
		return 0
	}
	if limit.IsZero() {
		if used.IsPositive() {
			return 100
		}
		return 0
	}
	pct := used.Div(*limit).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return int(pct)
}
