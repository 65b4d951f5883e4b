package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PrimaryIdentity represents a wallet that registered directly and owns a
// plan. It is the billing anchor for its whole identity graph: every
// secondary wallet bound to it shares its plan and quotas.
type PrimaryIdentity struct {
	ID               string     `json:"id" db:"id"`
	WalletAddress    string     `json:"wallet_address" db:"wallet_address"`
	ChainID          string     `json:"chain_id" db:"chain_id"`
	Plan             PlanTier   `json:"plan" db:"plan"`
	TrialStartedAt   *time.Time `json:"trial_started_at,omitempty" db:"trial_started_at"`
	TrialConsumed    bool       `json:"trial_consumed" db:"trial_consumed"`
	StripeCustomerID string     `json:"-" db:"stripe_customer_id"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// SecondaryIdentity is a wallet bound to exactly one PrimaryIdentity,
// representing the same legal owner on a different chain (or a distinct
// address granted shared-plan access). It carries no plan of its own: the
// parent's current plan is always read live at resolution time.
type SecondaryIdentity struct {
	ID               string    `json:"id" db:"id"`
	WalletAddress    string    `json:"wallet_address" db:"wallet_address"`
	ChainID          string    `json:"chain_id" db:"chain_id"`
	ParentIdentityID string    `json:"parent_identity_id" db:"parent_identity_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// PlanCapabilities is an immutable catalog row describing what a plan
// allows. Referenced, never owned, by identities.
type PlanCapabilities struct {
	Name       PlanTier `json:"name"`
	MaxWallets int      `json:"max_wallets"`
	QueryQuota int      `json:"query_quota"`

	// TxVolumeQuota is the monthly transaction volume ceiling in USD.
	// nil means unlimited. A zero value means no transaction volume is
	// allowed at all (the Free tier).
	TxVolumeQuota *decimal.Decimal `json:"tx_volume_quota,omitempty"`

	CanViewOtherWallets bool            `json:"can_view_other_wallets"`
	PriceUSD            decimal.Decimal `json:"price_usd"`

	// CountsSeparatelyChains lists UBID-enabled chains whose wallets always
	// consume a wallet slot, even when the address duplicates a secondary
	// on another chain.
	CountsSeparatelyChains []string `json:"counts_separately_chains,omitempty"`
}

// CountsSeparately reports whether wallets on the given chain are exempt
// from the cross-chain duplicate rule.
func (p PlanCapabilities) CountsSeparately(chainID string) bool {
	for _, c := range p.CountsSeparatelyChains {
		if c == chainID {
			return true
		}
	}
	return false
}

// ResolvedIdentity is the unified result of identity resolution: a tagged
// variant over primary and secondary wallets rather than two unrelated
// record shapes. PlanName is always the owning primary's current plan.
type ResolvedIdentity struct {
	Kind IdentityKind `json:"kind"`

	// IdentityID is the resolved row's own ID (primary or secondary).
	IdentityID string `json:"identity_id"`

	// PrimaryID is the billing anchor: the identity itself for primaries,
	// the parent for secondaries. Quota operations always key on this.
	PrimaryID string `json:"primary_id"`

	WalletAddress string   `json:"wallet_address"`
	ChainID       string   `json:"chain_id"`
	Plan          PlanTier `json:"plan"`

	TrialStartedAt *time.Time `json:"trial_started_at,omitempty"`
	TrialConsumed  bool       `json:"trial_consumed"`

	// Stale marks a resolution served from the degraded-read snapshot
	// after the backing store became unavailable.
	Stale bool `json:"stale,omitempty"`
}

// TrialStatus reports whether the fixed-length trial grants access.
type TrialStatus struct {
	Active        bool `json:"active"`
	DaysRemaining int  `json:"days_remaining"`
}

// WalletCheck is the outcome of a can-add-wallet evaluation.
type WalletCheck struct {
	CanAdd bool `json:"can_add"`

	// Rejection and Reason are set only when CanAdd is false.
	Rejection WalletRejection `json:"rejection,omitempty"`
	Reason    string          `json:"reason,omitempty"`

	// WouldCountTowardLimit is false for cross-chain duplicates of an
	// existing secondary of the same primary, unless the candidate chain
	// counts separately.
	WouldCountTowardLimit bool `json:"would_count_toward_limit"`

	// WalletsUsed is the de-duplicated wallet count of the identity graph
	// before the candidate, populated when the limit was evaluated.
	WalletsUsed int `json:"wallets_used,omitempty"`
	MaxWallets  int `json:"max_wallets,omitempty"`
}

// UsageSnapshot is the per-identity-graph usage view for the current
// calendar month. Monetary values are decimals, never floats.
type UsageSnapshot struct {
	PrimaryID string `json:"primary_id"`

	QueriesUsed      int `json:"queries_used"`
	QueriesLimit     int `json:"queries_limit"`
	QueryPercentUsed int `json:"query_percent_used"`

	TxVolumeUsed decimal.Decimal `json:"tx_volume_used"`
	// TxVolumeLimit is nil for unlimited plans; callers render "Unlimited"
	// and TxVolumePercentUsed is reported as 0.
	TxVolumeLimit       *decimal.Decimal `json:"tx_volume_limit,omitempty"`
	TxVolumePercentUsed int              `json:"tx_volume_percent_used"`

	PeriodMonth int `json:"period_month"`
	PeriodYear  int `json:"period_year"`
}

// Decision is the gate's typed outcome. Allow decisions are side-effect
// free; charging happens at the action's own completion step so that
// authorized-but-failed actions are never billed.
type Decision struct {
	Allowed bool           `json:"allowed"`
	Code    DenyCode       `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Allow is the canonical allow decision.
func Allow() *Decision {
	return &Decision{Allowed: true}
}

// Deny constructs a typed rejection carrying a stable wire code.
func Deny(code DenyCode, message string, details map[string]any) *Decision {
	return &Decision{
		Allowed: false,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ActionRequest describes a proposed action submitted to the gate.
type ActionRequest struct {
	Type ActionType `json:"type"`

	// Amount is the monetary value of an invoice or transaction. Required
	// for create_invoice and submit_transaction, ignored otherwise.
	Amount *decimal.Decimal `json:"amount,omitempty"`

	// CandidateAddress/CandidateChainID identify the wallet being added.
	// Required for add_wallet, ignored otherwise.
	CandidateAddress string `json:"candidate_address,omitempty"`
	CandidateChainID string `json:"candidate_chain_id,omitempty"`
}

// Transaction is a row in the transaction volume ledger. Monthly volume is
// derived by summing settled amounts per primary identity; it is never
// stored as a running counter.
type Transaction struct {
	ID                string            `json:"id" db:"id"`
	PrimaryIdentityID string            `json:"primary_identity_id" db:"primary_identity_id"`
	Amount            decimal.Decimal   `json:"amount" db:"amount"`
	Currency          string            `json:"currency" db:"currency"`
	Status            TransactionStatus `json:"status" db:"status"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
}

// QueryUsage is one row of the monthly query counter, keyed on
// (primary identity, calendar month, calendar year). A missing row for the
// current period means zero usage; the key rollover is the reset mechanism
// and no reset mutation exists.
type QueryUsage struct {
	PrimaryIdentityID string `json:"primary_identity_id" db:"primary_identity_id"`
	Month             int    `json:"month" db:"month"`
	Year              int    `json:"year" db:"year"`
	UsedCount         int    `json:"used_count" db:"used_count"`
}
