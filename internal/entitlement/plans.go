// Package entitlement implements the entitlement resolution and usage
// accounting engine: plan capabilities, identity resolution, wallet
// ownership rules, trial accounting, usage snapshots, and the quota
// enforcement gate that composes them.
package entitlement

import (
	"github.com/shopspring/decimal"

	"chainvoice/internal/types"
)

// Catalog defines the authoritative capabilities for each plan tier.
// This is the single source of truth for what each plan allows.
type Catalog interface {
	// Get returns the capabilities for the given plan tier. For unknown or
	// blank tiers it returns the Free capabilities: entitlement lookups
	// must never fail on malformed stored data, they degrade to the most
	// restrictive tier.
	Get(tier types.PlanTier) types.PlanCapabilities
}

// staticCatalog is a compile-time plan catalog backed by an in-memory map.
// It implements Catalog and is the standard implementation for production use.
type staticCatalog struct {
	plans map[types.PlanTier]types.PlanCapabilities
	free  types.PlanCapabilities
}

// defaultCountsSeparatelyChains lists the UBID-enabled chains whose wallets
// always consume a wallet slot even when the address duplicates a secondary
// on another chain. Deployments override the set via configuration; the
// default ships the single chain the product launched with.
var defaultCountsSeparatelyChains = []string{"ubid"}

// planDefaults defines the hardcoded plan capabilities.
//
//	| Plan       | Wallets | Queries/Month | Tx Volume/Month | View Others | Price |
//	|------------|---------|---------------|-----------------|-------------|-------|
//	| Free       | 1       | 100           | $0 (none)       | No          | $0    |
//	| Starter    | 2       | 1,000         | $5,000          | No          | $19   |
//	| Pro        | 3       | 10,000        | $20,000         | Yes         | $49   |
//	| Enterprise | 25      | 100,000       | Unlimited       | Yes         | $299  |
//
// A nil TxVolumeQuota means unlimited; a zero value means no transaction
// volume is allowed at all.
func planDefaults() map[types.PlanTier]types.PlanCapabilities {
	free := decimal.Zero
	starter := decimal.NewFromInt(5000)
	pro := decimal.NewFromInt(20000)

	return map[types.PlanTier]types.PlanCapabilities{
		types.PlanFree: {
			Name:                types.PlanFree,
			MaxWallets:          1,
			QueryQuota:          100,
			TxVolumeQuota:       &free,
			CanViewOtherWallets: false,
			PriceUSD:            decimal.Zero,
		},
		types.PlanStarter: {
			Name:                types.PlanStarter,
			MaxWallets:          2,
			QueryQuota:          1000,
			TxVolumeQuota:       &starter,
			CanViewOtherWallets: false,
			PriceUSD:            decimal.NewFromInt(19),
		},
		types.PlanPro: {
			Name:                types.PlanPro,
			MaxWallets:          3,
			QueryQuota:          10000,
			TxVolumeQuota:       &pro,
			CanViewOtherWallets: true,
			PriceUSD:            decimal.NewFromInt(49),
		},
		types.PlanEnterprise: {
			Name:                types.PlanEnterprise,
			MaxWallets:          25,
			QueryQuota:          100000,
			TxVolumeQuota:       nil, // Unlimited
			CanViewOtherWallets: true,
			PriceUSD:            decimal.NewFromInt(299),
		},
	}
}

// NewStaticCatalog returns a Catalog backed by the hardcoded plan
// capabilities. countsSeparatelyChains overrides the default UBID chain
// set when non-empty; the set is stamped onto every capability record so
// the wallet ledger reads it as declarative data rather than a special
// case in control flow.
func NewStaticCatalog(countsSeparatelyChains []string) Catalog {
	chains := countsSeparatelyChains
	if len(chains) == 0 {
		chains = defaultCountsSeparatelyChains
	}

	m := planDefaults()
	for tier, caps := range m {
		caps.CountsSeparatelyChains = append([]string(nil), chains...)
		m[tier] = caps
	}

	return &staticCatalog{
		plans: m,
		free:  m[types.PlanFree],
	}
}

// Get returns the capabilities for the given plan tier, falling back to
// Free for unknown tiers.
func (c *staticCatalog) Get(tier types.PlanTier) types.PlanCapabilities {
	if caps, ok := c.plans[tier]; ok {
		return caps
	}
	return c.free
}

// IsPaid reports whether the tier carries a paid subscription. Unknown
// tiers degrade to Free and are therefore not paid.
func IsPaid(tier types.PlanTier) bool {
	switch tier {
	case types.PlanStarter, types.PlanPro, types.PlanEnterprise:
		return true
	default:
		return false
	}
}
