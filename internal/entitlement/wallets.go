package entitlement

import (
	"context"

	"chainvoice/internal/db"
	"chainvoice/internal/types"
)

// WalletGraph is the data access the ownership ledger needs: the primary
// record plus every wallet bound to it, and point lookups for global
// uniqueness checks. Implemented by db.IdentityRepo.
type WalletGraph interface {
	GetPrimaryByID(ctx context.Context, id string) (*types.PrimaryIdentity, error)
	GetPrimaryByWallet(ctx context.Context, walletAddress, chainID string) (*types.PrimaryIdentity, error)
	GetSecondaryByWallet(ctx context.Context, walletAddress, chainID string) (*db.SecondaryWithParent, error)
	ListSecondaries(ctx context.Context, primaryID string) ([]types.SecondaryIdentity, error)
}

// WalletLedger enumerates the wallets bound to a primary identity and
// evaluates whether a candidate wallet may be added under the plan's
// allowance. This is the most edge-case-dense component in the system;
// every rule below is covered independently by tests.
type WalletLedger struct {
	graph   WalletGraph
	catalog Catalog
}

// NewWalletLedger creates a WalletLedger over the given graph and catalog.
func NewWalletLedger(graph WalletGraph, catalog Catalog) *WalletLedger {
	return &WalletLedger{graph: graph, catalog: catalog}
}

// CanAddWallet decides whether (candidateAddress, candidateChain) may be
// bound to the given primary identity. Rules, evaluated in order:
//
//  1. Global uniqueness: the candidate must not exist as any identity
//     anywhere in the system. Distinct rejection reasons identify the
//     primary's own wallet, a wallet on another account, and a wallet the
//     caller already added.
//  2. Slot accounting: a cross-chain duplicate of an existing wallet in
//     the same graph does not consume an additional slot, unless the
//     candidate chain is in the plan's counts-separately set.
//  3. Allowance: when the candidate consumes a slot, the de-duplicated
//     wallet count of the whole graph must stay within plan.MaxWallets.
//
// The check is read-only; the actual insert (and its unique-constraint
// backstop) happens at the action's completion step.
func (l *WalletLedger) CanAddWallet(ctx context.Context, primaryID, candidateAddress, candidateChain string) (*types.WalletCheck, error) {
	addr, err := types.NormalizeWalletAddress(candidateAddress)
	if err != nil {
		return nil, err
	}
	chain, err := types.NormalizeChainID(candidateChain)
	if err != nil {
		return nil, err
	}

	owner, err := l.graph.GetPrimaryByID(ctx, primaryID)
	if err != nil {
		return nil, err
	}
	plan := l.catalog.Get(owner.Plan)

	// Rule 1: global uniqueness.
	if owner.WalletAddress == addr && owner.ChainID == chain {
		return &types.WalletCheck{
			CanAdd:    false,
			Rejection: types.RejectOwnPrimary,
			Reason:    "this is your own primary wallet",
		}, nil
	}

	existingPrimary, err := l.graph.GetPrimaryByWallet(ctx, addr, chain)
	if err != nil && !types.IsNotFound(err) {
		return nil, asLookupFailure(err)
	}
	if existingPrimary != nil {
		return &types.WalletCheck{
			CanAdd:    false,
			Rejection: types.RejectOtherAccount,
			Reason:    "wallet is already registered to another account",
		}, nil
	}

	existingSecondary, err := l.graph.GetSecondaryByWallet(ctx, addr, chain)
	if err != nil && !types.IsNotFound(err) {
		return nil, asLookupFailure(err)
	}
	if existingSecondary != nil {
		if existingSecondary.Secondary.ParentIdentityID == owner.ID {
			return &types.WalletCheck{
				CanAdd:    false,
				Rejection: types.RejectAlreadyAdded,
				Reason:    "you already added this wallet",
			}, nil
		}
		return &types.WalletCheck{
			CanAdd:    false,
			Rejection: types.RejectOtherAccount,
			Reason:    "wallet is already registered to another account",
		}, nil
	}

	secondaries, err := l.graph.ListSecondaries(ctx, owner.ID)
	if err != nil {
		return nil, asLookupFailure(err)
	}

	// Rule 2: does the candidate consume a wallet slot? An existing wallet
	// only pays for the candidate's address when it occupies the shared
	// address slot; a duplicate on a counts-separately chain holds its own
	// slot and pays for nothing else.
	wouldCount := true
	if !plan.CountsSeparately(chain) {
		for _, s := range secondaries {
			if s.WalletAddress == addr && s.ChainID != chain && !plan.CountsSeparately(s.ChainID) {
				wouldCount = false
				break
			}
		}
		// The primary's own address on another chain is a cross-chain
		// duplicate too: the graph already paid for that address.
		if owner.WalletAddress == addr && !plan.CountsSeparately(owner.ChainID) {
			wouldCount = false
		}
	}

	used := countWalletSlots(owner, secondaries, plan)

	if !wouldCount {
		return &types.WalletCheck{
			CanAdd:                true,
			WouldCountTowardLimit: false,
			WalletsUsed:           used,
			MaxWallets:            plan.MaxWallets,
		}, nil
	}

	// Rule 3: allowance.
	if used+1 > plan.MaxWallets {
		return &types.WalletCheck{
			CanAdd:                false,
			Rejection:             types.RejectOverLimit,
			Reason:                "plan wallet limit reached",
			WouldCountTowardLimit: true,
			WalletsUsed:           used,
			MaxWallets:            plan.MaxWallets,
		}, nil
	}

	return &types.WalletCheck{
		CanAdd:                true,
		WouldCountTowardLimit: true,
		WalletsUsed:           used,
		MaxWallets:            plan.MaxWallets,
	}, nil
}

// countWalletSlots computes the de-duplicated wallet count for an identity
// graph. Wallets sharing an address across chains collapse into one slot,
// except on counts-separately chains where every (address, chain) pair is
// its own slot.
func countWalletSlots(owner *types.PrimaryIdentity, secondaries []types.SecondaryIdentity, plan types.PlanCapabilities) int {
	slots := make(map[string]struct{}, len(secondaries)+1)

	key := func(addr, chain string) string {
		if plan.CountsSeparately(chain) {
			return addr + "@" + chain
		}
		return addr
	}

	slots[key(owner.WalletAddress, owner.ChainID)] = struct{}{}
	for _, s := range secondaries {
		slots[key(s.WalletAddress, s.ChainID)] = struct{}{}
	}
	return len(slots)
}
