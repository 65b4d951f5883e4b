package entitlement

import (
	"context"
	"errors"

	"chainvoice/internal/db"
	"chainvoice/internal/types"
)

// IdentityLookup is the minimal data access the resolver needs. Implemented
// by db.IdentityRepo; defined here so the resolver can be tested against a
// mock without a database.
type IdentityLookup interface {
	GetPrimaryByWallet(ctx context.Context, walletAddress, chainID string) (*types.PrimaryIdentity, error)
	GetSecondaryByWallet(ctx context.Context, walletAddress, chainID string) (*db.SecondaryWithParent, error)
}

// Resolver determines whether a wallet is a primary identity or a
// secondary (cross-chain) identity bound to a primary, and returns the
// unified identity record. Resolution is read-only and idempotent:
// identical inputs with no intervening writes yield identical output.
type Resolver struct {
	identities IdentityLookup
}

// NewResolver creates a Resolver over the given identity lookup.
func NewResolver(identities IdentityLookup) *Resolver {
	return &Resolver{identities: identities}
}

// Resolve maps a (wallet address, chain) pair to its unified identity.
//
// Lookup order: exact primary match, then exact secondary match joined
// live to its parent. The secondary path reports the parent's *current*
// plan, never a copy, so a plan change on the primary propagates instantly
// through every secondary.
//
// Malformed input is rejected before any lookup. A storage failure
// surfaces as lookup_failed and is never coerced into not-found: callers
// must be able to distinguish "wallet truly unregistered" from "could not
// determine".
func (r *Resolver) Resolve(ctx context.Context, walletAddress, chainID string) (*types.ResolvedIdentity, error) {
	addr, err := types.NormalizeWalletAddress(walletAddress)
	if err != nil {
		return nil, err
	}
	chain, err := types.NormalizeChainID(chainID)
	if err != nil {
		return nil, err
	}

	primary, err := r.identities.GetPrimaryByWallet(ctx, addr, chain)
	if err == nil {
		return &types.ResolvedIdentity{
			Kind:           types.IdentityPrimary,
			IdentityID:     primary.ID,
			PrimaryID:      primary.ID,
			WalletAddress:  primary.WalletAddress,
			ChainID:        primary.ChainID,
			Plan:           primary.Plan,
			TrialStartedAt: primary.TrialStartedAt,
			TrialConsumed:  primary.TrialConsumed,
		}, nil
	}
	if !types.IsNotFound(err) {
		return nil, asLookupFailure(err)
	}

	joined, err := r.identities.GetSecondaryByWallet(ctx, addr, chain)
	if err == nil {
		return &types.ResolvedIdentity{
			Kind:           types.IdentitySecondary,
			IdentityID:     joined.Secondary.ID,
			PrimaryID:      joined.Parent.ID,
			WalletAddress:  joined.Secondary.WalletAddress,
			ChainID:        joined.Secondary.ChainID,
			Plan:           joined.Parent.Plan,
			TrialStartedAt: joined.Parent.TrialStartedAt,
			TrialConsumed:  joined.Parent.TrialConsumed,
		}, nil
	}
	if !types.IsNotFound(err) {
		return nil, asLookupFailure(err)
	}

	return nil, types.NewAppError(
		types.ErrCodeNotFoundWallet,
		"wallet is not registered; register this wallet first",
		nil,
	)
}

// asLookupFailure wraps a storage error into the lookup_failed taxonomy so
// callers can branch on retryability without inspecting driver errors.
func asLookupFailure(err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeLookupFailed {
		return err
	}
	return types.NewAppError(
		types.ErrCodeLookupFailed,
		"could not determine wallet registration",
		err,
	)
}
