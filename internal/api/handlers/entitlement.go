// Package handlers contains the HTTP handler implementations for the
// Chainvoice entitlement API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chainvoice/internal/core"
	"chainvoice/internal/types"
)

// IdentityResolver resolves a wallet to its unified identity. Satisfied by
// both entitlement.Resolver and entitlement.ResilientResolver.
type IdentityResolver interface {
	Resolve(ctx context.Context, walletAddress, chainID string) (*types.ResolvedIdentity, error)
}

// WalletChecker evaluates whether a candidate wallet may be added.
type WalletChecker interface {
	CanAddWallet(ctx context.Context, primaryID, candidateAddress, candidateChain string) (*types.WalletCheck, error)
}

// UsageReader reports the current-period usage snapshot.
type UsageReader interface {
	GetUsageForResolved(ctx context.Context, res *types.ResolvedIdentity) (*types.UsageSnapshot, error)
}

// Authorizer is the quota enforcement gate.
type Authorizer interface {
	Authorize(ctx context.Context, action types.ActionRequest, res *types.ResolvedIdentity) (*types.Decision, error)
}

// SecondaryInserter persists a newly authorized secondary wallet binding.
type SecondaryInserter interface {
	InsertSecondary(ctx context.Context, s *types.SecondaryIdentity) error
}

// EntitlementHandler exposes the entitlement core over HTTP: resolution,
// wallet checks, usage reporting, action authorization, and the
// gate-authorized secondary-wallet write path.
type EntitlementHandler struct {
	resolver  IdentityResolver
	wallets   WalletChecker
	usage     UsageReader
	gate      Authorizer
	inserter  SecondaryInserter
	validator *core.Validator
	logger    *slog.Logger
}

// NewEntitlementHandler creates an EntitlementHandler with the provided
// dependencies.
func NewEntitlementHandler(
	resolver IdentityResolver,
	wallets WalletChecker,
	usage UsageReader,
	gate Authorizer,
	inserter SecondaryInserter,
	validator *core.Validator,
	logger *slog.Logger,
) *EntitlementHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementHandler{
		resolver:  resolver,
		wallets:   wallets,
		usage:     usage,
		gate:      gate,
		inserter:  inserter,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the entitlement endpoints under the version group.
func (h *EntitlementHandler) RegisterRoutes(r chi.Router) {
	r.Post("/identity/resolve", h.HandleResolve)
	r.Post("/wallets/check", h.HandleWalletCheck)
	r.Post("/wallets", h.HandleAddWallet)
	r.Get("/usage", h.HandleGetUsage)
	r.Post("/authorize", h.HandleAuthorize)
}

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

type walletRef struct {
	WalletAddress string `json:"wallet_address" validate:"required,wallet_addr"`
	ChainID       string `json:"chain_id" validate:"required,chain_id"`
}

type resolveRequest struct {
	walletRef
}

type walletCheckRequest struct {
	walletRef
	CandidateAddress string `json:"candidate_address" validate:"required,wallet_addr"`
	CandidateChainID string `json:"candidate_chain_id" validate:"required,chain_id"`
}

type authorizeRequest struct {
	walletRef
	Action types.ActionType `json:"action" validate:"required,oneof=add_wallet create_invoice submit_transaction metered_read"`

	// Amount is required for create_invoice and submit_transaction.
	Amount *decimal.Decimal `json:"amount,omitempty"`

	// Candidate fields are required for add_wallet.
	CandidateAddress string `json:"candidate_address,omitempty"`
	CandidateChainID string `json:"candidate_chain_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// HandleResolve maps a (wallet address, chain) pair to its unified identity.
// POST /v1/identity/resolve
func (h *EntitlementHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	resolved, err := h.resolver.Resolve(r.Context(), req.WalletAddress, req.ChainID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: resolved})
}

// HandleWalletCheck evaluates whether the caller may add a candidate wallet.
// POST /v1/wallets/check
func (h *EntitlementHandler) HandleWalletCheck(w http.ResponseWriter, r *http.Request) {
	var req walletCheckRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	resolved, err := h.resolver.Resolve(r.Context(), req.WalletAddress, req.ChainID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	check, err := h.wallets.CanAddWallet(r.Context(), resolved.PrimaryID, req.CandidateAddress, req.CandidateChainID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: check})
}

// HandleGetUsage reports the caller's current-period usage snapshot.
// GET /v1/usage?wallet_address=...&chain_id=...
// Falls back to the authenticated Actor when query parameters are absent.
func (h *EntitlementHandler) HandleGetUsage(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("wallet_address")
	chain := r.URL.Query().Get("chain_id")
	if addr == "" || chain == "" {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"wallet_address and chain_id are required",
				nil,
			))
			return
		}
		addr, chain = actor.WalletAddress, actor.ChainID
	}

	resolved, err := h.resolver.Resolve(r.Context(), addr, chain)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	snapshot, err := h.usage.GetUsageForResolved(r.Context(), resolved)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: snapshot})
}

// HandleAuthorize evaluates the gate for a proposed action and returns the
// typed decision. A deny is a 200 with Allowed=false, never an error.
// POST /v1/authorize
func (h *EntitlementHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	resolved, err := h.resolver.Resolve(r.Context(), req.WalletAddress, req.ChainID)
	if err != nil && !types.IsNotFound(err) {
		core.Error(w, r, err)
		return
	}
	// NotFound leaves resolved nil; the gate answers WALLET_NOT_REGISTERED.

	decision, err := h.gate.Authorize(r.Context(), types.ActionRequest{
		Type:             req.Action,
		Amount:           req.Amount,
		CandidateAddress: req.CandidateAddress,
		CandidateChainID: req.CandidateChainID,
	}, resolved)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: decision})
}

// HandleAddWallet binds a new secondary wallet after consulting the gate.
// POST /v1/wallets
//
// A denied request returns 403 carrying the full decision so the caller
// can map the stable code. The insert's unique constraint is the backstop
// for races between the check and the write.
func (h *EntitlementHandler) HandleAddWallet(w http.ResponseWriter, r *http.Request) {
	var req walletCheckRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	resolved, err := h.resolver.Resolve(r.Context(), req.WalletAddress, req.ChainID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if resolved.Kind != types.IdentityPrimary {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"only the primary wallet may add secondary wallets",
			nil,
		))
		return
	}

	decision, err := h.gate.Authorize(r.Context(), types.ActionRequest{
		Type:             types.ActionAddWallet,
		CandidateAddress: req.CandidateAddress,
		CandidateChainID: req.CandidateChainID,
	}, resolved)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !decision.Allowed {
		core.JSON(w, r, http.StatusForbidden, core.APIResponse{Data: decision})
		return
	}

	addr, err := types.NormalizeWalletAddress(req.CandidateAddress)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	chain, err := types.NormalizeChainID(req.CandidateChainID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	secondary := &types.SecondaryIdentity{
		ID:               "sid_" + uuid.New().String(),
		WalletAddress:    addr,
		ChainID:          chain,
		ParentIdentityID: resolved.PrimaryID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := h.inserter.InsertSecondary(r.Context(), secondary); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "secondary wallet added",
		"secondary_id", secondary.ID,
		"primary_id", resolved.PrimaryID,
		"chain_id", chain,
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: secondary})
}
