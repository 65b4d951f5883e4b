package entitlement

import (
	"context"
	"log/slog"
	"time"

	"chainvoice/internal/types"
)

// DenyNotifier reports Deny decisions upward so the surrounding system can
// map the stable code to user-facing messaging. Implemented by the SQS
// publisher in internal/queue; nil disables publishing (e.g. in tests).
type DenyNotifier interface {
	PublishDeny(ctx context.Context, n types.DenyNotification) error
}

// DecisionMetrics records allow/deny telemetry. Implemented by the
// CloudWatch emitter in internal/telemetry; nil disables recording.
type DecisionMetrics interface {
	RecordDecision(ctx context.Context, action types.ActionType, decision *types.Decision)
}

// Gate composes the ownership ledger, usage accountant, and trial clock to
// authorize or reject a proposed action with a typed decision.
//
// Allow decisions are side-effect free: the gate never increments
// counters. Charging is the responsibility of the action's own completion
// step, to avoid billing actions that are authorized but subsequently
// fail.
type Gate struct {
	wallets    *WalletLedger
	accountant *Accountant
	trial      *TrialClock
	notifier   DenyNotifier
	metrics    DecisionMetrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewGate creates a Gate. notifier and metrics may be nil.
func NewGate(
	wallets *WalletLedger,
	accountant *Accountant,
	trial *TrialClock,
	notifier DenyNotifier,
	metrics DecisionMetrics,
	logger *slog.Logger,
) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		wallets:    wallets,
		accountant: accountant,
		trial:      trial,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Authorize evaluates the decision table for the proposed action. A nil
// resolution means the identity could not be resolved (NotFound upstream)
// and denies every action with WALLET_NOT_REGISTERED.
//
// Deny is a valid typed outcome, not an error; the error return is
// reserved for lookup failures and malformed requests.
func (g *Gate) Authorize(ctx context.Context, action types.ActionRequest, res *types.ResolvedIdentity) (*types.Decision, error) {
	decision, err := g.evaluate(ctx, action, res)
	if err != nil {
		return nil, err
	}

	g.record(ctx, action, res, decision)
	return decision, nil
}

func (g *Gate) evaluate(ctx context.Context, action types.ActionRequest, res *types.ResolvedIdentity) (*types.Decision, error) {
	if res == nil {
		return types.Deny(
			types.DenyWalletNotRegistered,
			"wallet is not registered; register this wallet first",
			nil,
		), nil
	}

	switch action.Type {
	case types.ActionAddWallet:
		return g.evaluateAddWallet(ctx, action, res)
	case types.ActionCreateInvoice, types.ActionSubmitTransaction:
		return g.evaluateVolume(ctx, action, res)
	case types.ActionMeteredRead:
		return g.evaluateMetered(ctx, res)
	default:
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"unknown action type: "+string(action.Type),
			nil,
		)
	}
}

func (g *Gate) evaluateAddWallet(ctx context.Context, action types.ActionRequest, res *types.ResolvedIdentity) (*types.Decision, error) {
	check, err := g.wallets.CanAddWallet(ctx, res.PrimaryID, action.CandidateAddress, action.CandidateChainID)
	if err != nil {
		return nil, err
	}
	if !check.CanAdd {
		return types.Deny(
			types.DenyWalletLimitExceeded,
			check.Reason,
			map[string]any{
				"rejection":    string(check.Rejection),
				"wallets_used": check.WalletsUsed,
				"max_wallets":  check.MaxWallets,
			},
		), nil
	}
	return types.Allow(), nil
}

func (g *Gate) evaluateVolume(ctx context.Context, action types.ActionRequest, res *types.ResolvedIdentity) (*types.Decision, error) {
	if action.Amount == nil || action.Amount.IsNegative() {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidAmount,
			"a non-negative amount is required for volume-metered actions",
			nil,
		)
	}

	usage, err := g.accountant.GetUsage(ctx, res.PrimaryID)
	if err != nil {
		return nil, err
	}

	// nil limit means unlimited.
	if usage.TxVolumeLimit == nil {
		return types.Allow(), nil
	}

	projected := usage.TxVolumeUsed.Add(*action.Amount)
	if projected.GreaterThan(*usage.TxVolumeLimit) {
		return types.Deny(
			types.DenyTxnLimitExceeded,
			"monthly transaction volume limit exceeded",
			map[string]any{
				"volume_used":  usage.TxVolumeUsed.String(),
				"volume_limit": usage.TxVolumeLimit.String(),
				"amount":       action.Amount.String(),
			},
		), nil
	}
	return types.Allow(), nil
}

func (g *Gate) evaluateMetered(ctx context.Context, res *types.ResolvedIdentity) (*types.Decision, error) {
	usage, err := g.accountant.GetUsage(ctx, res.PrimaryID)
	if err != nil {
		return nil, err
	}

	if usage.QueriesUsed < usage.QueriesLimit {
		return types.Allow(), nil
	}

	// Quota exhausted: an active trial or a paid plan still grants access.
	if g.trial.Status(res.TrialStartedAt, res.TrialConsumed).Active {
		return types.Allow(), nil
	}
	if IsPaid(res.Plan) {
		return types.Allow(), nil
	}

	return types.Deny(
		types.DenyQueryLimitExceeded,
		"monthly query limit exceeded",
		map[string]any{
			"queries_used":  usage.QueriesUsed,
			"queries_limit": usage.QueriesLimit,
		},
	), nil
}

// record emits decision telemetry and, for denials, publishes the deny
// notification. Both are best-effort: a telemetry or queue outage must
// never turn an authorization answer into an error.
func (g *Gate) record(ctx context.Context, action types.ActionRequest, res *types.ResolvedIdentity, decision *types.Decision) {
	if g.metrics != nil {
		g.metrics.RecordDecision(ctx, action.Type, decision)
	}

	if decision.Allowed || g.notifier == nil {
		return
	}

	n := types.DenyNotification{
		Action:    action.Type,
		Code:      decision.Code,
		Message:   decision.Message,
		DeniedAt:  g.now(),
		RequestID: types.GetRequestID(ctx),
	}
	if res != nil {
		n.PrimaryIdentityID = res.PrimaryID
		n.WalletAddress = res.WalletAddress
		n.ChainID = res.ChainID
	}

	if err := g.notifier.PublishDeny(ctx, n); err != nil {
		g.logger.Error("failed to publish deny notification",
			"action", string(action.Type),
			"code", string(decision.Code),
			"error", err,
		)
	}
}
