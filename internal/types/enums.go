package types

// IdentityKind distinguishes how a wallet is registered.
type IdentityKind string

const (
	// IdentityPrimary is a wallet that registered directly and owns a plan.
	IdentityPrimary IdentityKind = "primary"
	// IdentitySecondary is a wallet bound to a primary identity, sharing
	// its plan and quotas.
	IdentitySecondary IdentityKind = "secondary"
)

// PlanTier identifies the subscription plan owned by a primary identity.
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanStarter    PlanTier = "starter"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// ActionType identifies an externally triggered action subject to
// entitlement enforcement.
type ActionType string

const (
	// ActionAddWallet binds a new secondary wallet to a primary identity.
	ActionAddWallet ActionType = "add_wallet"
	// ActionCreateInvoice creates an invoice charged against the monthly
	// transaction volume quota.
	ActionCreateInvoice ActionType = "create_invoice"
	// ActionSubmitTransaction submits a payment transaction charged against
	// the monthly transaction volume quota.
	ActionSubmitTransaction ActionType = "submit_transaction"
	// ActionMeteredRead is any dashboard/API read charged against the
	// monthly query quota.
	ActionMeteredRead ActionType = "metered_read"
)

// TransactionStatus is the lifecycle state of a ledger transaction.
// Only TxStatusSettled counts toward monthly transaction volume.
type TransactionStatus string

const (
	TxStatusPending  TransactionStatus = "pending"
	TxStatusSettled  TransactionStatus = "settled"
	TxStatusFailed   TransactionStatus = "failed"
	TxStatusRefunded TransactionStatus = "refunded"
)

// WalletRejection classifies why a candidate wallet cannot be added.
type WalletRejection string

const (
	// RejectOwnPrimary means the candidate is the primary's own registered wallet.
	RejectOwnPrimary WalletRejection = "own_primary_wallet"
	// RejectOtherAccount means the candidate belongs to a different account.
	RejectOtherAccount WalletRejection = "registered_to_another_account"
	// RejectAlreadyAdded means the candidate is already one of the caller's
	// secondary wallets on the same chain.
	RejectAlreadyAdded WalletRejection = "already_added"
	// RejectOverLimit means adding the candidate would exceed the plan's
	// wallet allowance.
	RejectOverLimit WalletRejection = "wallet_limit"
)

// DenyCode is the stable wire contract for gate rejections. The caller
// (UI or API layer) maps these to user-facing messaging; they must never
// be renamed.
type DenyCode string

const (
	DenyWalletNotRegistered DenyCode = "WALLET_NOT_REGISTERED"
	DenyWalletLimitExceeded DenyCode = "WALLET_LIMIT_EXCEEDED"
	DenyTxnLimitExceeded    DenyCode = "TXN_LIMIT_EXCEEDED"
	DenyQueryLimitExceeded  DenyCode = "QUERY_LIMIT_EXCEEDED"
)

// SubscriptionStatus mirrors the payment provider's subscription state as
// delivered by webhook events.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)
