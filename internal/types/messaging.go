package types

import "time"

// SettlementMessage is the SQS payload reporting a transaction outcome back
// to the usage accountant. Settlement happens outside this core (payment
// processor, chain confirmation); the worker applies it as an ordinary
// ledger write. Amount is a decimal string to avoid float rounding on the
// wire.
type SettlementMessage struct {
	TransactionID     string            `json:"transaction_id"`
	PrimaryIdentityID string            `json:"primary_identity_id"`
	Amount            string            `json:"amount"`
	Currency          string            `json:"currency"`
	Status            TransactionStatus `json:"status"`
	SettledAt         time.Time         `json:"settled_at"`
	TraceID           string            `json:"trace_id,omitempty"`
}

// TrialConsumedMessage marks a primary identity's trial as consumed.
// Consumption is a one-way latch; the worker ignores the message if the
// latch is already set.
type TrialConsumedMessage struct {
	PrimaryIdentityID string    `json:"primary_identity_id"`
	ConsumedAt        time.Time `json:"consumed_at"`
	TraceID           string    `json:"trace_id,omitempty"`
}

// DenyNotification is published whenever the gate rejects an action. The
// surrounding system (UI, API layer) subscribes and maps the stable Code
// to user-facing messaging.
type DenyNotification struct {
	PrimaryIdentityID string     `json:"primary_identity_id,omitempty"`
	WalletAddress     string     `json:"wallet_address"`
	ChainID           string     `json:"chain_id"`
	Action            ActionType `json:"action"`
	Code              DenyCode   `json:"code"`
	Message           string     `json:"message"`
	DeniedAt          time.Time  `json:"denied_at"`
	RequestID         string     `json:"request_id,omitempty"`
}
