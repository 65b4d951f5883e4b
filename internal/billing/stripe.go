// Package billing contains the payment-provider integration points for the
// entitlement core. The checkout flow itself lives upstream; this package
// only verifies and interprets the webhook events that drive plan changes.
package billing

import (
	stripe "github.com/stripe/stripe-go/v82"

	"chainvoice/internal/types"
)

// Stripe event types the webhook handler routes on.
const (
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventCheckoutCompleted   = "checkout.session.completed"
)

// WebhookVerifier abstracts Stripe webhook signature checking so handler
// tests can substitute a stub.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// StripeVerifier implements WebhookVerifier using stripe-go's webhook
// signature verification: HMAC-SHA256 with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header
// and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}

// PriceToPlan maps Stripe price IDs to plan tiers. Populated at startup by
// deployment-specific wiring; events whose price is absent here fall back
// to the price metadata "plan" key, then to Free.
var PriceToPlan = map[string]types.PlanTier{}

// PlanFromPrice resolves a plan tier from a Stripe price ID and its
// metadata.
func PlanFromPrice(priceID string, metadata map[string]string) types.PlanTier {
	if plan, ok := PriceToPlan[priceID]; ok {
		return plan
	}
	if plan, ok := metadata["plan"]; ok && plan != "" {
		return types.PlanTier(plan)
	}
	return types.PlanFree
}

// SubscriptionStatusFrom maps Stripe's subscription status string onto the
// local enum. Unknown states degrade to past_due so entitlement decisions
// stay conservative without hard-failing the event.
func SubscriptionStatusFrom(status string) types.SubscriptionStatus {
	switch status {
	case "active", "trialing":
		return types.SubscriptionActive
	case "canceled", "incomplete_expired", "unpaid":
		return types.SubscriptionCanceled
	default:
		return types.SubscriptionPastDue
	}
}
