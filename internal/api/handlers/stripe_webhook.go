// This file implements the Stripe webhook handler.
//
// The handler is NOT behind auth middleware -- it is called directly by
// Stripe. Security is provided by verifying the Stripe-Signature header
// using HMAC-SHA256.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chainvoice/internal/billing"
	"chainvoice/internal/core"
	"chainvoice/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a Stripe webhook
// payload (64 KB). Stripe webhook payloads are typically small; this limit
// protects against abuse.
const maxWebhookBodySize = 64 * 1024

// errCodeWebhookSignature is the error code for failed signature checks.
const errCodeWebhookSignature types.ErrorCode = "validation_invalid_signature"

// PlanStateUpdater is the identity mutation surface the webhook handler
// needs: mapping a Stripe customer back to its primary identity, applying
// plan changes, and consuming the trial when a paid subscription starts.
type PlanStateUpdater interface {
	GetPrimaryByStripeCustomer(ctx context.Context, customerID string) (*types.PrimaryIdentity, error)
	UpdatePlanFromEvent(ctx context.Context, primaryID string, plan types.PlanTier, eventAt time.Time) error
	ConsumeTrial(ctx context.Context, primaryID string) error
}

// StripeWebhookHandler handles asynchronous subscription events from
// Stripe. It is unauthenticated but verifies the provider signature.
type StripeWebhookHandler struct {
	verifier billing.WebhookVerifier
	repo     PlanStateUpdater
	secret   string
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler with the provided
// dependencies.
func NewStripeWebhookHandler(
	verifier billing.WebhookVerifier,
	repo PlanStateUpdater,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		repo:     repo,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the Stripe webhook endpoint. This is separate from
// EntitlementHandler.RegisterRoutes because webhook routes are public.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes incoming Stripe webhook events:
//  1. Reads body and "Stripe-Signature" header.
//  2. Verifies signature using the webhook signing secret.
//  3. Parses event JSON and routes by event type.
//  4. Returns 200 OK; processing failures are logged but acknowledged to
//     prevent infinite provider retry loops.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(
			errCodeWebhookSignature,
			"missing Stripe-Signature header",
			nil,
		))
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			errCodeWebhookSignature,
			"webhook signature verification failed",
			err,
		))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event JSON",
			"error", err,
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		// Acknowledge anyway; the error is logged for investigation.
	}

	w.WriteHeader(http.StatusOK)
}

// routeEvent dispatches the webhook event by type.
func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case billing.EventSubscriptionUpdated:
		return h.handleSubscriptionUpdated(ctx, event)

	case billing.EventSubscriptionDeleted:
		return h.handleSubscriptionDeleted(ctx, event)

	case billing.EventCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
		return nil
	}
}

// handleSubscriptionUpdated applies upgrades and downgrades. Entering a
// paid plan also consumes the trial latch: a wallet that subscribed once
// never regains free-trial access by cancelling.
func (h *StripeWebhookHandler) handleSubscriptionUpdated(ctx context.Context, event *stripeWebhookEvent) error {
	primary, err := h.primaryForEvent(ctx, event)
	if err != nil {
		return err
	}

	plan := event.extractPlanFromSubscription()
	status := event.extractSubscriptionStatus()
	if status == types.SubscriptionCanceled {
		plan = types.PlanFree
	}

	h.logger.InfoContext(ctx, "processing subscription updated",
		"event_id", event.ID,
		"primary_id", primary.ID,
		"plan", string(plan),
		"status", string(status),
	)

	if err := h.repo.UpdatePlanFromEvent(ctx, primary.ID, plan, event.eventTimestamp()); err != nil {
		return err
	}

	if plan != types.PlanFree && !primary.TrialConsumed {
		return h.repo.ConsumeTrial(ctx, primary.ID)
	}
	return nil
}

// handleSubscriptionDeleted reverts the identity to the Free tier.
func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, event *stripeWebhookEvent) error {
	primary, err := h.primaryForEvent(ctx, event)
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "processing subscription deleted",
		"event_id", event.ID,
		"primary_id", primary.ID,
	)

	return h.repo.UpdatePlanFromEvent(ctx, primary.ID, types.PlanFree, event.eventTimestamp())
}

// handleCheckoutCompleted confirms a new subscription after checkout.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	primary, err := h.primaryForEvent(ctx, event)
	if err != nil {
		return err
	}

	plan := event.extractPlanFromMetadata()

	h.logger.InfoContext(ctx, "processing checkout completed",
		"event_id", event.ID,
		"primary_id", primary.ID,
		"plan", string(plan),
	)

	if err := h.repo.UpdatePlanFromEvent(ctx, primary.ID, plan, event.eventTimestamp()); err != nil {
		return err
	}

	if !primary.TrialConsumed {
		return h.repo.ConsumeTrial(ctx, primary.ID)
	}
	return nil
}

// primaryForEvent maps the event's Stripe customer to the owning primary
// identity.
func (h *StripeWebhookHandler) primaryForEvent(ctx context.Context, event *stripeWebhookEvent) (*types.PrimaryIdentity, error) {
	customerID := event.extractCustomerID()
	if customerID == "" {
		return nil, fmt.Errorf("%s: missing customer in event %s", event.Type, event.ID)
	}
	return h.repo.GetPrimaryByStripeCustomer(ctx, customerID)
}

// ---------------------------------------------------------------------------
// Stripe Event Parsing
// ---------------------------------------------------------------------------

// stripeWebhookEvent is a minimal representation of a Stripe webhook event
// tailored to extract the fields needed for routing and processing. The
// full stripe.Event type stays out of the handler to keep testing
// straightforward.
type stripeWebhookEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeSubscriptionObj struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Items    stripeSubItems    `json:"items"`
}

type stripeSubItems struct {
	Data []stripeSubItem `json:"data"`
}

type stripeSubItem struct {
	Price stripeSubPrice `json:"price"`
}

type stripeSubPrice struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

type stripeCheckoutSessionObj struct {
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
}

// eventTimestamp returns the event's created timestamp as a time.Time.
func (e *stripeWebhookEvent) eventTimestamp() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// extractCustomerID pulls the Stripe customer ID from the event object.
func (e *stripeWebhookEvent) extractCustomerID() string {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return ""
	}

	switch e.Type {
	case billing.EventCheckoutCompleted:
		var session stripeCheckoutSessionObj
		if err := json.Unmarshal(data.Object, &session); err != nil {
			return ""
		}
		return session.Customer

	default:
		var sub stripeSubscriptionObj
		if err := json.Unmarshal(data.Object, &sub); err != nil {
			return ""
		}
		return sub.Customer
	}
}

// extractPlanFromSubscription resolves the plan tier from the first
// subscription item's price.
func (e *stripeWebhookEvent) extractPlanFromSubscription() types.PlanTier {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return types.PlanFree
	}

	var sub stripeSubscriptionObj
	if err := json.Unmarshal(data.Object, &sub); err != nil {
		return types.PlanFree
	}

	if len(sub.Items.Data) > 0 {
		price := sub.Items.Data[0].Price
		return billing.PlanFromPrice(price.ID, price.Metadata)
	}
	return types.PlanFree
}

// extractPlanFromMetadata resolves the plan tier from a checkout session's
// metadata.
func (e *stripeWebhookEvent) extractPlanFromMetadata() types.PlanTier {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return types.PlanFree
	}

	var session stripeCheckoutSessionObj
	if err := json.Unmarshal(data.Object, &session); err != nil {
		return types.PlanFree
	}

	if plan, ok := session.Metadata["plan"]; ok && plan != "" {
		return types.PlanTier(plan)
	}
	return types.PlanFree
}

// extractSubscriptionStatus maps the subscription's status string.
func (e *stripeWebhookEvent) extractSubscriptionStatus() types.SubscriptionStatus {
	var data stripeEventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return types.SubscriptionActive
	}

	var sub stripeSubscriptionObj
	if err := json.Unmarshal(data.Object, &sub); err != nil {
		return types.SubscriptionActive
	}

	return billing.SubscriptionStatusFrom(sub.Status)
}
