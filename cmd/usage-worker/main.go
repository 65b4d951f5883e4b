// Package main is the entrypoint for the Usage Worker Lambda function.
//
// The Usage Worker consumes messages from the settlement SQS queue and
// applies them to the database:
//   - SettlementMessage: appends the settled transaction to the volume
//     ledger (idempotent on transaction ID).
//   - TrialConsumedMessage: sets the one-way trial-consumed latch.
//
// Settlement happens outside the entitlement core (payment processor,
// chain confirmation); this worker keeps the gate's control flow free of
// asynchronous outcomes by applying them as ordinary writes.
//
// Lambda SQS integration uses partial batch responses: messages that fail
// processing are returned in batchItemFailures so SQS retries only those.
// Malformed messages are acknowledged (a parse failure never succeeds on
// retry) and logged.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/shopspring/decimal"

	"chainvoice/internal/config"
	"chainvoice/internal/db"
	"chainvoice/internal/types"
)

// SettlementLedger is the ledger write surface the worker needs.
// Implemented by db.LedgerRepo.
type SettlementLedger interface {
	RecordSettlement(ctx context.Context, txn *types.Transaction) error
}

// TrialConsumer sets the trial-consumed latch. Implemented by db.IdentityRepo.
type TrialConsumer interface {
	ConsumeTrial(ctx context.Context, primaryID string) error
}

// Handler holds the dependencies for the usage worker Lambda handler.
type Handler struct {
	ledger     SettlementLedger
	identities TrialConsumer
	logger     *slog.Logger
}

// envelope sniffs the message kind before full decoding. Settlement
// messages carry transaction_id; trial messages do not.
type envelope struct {
	TransactionID     string `json:"transaction_id"`
	PrimaryIdentityID string `json:"primary_identity_id"`
}

// Handle processes an SQS event containing settlement and trial messages.
// Each message is processed independently; failures are reported via
// partial batch responses.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage routes a single SQS record to the settlement or trial path.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var env envelope
	if err := json.Unmarshal([]byte(record.Body), &env); err != nil {
		h.logger.Error("failed to unmarshal message envelope",
			"message_id", record.MessageId,
			"error", err,
		)
		// Permanent parse failure: ACK, do not retry.
		return nil
	}

	if env.TransactionID != "" {
		return h.processSettlement(ctx, record)
	}
	return h.processTrialConsumed(ctx, record)
}

// processSettlement applies one settlement outcome to the volume ledger.
// Only terminal-success outcomes land in the ledger; failed and refunded
// settlements are recorded with their status and excluded from volume by
// the sum's status filter.
func (h *Handler) processSettlement(ctx context.Context, record events.SQSMessage) error {
	var msg types.SettlementMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal settlement message",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}

	if msg.TransactionID == "" || msg.PrimaryIdentityID == "" {
		h.logger.Error("settlement message missing identifiers",
			"message_id", record.MessageId,
			"trace_id", msg.TraceID,
		)
		return nil
	}

	amount, err := decimal.NewFromString(msg.Amount)
	if err != nil {
		h.logger.Error("settlement message carries unparseable amount",
			"message_id", record.MessageId,
			"transaction_id", msg.TransactionID,
			"amount", msg.Amount,
			"error", err,
		)
		return nil
	}

	txn := &types.Transaction{
		ID:                msg.TransactionID,
		PrimaryIdentityID: msg.PrimaryIdentityID,
		Amount:            amount,
		Currency:          msg.Currency,
		Status:            msg.Status,
		CreatedAt:         msg.SettledAt.UTC(),
	}

	if err := h.ledger.RecordSettlement(ctx, txn); err != nil {
		return fmt.Errorf("record settlement %s: %w", msg.TransactionID, err)
	}

	h.logger.InfoContext(ctx, "settlement applied",
		"transaction_id", msg.TransactionID,
		"primary_id", msg.PrimaryIdentityID,
		"status", string(msg.Status),
		"trace_id", msg.TraceID,
	)
	return nil
}

// processTrialConsumed sets the trial latch for the named identity. The
// latch is one-way, so redelivery is harmless.
func (h *Handler) processTrialConsumed(ctx context.Context, record events.SQSMessage) error {
	var msg types.TrialConsumedMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("failed to unmarshal trial message",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}

	if msg.PrimaryIdentityID == "" {
		h.logger.Error("trial message missing primary identity",
			"message_id", record.MessageId,
			"trace_id", msg.TraceID,
		)
		return nil
	}

	if err := h.identities.ConsumeTrial(ctx, msg.PrimaryIdentityID); err != nil {
		return fmt.Errorf("consume trial for %s: %w", msg.PrimaryIdentityID, err)
	}

	h.logger.InfoContext(ctx, "trial consumed",
		"primary_id", msg.PrimaryIdentityID,
		"trace_id", msg.TraceID,
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("usage worker Lambda initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(context.Background(), cfg.Database)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		ledger:     db.NewLedgerRepo(pool),
		identities: db.NewIdentityRepo(pool),
		logger:     logger,
	}

	logger.Info("usage worker Lambda initialized",
		"settlement_queue", cfg.AWS.SettlementQueue,
	)

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. Enables local integration testing without the RIE.
	if cfg.Environment == "local" {
		logger.Info("APP_ENV=local: reading SQS event from stdin")
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Error("failed to read stdin", "error", err)
			os.Exit(1)
		}
		var sqsEvent events.SQSEvent
		if err := json.Unmarshal(payload, &sqsEvent); err != nil {
			logger.Error("failed to parse stdin as SQS event", "error", err)
			os.Exit(1)
		}
		response, err := handler.Handle(context.Background(), sqsEvent)
		if err != nil {
			logger.Error("handler execution failed", "error", err)
			os.Exit(1)
		}
		if len(response.BatchItemFailures) > 0 {
			respJSON, _ := json.MarshalIndent(response, "", "  ")
			fmt.Fprintln(os.Stderr, string(respJSON))
		}
		logger.Info("handler execution completed",
			"records_processed", len(sqsEvent.Records),
			"failures", len(response.BatchItemFailures),
		)
		return
	}

	lambda.Start(handler.Handle)
}
