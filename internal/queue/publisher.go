// Package queue provides SQS-based message producers for dispatching deny
// notifications and settlement payloads to downstream consumers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"chainvoice/internal/config"
	"chainvoice/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher sends deny notifications and settlement messages to their SQS
// queues. An empty queue URL disables that publication path, so local
// development does not require the queue to exist.
type Publisher struct {
	client         SQSSender
	denyQueueURL   string
	settleQueueURL string
	logger         *slog.Logger
}

// NewPublisher creates a Publisher with the given SQS client. Queue URLs
// come from AWSConfig.
func NewPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:         client,
		denyQueueURL:   awsCfg.DenyNotificationQueue,
		settleQueueURL: awsCfg.SettlementQueue,
		logger:         logger,
	}
}

// PublishDeny enqueues a deny notification for the subscribing UI/API
// layer. Missing request IDs get a fresh trace ID so consumers can always
// correlate.
func (p *Publisher) PublishDeny(ctx context.Context, n types.DenyNotification) error {
	if p.denyQueueURL == "" {
		return nil
	}
	if n.RequestID == "" {
		n.RequestID = uuid.New().String()
	}

	if err := p.send(ctx, p.denyQueueURL, n, "deny_"+string(n.Code)); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "deny notification sent",
		"queue_url", p.denyQueueURL,
		"action", string(n.Action),
		"code", string(n.Code),
		"request_id", n.RequestID,
	)
	return nil
}

// PublishSettlement enqueues a settlement outcome for the usage worker to
// apply to the volume ledger.
func (p *Publisher) PublishSettlement(ctx context.Context, msg types.SettlementMessage) error {
	if p.settleQueueURL == "" {
		return nil
	}
	if msg.TraceID == "" {
		msg.TraceID = uuid.New().String()
	}

	if err := p.send(ctx, p.settleQueueURL, msg, "settlement"); err != nil {
		return err
	}

	p.logger.InfoContext(ctx, "settlement message sent",
		"queue_url", p.settleQueueURL,
		"transaction_id", msg.TransactionID,
		"status", string(msg.Status),
		"trace_id", msg.TraceID,
	)
	return nil
}

// send serializes the payload to JSON and dispatches it to the given queue.
func (p *Publisher) send(ctx context.Context, queueURL string, payload any, reason string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send message to %s: %w", queueURL, err)
	}
	return nil
}
