package processor

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/gateways"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/queue"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/prom"
)

type CarrierSender interface {
	CreateMessage(ctx context.Context, to, body string) (*gateways.CarrierMessage, error)
}

type MessageStore interface {
	MarkCarrierAccepted(ctx context.Context, id int64, sid, carrierStatus string, sentAt time.Time) error
	ApplyStatusUpdate(ctx context.Context, id int64, expectedOld model.MessageStatus, u model.StatusUpdate) error
}

type AuditStore interface {
	Create(ctx context.Context, a *model.DeliveryAudit) (*model.DeliveryAudit, error)
}

type DeliveryOutcomes interface {
	ApplyDeliveryOutcome(ctx context.Context, customerID int64, status model.MessageStatus, errorCode *int) error
}

// SMSMessageProcessor drains queued outbound messages and hands them to the
// carrier. Each message is wrapped in a redis send lock so two consumers
// never submit the same message twice.
type SMSMessageProcessor struct {
	carrier  CarrierSender
	messages MessageStore
	audits   AuditStore
	outcomes DeliveryOutcomes
	guard    *SendGuard
}

func NewSMSMessageProcessor(carrier CarrierSender, messages MessageStore, audits AuditStore, outcomes DeliveryOutcomes, guard *SendGuard) *SMSMessageProcessor {
	return &SMSMessageProcessor{
		carrier:  carrier,
		messages: messages,
		audits:   audits,
		outcomes: outcomes,
		guard:    guard,
	}
}

func (p *SMSMessageProcessor) GetType() string {
	return "message"
}

// Process sends one queued message. Returning nil acks the queue entry,
// returning an error nacks it for retry or DLQ.
func (p *SMSMessageProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	var message model.Message
	if err := json.Unmarshal(queueMessage.Data, &message); err != nil {
		logger.Error("Failed to unmarshal queued message", "error", err)
		return err // malformed payload goes to the DLQ
	}

	messageID := strconv.FormatInt(message.ID, 10)

	attempt, err := p.guard.AcquireSendLock(ctx, messageID)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadySent):
			logger.Info("Message already sent, skipping", "message_id", messageID)
			return nil
		case errors.Is(err, ErrMaxAttemptsExceeded):
			return p.abandonMessage(ctx, &message)
		case errors.Is(err, ErrLockHeld):
			return errors.New("send lock held by another consumer")
		}
		logger.Error("Failed to acquire send lock", "message_id", messageID, "error", err)
		return err
	}
	defer p.guard.ReleaseSendLock(ctx, attempt)

	logger.Info("Submitting message to carrier",
		"message_id", messageID,
		"mobile", message.Mobile,
		"attempt", attempt.Attempt)

	start := time.Now()
	cm, err := p.carrier.CreateMessage(ctx, message.Mobile, message.Body)
	if err != nil {
		logger.Error("Carrier rejected message", "message_id", messageID, "error", err)
		if markErr := p.guard.MarkSendFailure(ctx, attempt, err); markErr != nil {
			logger.Error("Failed to record send failure", "message_id", messageID, "error", markErr)
		}
		return err // nack, queue retries
	}

	prom.AddMessageSendDuration(time.Since(start).Seconds())
	prom.IncCounter(prom.SystemMessages, prom.MetricMessagesSent)

	sentAt := time.Now()
	if cm.DateSent != nil {
		sentAt = *cm.DateSent
	}
	if err := p.messages.MarkCarrierAccepted(ctx, message.ID, cm.SID, cm.Status, sentAt); err != nil {
		logger.Error("Failed to record carrier acceptance",
			"message_id", messageID, "carrier_sid", cm.SID, "error", err)
		// The carrier has the message; a retry would double-send. Rely on
		// reconciliation to converge the local row.
	}

	if _, err := p.audits.Create(ctx, &model.DeliveryAudit{
		MessageID:     message.ID,
		OldStatus:     message.Status,
		NewStatus:     model.MapCarrierStatus(cm.Status),
		CarrierStatus: cm.Status,
		Applied:       true,
	}); err != nil {
		logger.Error("Failed to write send audit", "message_id", messageID, "error", err)
	}

	if markErr := p.guard.MarkSendSuccess(ctx, attempt); markErr != nil {
		logger.Error("Failed to mark send success", "message_id", messageID, "error", markErr)
	}

	logger.Info("Message accepted by carrier",
		"message_id", messageID,
		"carrier_sid", cm.SID,
		"carrier_status", cm.Status)
	return nil
}

// abandonMessage closes out a message that exhausted its send attempts.
func (p *SMSMessageProcessor) abandonMessage(ctx context.Context, message *model.Message) error {
	logger.Error("Send attempts exhausted, abandoning message", "message_id", message.ID)
	prom.IncCounter(prom.SystemMessages, prom.MetricMessagesRejected)

	now := time.Now()
	err := p.messages.ApplyStatusUpdate(ctx, message.ID, message.Status, model.StatusUpdate{
		Status:        model.MessageStatusFailed,
		CarrierStatus: "failed",
		FailedAt:      &now,
		ErrorMessage:  "send attempts exhausted",
	})
	if err != nil {
		logger.Error("Failed to mark abandoned message", "message_id", message.ID, "error", err)
	}

	if _, err := p.audits.Create(ctx, &model.DeliveryAudit{
		MessageID:     message.ID,
		OldStatus:     message.Status,
		NewStatus:     model.MessageStatusFailed,
		CarrierStatus: "failed",
		Applied:       true,
		Note:          "send attempts exhausted",
	}); err != nil {
		logger.Error("Failed to write abandon audit", "message_id", message.ID, "error", err)
	}

	if message.CustomerID != nil {
		if err := p.outcomes.ApplyDeliveryOutcome(ctx, *message.CustomerID, model.MessageStatusFailed, nil); err != nil {
			logger.Error("Failed to apply failure outcome", "message_id", message.ID, "error", err)
		}
	}
	return nil // ack, the failed row is the durable record
}
