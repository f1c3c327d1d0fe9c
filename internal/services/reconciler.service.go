package services

import (
	"context"
	"errors"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/gateways"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/repository"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/prom"
)

const (
	DefaultStaleWindow     = 5 * time.Minute
	DefaultReconcileLimit  = 100
	DefaultReconcileBatch  = 10
	DefaultBatchDelay      = time.Second
	noteNotFoundAtCarrier  = "not found during reconciliation"
	noteRegressionSuppress = "regression suppressed"
)

// ReconcilerMessageRepository is the slice of the message store the
// reconciler needs.
type ReconcilerMessageRepository interface {
	ListStuckOutbound(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Message, error)
	ApplyStatusUpdate(ctx context.Context, id int64, expectedOld model.MessageStatus, u model.StatusUpdate) error
}

// CarrierFetcher reads a message's current state from the carrier.
type CarrierFetcher interface {
	FetchMessage(ctx context.Context, sid string) (*gateways.CarrierMessage, error)
}

// AuditWriter records every reconciliation decision.
type AuditWriter interface {
	Create(ctx context.Context, a *model.DeliveryAudit) (*model.DeliveryAudit, error)
}

// OutcomeApplier reacts to a message reaching a terminal status.
type OutcomeApplier interface {
	ApplyDeliveryOutcome(ctx context.Context, customerID int64, status model.MessageStatus, errorCode *int) error
}

// ReconcileSummary reports what a single reconciliation run did.
type ReconcileSummary struct {
	Checked    int `json:"checked"`
	Updated    int `json:"updated"`
	Suppressed int `json:"suppressed"`
	Errors     int `json:"errors"`
}

type ReconcilerConfig struct {
	// StaleWindow is how long an outbound message must sit in a
	// non-terminal status before reconciliation picks it up.
	StaleWindow time.Duration
	// Limit caps the number of messages fetched per run.
	Limit int
	// BatchSize and BatchDelay pace the carrier API calls.
	BatchSize  int
	BatchDelay time.Duration
}

func (c *ReconcilerConfig) normalize() {
	if c.StaleWindow <= 0 {
		c.StaleWindow = DefaultStaleWindow
	}
	if c.Limit <= 0 {
		c.Limit = DefaultReconcileLimit
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultReconcileBatch
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = DefaultBatchDelay
	}
}

// ReconcilerService polls the carrier for messages whose delivery
// receipts never arrived and converges their local status. Status
// writes are compare-and-set on the previously read status, so
// overlapping runs cannot clobber each other and never move a message
// backwards.
type ReconcilerService struct {
	messageRepo ReconcilerMessageRepository
	auditRepo   AuditWriter
	carrier     CarrierFetcher
	outcomes    OutcomeApplier
	config      ReconcilerConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewReconcilerService(messageRepo ReconcilerMessageRepository, auditRepo AuditWriter, carrier CarrierFetcher, outcomes OutcomeApplier, config ReconcilerConfig) *ReconcilerService {
	config.normalize()
	return &ReconcilerService{
		messageRepo: messageRepo,
		auditRepo:   auditRepo,
		carrier:     carrier,
		outcomes:    outcomes,
		config:      config,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes one reconciliation pass. Per-message failures are counted
// and logged but never abort the run.
func (s *ReconcilerService) Run(ctx context.Context) (*ReconcileSummary, error) {
	staleBefore := s.now().Add(-s.config.StaleWindow)
	messages, err := s.messageRepo.ListStuckOutbound(ctx, s.config.Limit, staleBefore)
	if err != nil {
		return nil, err
	}

	summary := &ReconcileSummary{}
	for i, msg := range messages {
		if i > 0 && i%s.config.BatchSize == 0 {
			if err := s.sleep(ctx, s.config.BatchDelay); err != nil {
				return summary, err
			}
		}
		summary.Checked++
		if err := s.reconcileOne(ctx, msg, summary); err != nil {
			summary.Errors++
			logger.Error("Reconciliation failed for message",
				"message_id", msg.ID,
				"carrier_sid", msg.CarrierSID,
				"error", err)
		}
	}

	prom.AddCounter(prom.SystemReconciliation, prom.MetricReconciliationChecked, float64(summary.Checked))
	prom.AddCounter(prom.SystemReconciliation, prom.MetricReconciliationUpdated, float64(summary.Updated))
	prom.AddCounter(prom.SystemReconciliation, prom.MetricReconciliationSuppressed, float64(summary.Suppressed))
	prom.AddCounter(prom.SystemReconciliation, prom.MetricReconciliationErrors, float64(summary.Errors))

	logger.Info("Reconciliation run finished",
		"checked", summary.Checked,
		"updated", summary.Updated,
		"suppressed", summary.Suppressed,
		"errors", summary.Errors)
	return summary, nil
}

func (s *ReconcilerService) reconcileOne(ctx context.Context, msg *model.Message, summary *ReconcileSummary) error {
	cm, err := s.carrier.FetchMessage(ctx, msg.CarrierSID)
	if err != nil {
		if errors.Is(err, gateways.ErrMessageNotFound) {
			return s.markNotFound(ctx, msg, summary)
		}
		return err
	}

	mapped := model.MapCarrierStatus(cm.Status)
	if mapped == msg.Status {
		return nil
	}

	if !model.IsStatusUpgrade(msg.Status, mapped) {
		summary.Suppressed++
		_, err := s.auditRepo.Create(ctx, &model.DeliveryAudit{
			MessageID:     msg.ID,
			OldStatus:     msg.Status,
			NewStatus:     mapped,
			CarrierStatus: cm.Status,
			Applied:       false,
			Note:          noteRegressionSuppress,
		})
		return err
	}

	update := model.StatusUpdate{
		Status:        mapped,
		CarrierStatus: cm.Status,
		ErrorCode:     cm.ErrorCode,
		ErrorMessage:  cm.ErrorMessage,
	}
	now := s.now()
	switch {
	case mapped == model.MessageStatusDelivered:
		at := now
		if cm.DateSent != nil {
			at = *cm.DateSent
		}
		update.DeliveredAt = &at
	case model.IsFailureStatus(mapped):
		update.FailedAt = &now
	case mapped == model.MessageStatusSent:
		if msg.SentAt == nil {
			at := now
			if cm.DateSent != nil {
				at = *cm.DateSent
			}
			update.SentAt = &at
		}
	}

	if err := s.messageRepo.ApplyStatusUpdate(ctx, msg.ID, msg.Status, update); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			// Another run already advanced this message.
			logger.Warn("Skipping concurrently updated message", "message_id", msg.ID)
			return nil
		}
		return err
	}
	summary.Updated++

	if _, err := s.auditRepo.Create(ctx, &model.DeliveryAudit{
		MessageID:     msg.ID,
		OldStatus:     msg.Status,
		NewStatus:     mapped,
		CarrierStatus: cm.Status,
		Applied:       true,
	}); err != nil {
		return err
	}

	if model.IsTerminalStatus(mapped) && msg.CustomerID != nil {
		return s.outcomes.ApplyDeliveryOutcome(ctx, *msg.CustomerID, mapped, cm.ErrorCode)
	}
	return nil
}

// markNotFound handles SIDs the carrier no longer knows. The message is
// presumed lost and converged to failed so it stops being re-checked.
func (s *ReconcilerService) markNotFound(ctx context.Context, msg *model.Message, summary *ReconcileSummary) error {
	code := gateways.CarrierCodeNotFound
	now := s.now()
	update := model.StatusUpdate{
		Status:        model.MessageStatusFailed,
		CarrierStatus: "not_found",
		FailedAt:      &now,
		ErrorCode:     &code,
		ErrorMessage:  "message not found at carrier",
	}
	if err := s.messageRepo.ApplyStatusUpdate(ctx, msg.ID, msg.Status, update); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			logger.Warn("Skipping concurrently updated message", "message_id", msg.ID)
			return nil
		}
		return err
	}
	summary.Updated++

	if _, err := s.auditRepo.Create(ctx, &model.DeliveryAudit{
		MessageID:     msg.ID,
		OldStatus:     msg.Status,
		NewStatus:     model.MessageStatusFailed,
		CarrierStatus: "not_found",
		Applied:       true,
		Note:          noteNotFoundAtCarrier,
	}); err != nil {
		return err
	}

	if msg.CustomerID != nil {
		return s.outcomes.ApplyDeliveryOutcome(ctx, *msg.CustomerID, model.MessageStatusFailed, &code)
	}
	return nil
}
