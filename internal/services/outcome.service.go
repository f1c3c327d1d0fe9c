package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/repository"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/prom"
)

type CustomerOutcomeRepository interface {
	ResetDeliveryFailures(ctx context.Context, customerID int64) error
	RecordDeliveryFailure(ctx context.Context, customerID int64, reason string) (*repository.FailureOutcome, error)
}

// OutcomeService applies the per-customer consequences of a terminal
// delivery result.
type OutcomeService struct {
	customerRepo CustomerOutcomeRepository
}

func NewOutcomeService(customerRepo CustomerOutcomeRepository) *OutcomeService {
	return &OutcomeService{
		customerRepo: customerRepo,
	}
}

// ApplyDeliveryOutcome reacts to a message reaching a terminal status.
// Delivered resets the customer's failure counter; failure-class statuses
// increment it and may deactivate messaging. Non-terminal statuses are
// ignored. A missing customer row is a warning, not an error: the message
// may predate the customer record or belong to an ad-hoc recipient.
func (s *OutcomeService) ApplyDeliveryOutcome(ctx context.Context, customerID int64, status model.MessageStatus, errorCode *int) error {
	switch {
	case status == model.MessageStatusDelivered:
		err := s.customerRepo.ResetDeliveryFailures(ctx, customerID)
		if err != nil {
			if errors.Is(err, repository.ErrCustomerNotFound) {
				logger.Warn("Delivery outcome for unknown customer", "customer_id", customerID, "status", status)
				return nil
			}
			return err
		}
		return nil

	case model.IsFailureStatus(status):
		reason := string(status)
		if errorCode != nil {
			reason = fmt.Sprintf("%s: %d", status, *errorCode)
		}
		outcome, err := s.customerRepo.RecordDeliveryFailure(ctx, customerID, reason)
		if err != nil {
			if errors.Is(err, repository.ErrCustomerNotFound) {
				logger.Warn("Failure outcome for unknown customer", "customer_id", customerID, "status", status)
				return nil
			}
			return err
		}
		if outcome.Deactivated {
			prom.IncCounter(prom.SystemCustomers, prom.MetricCustomerDeactivations)
			logger.Warn("Customer messaging auto-deactivated",
				"customer_id", customerID,
				"failures", outcome.Failures,
				"reason", reason)
		}
		return nil
	}

	// sent, queued etc. carry no customer consequence.
	return nil
}
