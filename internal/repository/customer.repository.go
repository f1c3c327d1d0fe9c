package repository

import (
	"context"
	"errors"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
)

// FailureOutcome reports what RecordDeliveryFailure did to the row.
type FailureOutcome struct {
	Failures    int
	Deactivated bool // true only on the run that flipped sms_status
}

type CustomerRepository struct {
	*pg.DB
}

func NewCustomerRepository(db *pg.DB) *CustomerRepository {
	return &CustomerRepository{
		db,
	}
}

func (r *CustomerRepository) Create(ctx context.Context, c *model.Customer) (*model.Customer, error) {
	entity := toCustomerEntity(c)
	if entity.SMSStatus == "" {
		entity.SMSStatus = string(model.SMSStatusActive)
	}
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toCustomerModel(entity), nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	var entity CustomerEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return toCustomerModel(&entity), nil
}

// ResetDeliveryFailures zeroes the failure counter and clears the last
// failure reason after a confirmed delivery. Idempotent.
func (r *CustomerRepository) ResetDeliveryFailures(ctx context.Context, customerID int64) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&CustomerEntity{}).
		Where("id = ?", customerID).
		Updates(map[string]interface{}{
			"sms_delivery_failures":   0,
			"last_sms_failure_reason": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// RecordDeliveryFailure increments the failure counter under a row lock and,
// when the counter crosses the threshold, deactivates messaging exactly once.
// Customers who explicitly opted out keep their opted_out status.
func (r *CustomerRepository) RecordDeliveryFailure(ctx context.Context, customerID int64, reason string) (*FailureOutcome, error) {
	var outcome FailureOutcome

	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		var entity CustomerEntity

		err := r.Write(ctx).WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", customerID).
			First(&entity).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCustomerNotFound
			}
			return err
		}

		entity.SMSDeliveryFailures++
		fields := map[string]interface{}{
			"sms_delivery_failures":   entity.SMSDeliveryFailures,
			"last_sms_failure_reason": reason,
		}

		// Deactivation fires once: only an active customer can flip.
		if entity.SMSDeliveryFailures > model.MaxDeliveryFailures &&
			entity.SMSStatus == string(model.SMSStatusActive) {
			now := time.Now().UTC()
			fields["sms_status"] = string(model.SMSStatusDeactivated)
			fields["sms_opt_in"] = false
			fields["sms_deactivated_at"] = now
			outcome.Deactivated = true
		}

		outcome.Failures = entity.SMSDeliveryFailures

		return r.Write(ctx).WithContext(ctx).
			Model(&CustomerEntity{}).
			Where("id = ?", customerID).
			Updates(fields).Error
	})
	if err != nil {
		return nil, err
	}

	return &outcome, nil
}
