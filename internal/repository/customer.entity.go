package repository

import (
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
)

type CustomerEntity struct {
	ID                   int64      `db:"id"                      gorm:"primaryKey;autoIncrement;column:id"`
	Mobile               string     `db:"mobile"                  gorm:"column:mobile;not null;index"`
	SMSOptIn             bool       `db:"sms_opt_in"              gorm:"column:sms_opt_in;not null"`
	SMSStatus            string     `db:"sms_status"              gorm:"column:sms_status;not null"`
	SMSDeliveryFailures  int        `db:"sms_delivery_failures"   gorm:"column:sms_delivery_failures;not null"`
	LastSMSFailureReason *string    `db:"last_sms_failure_reason" gorm:"column:last_sms_failure_reason"`
	SMSDeactivatedAt     *time.Time `db:"sms_deactivated_at"      gorm:"column:sms_deactivated_at"`
}

func (CustomerEntity) TableName() string {
	return "customers"
}

func toCustomerEntity(m *model.Customer) *CustomerEntity {
	if m == nil {
		return nil
	}
	return &CustomerEntity{
		ID:                   m.ID,
		Mobile:               m.Mobile,
		SMSOptIn:             m.SMSOptIn,
		SMSStatus:            string(m.SMSStatus),
		SMSDeliveryFailures:  m.SMSDeliveryFailures,
		LastSMSFailureReason: m.LastSMSFailureReason,
		SMSDeactivatedAt:     m.SMSDeactivatedAt,
	}
}

func toCustomerModel(e *CustomerEntity) *model.Customer {
	if e == nil {
		return nil
	}
	return &model.Customer{
		ID:                   e.ID,
		Mobile:               e.Mobile,
		SMSOptIn:             e.SMSOptIn,
		SMSStatus:            model.SMSStatus(e.SMSStatus),
		SMSDeliveryFailures:  e.SMSDeliveryFailures,
		LastSMSFailureReason: e.LastSMSFailureReason,
		SMSDeactivatedAt:     e.SMSDeactivatedAt,
	}
}
