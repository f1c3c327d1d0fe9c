package model

import "time"

// SMSStatus is the messaging eligibility of a customer.
type SMSStatus string

const (
	SMSStatusActive      SMSStatus = "active"
	SMSStatusDeactivated SMSStatus = "deactivated"
	SMSStatusOptedOut    SMSStatus = "opted_out"
)

// MaxDeliveryFailures is the consecutive-failure count beyond which a
// customer's messaging is auto-deactivated.
const MaxDeliveryFailures = 3

type Customer struct {
	ID                   int64      `json:"id"`
	Mobile               string     `json:"mobile"`
	SMSOptIn             bool       `json:"sms_opt_in"`
	SMSStatus            SMSStatus  `json:"sms_status"`
	SMSDeliveryFailures  int        `json:"sms_delivery_failures"`
	LastSMSFailureReason *string    `json:"last_sms_failure_reason,omitempty"`
	SMSDeactivatedAt     *time.Time `json:"sms_deactivated_at,omitempty"`
}

// CanReceiveSMS reports whether an outbound message may be sent to this
// customer right now.
func (c *Customer) CanReceiveSMS() bool {
	return c.SMSOptIn && c.SMSStatus == SMSStatusActive
}
