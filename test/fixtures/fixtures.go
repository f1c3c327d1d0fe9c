package fixtures

import (
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
)

var (
	TestCustomerActive = model.Customer{
		ID:        1,
		Mobile:    "+447700900001",
		SMSOptIn:  true,
		SMSStatus: model.SMSStatusActive,
	}

	TestCustomerOptedOut = model.Customer{
		ID:        2,
		Mobile:    "+447700900002",
		SMSOptIn:  true,
		SMSStatus: model.SMSStatusOptedOut,
	}

	TestCustomerDeactivated = model.Customer{
		ID:                  3,
		Mobile:              "+447700900003",
		SMSOptIn:            true,
		SMSStatus:           model.SMSStatusDeactivated,
		SMSDeliveryFailures: model.MaxDeliveryFailures + 1,
	}

	TestCustomerNoOptIn = model.Customer{
		ID:        4,
		Mobile:    "+447700900004",
		SMSOptIn:  false,
		SMSStatus: model.SMSStatusActive,
	}
)

func NewTestMessage(customerID int64, mobile, body string) *model.Message {
	return &model.Message{
		Direction:  model.DirectionOutbound,
		CustomerID: &customerID,
		Mobile:     mobile,
		Body:       body,
		Status:     model.MessageStatusQueued,
		CreatedAt:  time.Now(),
	}
}

func NewTestMessageCreateRequest(customerID int64, mobile, body string) model.MessageCreateRequest {
	return model.MessageCreateRequest{
		CustomerID: customerID,
		Mobile:     mobile,
		Body:       body,
	}
}

func NewTestReminder(invoiceID int64, reminderType model.ReminderType, recipient string) *model.InvoiceReminder {
	return &model.InvoiceReminder{
		InvoiceID:      invoiceID,
		InvoiceNumber:  "INV-1001",
		Type:           reminderType,
		RecipientEmail: recipient,
		Subject:        "Invoice INV-1001 payment reminder",
		Body:           "Your invoice INV-1001 is due shortly.",
		Status:         model.ReminderStatusPending,
		ScheduledFor:   time.Now().Add(-time.Minute),
		CreatedAt:      time.Now(),
	}
}
