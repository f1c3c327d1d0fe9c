package model

import (
	"errors"
	"time"
)

type ReminderType string

const (
	ReminderTypeDueSoon ReminderType = "due_soon"
	ReminderTypeOverdue ReminderType = "overdue"
	ReminderTypeFinal   ReminderType = "final"
)

type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "pending"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusFailed    ReminderStatus = "failed"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// InvoiceReminder is a scheduled reminder email for an invoice. Rows are
// created by scheduling logic and mutated only by the reminder runner; they
// are never hard-deleted outside explicit cleanup.
type InvoiceReminder struct {
	ID             int64          `json:"id"`
	InvoiceID      int64          `json:"invoice_id"`
	InvoiceNumber  string         `json:"invoice_number"`
	Type           ReminderType   `json:"type"`
	RecipientEmail string         `json:"recipient_email"`
	CC             []string       `json:"cc,omitempty"`
	Subject        string         `json:"subject"`
	Body           string         `json:"body"`
	Status         ReminderStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	ScheduledFor   time.Time      `json:"scheduled_for"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (r *InvoiceReminder) Validate() error {
	if r.InvoiceID == 0 {
		return errors.New("invoice_id is required")
	}
	if r.RecipientEmail == "" {
		return errors.New("recipient_email is required")
	}
	if r.Subject == "" {
		return errors.New("subject is required")
	}
	switch r.Type {
	case ReminderTypeDueSoon, ReminderTypeOverdue, ReminderTypeFinal:
	default:
		return errors.New("unknown reminder type")
	}
	return nil
}

// EmailLog records one sent invoice email, used for per-recipient dedup by
// subject before a reminder goes out.
type EmailLog struct {
	ID        int64     `json:"id"`
	InvoiceID int64     `json:"invoice_id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
