package repository

import (
	"strings"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
)

type InvoiceReminderEntity struct {
	ID             int64      `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	InvoiceID      int64      `db:"invoice_id"      gorm:"column:invoice_id;not null;index"`
	InvoiceNumber  string     `db:"invoice_number"  gorm:"column:invoice_number;not null"`
	Type           string     `db:"type"            gorm:"column:type;not null"`
	RecipientEmail string     `db:"recipient_email" gorm:"column:recipient_email;not null"`
	CC             string     `db:"cc"              gorm:"column:cc"`
	Subject        string     `db:"subject"         gorm:"column:subject;not null"`
	Body           string     `db:"body"            gorm:"column:body"`
	Status         string     `db:"status"          gorm:"column:status;not null;index"`
	Attempts       int        `db:"attempts"        gorm:"column:attempts;not null"`
	ScheduledFor   time.Time  `db:"scheduled_for"   gorm:"column:scheduled_for;not null;index"`
	SentAt         *time.Time `db:"sent_at"         gorm:"column:sent_at"`
	LastError      string     `db:"last_error"      gorm:"column:last_error"`
	CreatedAt      time.Time  `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
}

func (InvoiceReminderEntity) TableName() string {
	return "invoice_reminders"
}

func toInvoiceReminderEntity(m *model.InvoiceReminder) *InvoiceReminderEntity {
	if m == nil {
		return nil
	}
	return &InvoiceReminderEntity{
		ID:             m.ID,
		InvoiceID:      m.InvoiceID,
		InvoiceNumber:  m.InvoiceNumber,
		Type:           string(m.Type),
		RecipientEmail: m.RecipientEmail,
		CC:             strings.Join(m.CC, ","),
		Subject:        m.Subject,
		Body:           m.Body,
		Status:         string(m.Status),
		Attempts:       m.Attempts,
		ScheduledFor:   m.ScheduledFor,
		SentAt:         m.SentAt,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
	}
}

func toInvoiceReminderModel(e *InvoiceReminderEntity) *model.InvoiceReminder {
	if e == nil {
		return nil
	}
	var cc []string
	if e.CC != "" {
		cc = strings.Split(e.CC, ",")
	}
	return &model.InvoiceReminder{
		ID:             e.ID,
		InvoiceID:      e.InvoiceID,
		InvoiceNumber:  e.InvoiceNumber,
		Type:           model.ReminderType(e.Type),
		RecipientEmail: e.RecipientEmail,
		CC:             cc,
		Subject:        e.Subject,
		Body:           e.Body,
		Status:         model.ReminderStatus(e.Status),
		Attempts:       e.Attempts,
		ScheduledFor:   e.ScheduledFor,
		SentAt:         e.SentAt,
		LastError:      e.LastError,
		CreatedAt:      e.CreatedAt,
	}
}

func toInvoiceReminderModels(entities []*InvoiceReminderEntity) []*model.InvoiceReminder {
	if entities == nil {
		return nil
	}
	models := make([]*model.InvoiceReminder, len(entities))
	for i, e := range entities {
		models[i] = toInvoiceReminderModel(e)
	}
	return models
}

type EmailLogEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	InvoiceID int64     `db:"invoice_id" gorm:"column:invoice_id;not null;index"`
	Recipient string    `db:"recipient"  gorm:"column:recipient;not null;index"`
	Subject   string    `db:"subject"    gorm:"column:subject;not null"`
	Status    string    `db:"status"     gorm:"column:status;not null"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (EmailLogEntity) TableName() string {
	return "invoice_email_logs"
}

func toEmailLogModel(e *EmailLogEntity) *model.EmailLog {
	if e == nil {
		return nil
	}
	return &model.EmailLog{
		ID:        e.ID,
		InvoiceID: e.InvoiceID,
		Recipient: e.Recipient,
		Subject:   e.Subject,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
	}
}
