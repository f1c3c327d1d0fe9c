package repository

import (
	"context"
	"errors"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrReminderNotFound = errors.New("invoice reminder not found")
)

type ReminderRepository struct {
	*pg.DB
}

func NewReminderRepository(db *pg.DB) *ReminderRepository {
	return &ReminderRepository{
		db,
	}
}

func (r *ReminderRepository) Create(ctx context.Context, reminder *model.InvoiceReminder) (*model.InvoiceReminder, error) {
	if err := reminder.Validate(); err != nil {
		return nil, err
	}
	entity := toInvoiceReminderEntity(reminder)
	if entity.Status == "" {
		entity.Status = string(model.ReminderStatusPending)
	}
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toInvoiceReminderModel(entity), nil
}

// ListDue returns pending reminders whose scheduled time has passed, oldest
// first, capped at limit.
func (r *ReminderRepository) ListDue(ctx context.Context, limit int, now time.Time) ([]*model.InvoiceReminder, error) {
	if limit <= 0 {
		limit = 100
	}
	var entities []*InvoiceReminderEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ?", string(model.ReminderStatusPending)).
		Where("scheduled_for <= ?", now).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toInvoiceReminderModels(entities), nil
}

func (r *ReminderRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&InvoiceReminderEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(model.ReminderStatusSent),
			"sent_at":    sentAt,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// RecordFailure bumps the attempt counter and stores the error. The reminder
// stays pending so the next scheduled run retries it; callers pass final=true
// to park it as failed instead.
func (r *ReminderRepository) RecordFailure(ctx context.Context, id int64, reason string, final bool) error {
	fields := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": reason,
	}
	if final {
		fields["status"] = string(model.ReminderStatusFailed)
	}
	res := r.Write(ctx).WithContext(ctx).
		Model(&InvoiceReminderEntity{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrReminderNotFound
	}
	return nil
}

func (r *ReminderRepository) GetByID(ctx context.Context, id int64) (*model.InvoiceReminder, error) {
	var entity InvoiceReminderEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReminderNotFound
		}
		return nil, err
	}
	return toInvoiceReminderModel(&entity), nil
}

// EmailLogRepository records sent invoice emails and answers the
// "did we already email this subject to this recipient" dedup check.
type EmailLogRepository struct {
	*pg.DB
}

func NewEmailLogRepository(db *pg.DB) *EmailLogRepository {
	return &EmailLogRepository{
		db,
	}
}

func (r *EmailLogRepository) Create(ctx context.Context, log *model.EmailLog) (*model.EmailLog, error) {
	entity := &EmailLogEntity{
		InvoiceID: log.InvoiceID,
		Recipient: log.Recipient,
		Subject:   log.Subject,
		Status:    log.Status,
	}
	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toEmailLogModel(entity), nil
}

func (r *EmailLogRepository) ExistsForRecipientSubject(ctx context.Context, recipient, subject string) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&EmailLogEntity{}).
		Where("recipient = ? AND subject = ?", recipient, subject).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
