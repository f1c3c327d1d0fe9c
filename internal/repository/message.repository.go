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
	// ErrNotFound is returned when a message does not exist.
	ErrNotFound = errors.New("message not found")
	// ErrStaleStatus is returned when a compare-and-set status write matched
	// no row, meaning another run already advanced the message.
	ErrStaleStatus = errors.New("message status already advanced")
)

var nonTerminalStatuses = []string{
	string(model.MessageStatusQueued),
	string(model.MessageStatusSending),
	string(model.MessageStatusSent),
}

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{
		db,
	}
}

func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	entity := toMessageEntity(msg)
	if entity.Direction == "" {
		entity.Direction = string(model.DirectionOutbound)
	}
	if entity.Status == "" {
		entity.Status = string(model.MessageStatusQueued)
	}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toMessageModel(entity), nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return toMessageModel(&entity), nil
}

func (r *MessageRepository) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&MessageEntity{})

	if f.CustomerID != nil {
		q = q.Where("customer_id = ?", *f.CustomerID)
	}
	if f.Mobile != nil && *f.Mobile != "" {
		q = q.Where("mobile = ?", *f.Mobile)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*MessageEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toMessageModels(entities), total, nil
}

// ListStuckOutbound returns up to limit outbound messages that are still
// non-terminal, carry a carrier SID, and were created before staleBefore.
// Oldest first so long-stuck messages never starve behind fresh ones.
func (r *MessageRepository) ListStuckOutbound(ctx context.Context, limit int, staleBefore time.Time) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	var entities []*MessageEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("direction = ?", string(model.DirectionOutbound)).
		Where("status IN ?", nonTerminalStatuses).
		Where("carrier_sid <> ''").
		Where("created_at < ?", staleBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}

	return toMessageModels(entities), nil
}

// ApplyStatusUpdate writes a reconciled status with compare-and-set semantics:
// the row is only touched while it still holds expectedOld. Concurrent runs
// converge because the loser's write matches no row.
func (r *MessageRepository) ApplyStatusUpdate(ctx context.Context, id int64, expectedOld model.MessageStatus, u model.StatusUpdate) error {
	fields := map[string]interface{}{
		"status":         string(u.Status),
		"carrier_status": u.CarrierStatus,
	}
	if u.SentAt != nil {
		fields["sent_at"] = *u.SentAt
	}
	if u.DeliveredAt != nil {
		fields["delivered_at"] = *u.DeliveredAt
	}
	if u.FailedAt != nil {
		fields["failed_at"] = *u.FailedAt
	}
	if u.ErrorCode != nil {
		fields["error_code"] = *u.ErrorCode
	}
	if u.ErrorMessage != "" {
		fields["error_message"] = u.ErrorMessage
	}

	result := r.Write(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("id = ?", id).
		Where("status = ?", string(expectedOld)).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// MarkCarrierAccepted records the carrier's acknowledgement of a send: the
// provider-assigned SID, the raw status it returned, and when we handed the
// message over.
func (r *MessageRepository) MarkCarrierAccepted(ctx context.Context, id int64, sid, carrierStatus string, sentAt time.Time) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&MessageEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"carrier_sid":    sid,
			"carrier_status": carrierStatus,
			"status":         string(model.MapCarrierStatus(carrierStatus)),
			"sent_at":        sentAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
