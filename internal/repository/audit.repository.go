package repository

import (
	"context"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/pg"
)

// DeliveryAuditRepository is append-only: rows are never updated or deleted.
type DeliveryAuditRepository struct {
	*pg.DB
}

func NewDeliveryAuditRepository(db *pg.DB) *DeliveryAuditRepository {
	return &DeliveryAuditRepository{
		db,
	}
}

func (r *DeliveryAuditRepository) Create(ctx context.Context, a *model.DeliveryAudit) (*model.DeliveryAudit, error) {
	entity := toDeliveryAuditEntity(a)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toDeliveryAuditModel(entity), nil
}

func (r *DeliveryAuditRepository) ListByMessage(ctx context.Context, messageID int64) ([]*model.DeliveryAudit, error) {
	var entities []*DeliveryAuditEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toDeliveryAuditModels(entities), nil
}
