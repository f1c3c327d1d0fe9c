package repository

import (
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
)

type DeliveryAuditEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	MessageID     int64     `db:"message_id"     gorm:"column:message_id;not null;index"`
	OldStatus     string    `db:"old_status"     gorm:"column:old_status;not null"`
	NewStatus     string    `db:"new_status"     gorm:"column:new_status;not null"`
	CarrierStatus string    `db:"carrier_status" gorm:"column:carrier_status"`
	Applied       bool      `db:"applied"        gorm:"column:applied;not null"`
	Note          string    `db:"note"           gorm:"column:note"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
}

func (DeliveryAuditEntity) TableName() string {
	return "message_delivery_audit"
}

func toDeliveryAuditEntity(m *model.DeliveryAudit) *DeliveryAuditEntity {
	if m == nil {
		return nil
	}
	return &DeliveryAuditEntity{
		ID:            m.ID,
		MessageID:     m.MessageID,
		OldStatus:     string(m.OldStatus),
		NewStatus:     string(m.NewStatus),
		CarrierStatus: m.CarrierStatus,
		Applied:       m.Applied,
		Note:          m.Note,
		CreatedAt:     m.CreatedAt,
	}
}

func toDeliveryAuditModel(e *DeliveryAuditEntity) *model.DeliveryAudit {
	if e == nil {
		return nil
	}
	return &model.DeliveryAudit{
		ID:            e.ID,
		MessageID:     e.MessageID,
		OldStatus:     model.MessageStatus(e.OldStatus),
		NewStatus:     model.MessageStatus(e.NewStatus),
		CarrierStatus: e.CarrierStatus,
		Applied:       e.Applied,
		Note:          e.Note,
		CreatedAt:     e.CreatedAt,
	}
}

func toDeliveryAuditModels(entities []*DeliveryAuditEntity) []*model.DeliveryAudit {
	if entities == nil {
		return nil
	}
	models := make([]*model.DeliveryAudit, len(entities))
	for i, e := range entities {
		models[i] = toDeliveryAuditModel(e)
	}
	return models
}
