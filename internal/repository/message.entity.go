package repository

import (
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
)

type MessageEntity struct {
	ID            int64      `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	Direction     string     `db:"direction"      gorm:"column:direction;not null;index"`
	CustomerID    *int64     `db:"customer_id"    gorm:"column:customer_id;index"`
	Mobile        string     `db:"mobile"         gorm:"column:mobile;not null"`
	Body          string     `db:"body"           gorm:"column:body;not null"`
	Status        string     `db:"status"         gorm:"column:status;not null;index"`
	CarrierStatus string     `db:"carrier_status" gorm:"column:carrier_status"`
	CarrierSID    string     `db:"carrier_sid"    gorm:"column:carrier_sid;index"`
	ErrorCode     *int       `db:"error_code"     gorm:"column:error_code"`
	ErrorMessage  string     `db:"error_message"  gorm:"column:error_message"`
	CreatedAt     time.Time  `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
	SentAt        *time.Time `db:"sent_at"        gorm:"column:sent_at"`
	DeliveredAt   *time.Time `db:"delivered_at"   gorm:"column:delivered_at"`
	FailedAt      *time.Time `db:"failed_at"      gorm:"column:failed_at"`
}

func (MessageEntity) TableName() string {
	return "messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	if m == nil {
		return nil
	}
	return &MessageEntity{
		ID:            m.ID,
		Direction:     string(m.Direction),
		CustomerID:    m.CustomerID,
		Mobile:        m.Mobile,
		Body:          m.Body,
		Status:        string(m.Status),
		CarrierStatus: m.CarrierStatus,
		CarrierSID:    m.CarrierSID,
		ErrorCode:     m.ErrorCode,
		ErrorMessage:  m.ErrorMessage,
		CreatedAt:     m.CreatedAt,
		SentAt:        m.SentAt,
		DeliveredAt:   m.DeliveredAt,
		FailedAt:      m.FailedAt,
	}
}

func toMessageModel(e *MessageEntity) *model.Message {
	if e == nil {
		return nil
	}
	return &model.Message{
		ID:            e.ID,
		Direction:     model.MessageDirection(e.Direction),
		CustomerID:    e.CustomerID,
		Mobile:        e.Mobile,
		Body:          e.Body,
		Status:        model.MessageStatus(e.Status),
		CarrierStatus: e.CarrierStatus,
		CarrierSID:    e.CarrierSID,
		ErrorCode:     e.ErrorCode,
		ErrorMessage:  e.ErrorMessage,
		CreatedAt:     e.CreatedAt,
		SentAt:        e.SentAt,
		DeliveredAt:   e.DeliveredAt,
		FailedAt:      e.FailedAt,
	}
}

func toMessageModels(entities []*MessageEntity) []*model.Message {
	if entities == nil {
		return nil
	}
	models := make([]*model.Message, len(entities))
	for i, e := range entities {
		models[i] = toMessageModel(e)
	}
	return models
}
