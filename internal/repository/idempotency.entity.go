package repository

import (
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
)

type IdempotencyKeyEntity struct {
	ID          int64      `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	Key         string     `db:"key"          gorm:"column:key;size:255;not null;uniqueIndex"`
	RequestHash string     `db:"request_hash" gorm:"column:request_hash;size:64;not null"`
	State       string     `db:"state"        gorm:"column:state;not null"`
	Result      string     `db:"result"       gorm:"column:result"`
	ExpiresAt   time.Time  `db:"expires_at"   gorm:"column:expires_at;not null;index"`
	CreatedAt   time.Time  `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
	CompletedAt *time.Time `db:"completed_at" gorm:"column:completed_at"`
}

func (IdempotencyKeyEntity) TableName() string {
	return "idempotency_keys"
}

func toIdempotencyClaimModel(e *IdempotencyKeyEntity) *model.IdempotencyClaim {
	if e == nil {
		return nil
	}
	return &model.IdempotencyClaim{
		ID:          e.ID,
		Key:         e.Key,
		RequestHash: e.RequestHash,
		State:       model.ClaimState(e.State),
		Result:      e.Result,
		ExpiresAt:   e.ExpiresAt,
		CreatedAt:   e.CreatedAt,
		CompletedAt: e.CompletedAt,
	}
}
