package repository

import (
	"context"
	"errors"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrClaimNotFound = errors.New("idempotency claim not found")
)

// DefaultClaimTTL is the worst-case window a stuck claim blocks a retry.
// Long on purpose: a stuck claim is recoverable by an operator, a duplicate
// customer-facing send is not.
const DefaultClaimTTL = 45 * 24 * time.Hour

// IdempotencyRepository implements the database-backed claim table that
// serializes side-effecting operations across processes.
type IdempotencyRepository struct {
	*pg.DB
	now func() time.Time
}

func NewIdempotencyRepository(db *pg.DB) *IdempotencyRepository {
	return &IdempotencyRepository{
		DB:  db,
		now: time.Now,
	}
}

// Claim tries to take ownership of key for a request identified by hash.
// The outcome tells the caller what to do: claimed = proceed, replay = another
// attempt owns or completed this key, conflict = same key arrived with a
// different payload and must not be silently overwritten.
func (r *IdempotencyRepository) Claim(ctx context.Context, key, requestHash string, ttl time.Duration) (model.ClaimOutcome, error) {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	now := r.now().UTC()

	entity := &IdempotencyKeyEntity{
		Key:         key,
		RequestHash: requestHash,
		State:       string(model.ClaimStateClaimed),
		ExpiresAt:   now.Add(ttl),
	}

	result := r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(entity)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected > 0 {
		return model.ClaimOutcomeClaimed, nil
	}

	// Key exists. Decide between replay, conflict, and expired reclaim.
	var existing IdempotencyKeyEntity
	if err := r.Read(ctx).WithContext(ctx).Where("key = ?", key).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Row vanished between insert and read; treat as replay and let
			// the next run sort it out.
			return model.ClaimOutcomeReplay, nil
		}
		return "", err
	}

	if existing.ExpiresAt.Before(now) {
		// Expired claim: reclaim with compare-and-set on the old expiry so two
		// concurrent reclaims cannot both win.
		res := r.Write(ctx).WithContext(ctx).
			Model(&IdempotencyKeyEntity{}).
			Where("key = ? AND expires_at = ?", key, existing.ExpiresAt).
			Updates(map[string]interface{}{
				"request_hash": requestHash,
				"state":        string(model.ClaimStateClaimed),
				"result":       "",
				"expires_at":   now.Add(ttl),
				"completed_at": nil,
			})
		if res.Error != nil {
			return "", res.Error
		}
		if res.RowsAffected > 0 {
			return model.ClaimOutcomeClaimed, nil
		}
		return model.ClaimOutcomeReplay, nil
	}

	if existing.RequestHash != requestHash {
		return model.ClaimOutcomeConflict, nil
	}

	return model.ClaimOutcomeReplay, nil
}

// Persist finalizes a claim after the side effect ran. state must be
// processed or processed_with_error; the distinction preserves whether the
// bookkeeping after a successful send also succeeded.
func (r *IdempotencyRepository) Persist(ctx context.Context, key, requestHash, result string, state model.ClaimState) error {
	now := r.now().UTC()
	res := r.Write(ctx).WithContext(ctx).
		Model(&IdempotencyKeyEntity{}).
		Where("key = ? AND request_hash = ?", key, requestHash).
		Updates(map[string]interface{}{
			"state":        string(state),
			"result":       result,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimNotFound
	}
	return nil
}

// Release deletes a claim whose side effect never happened, allowing a clean
// retry. Finalized claims are not releasable.
func (r *IdempotencyRepository) Release(ctx context.Context, key, requestHash string) error {
	res := r.Write(ctx).WithContext(ctx).
		Where("key = ? AND request_hash = ? AND state = ?", key, requestHash, string(model.ClaimStateClaimed)).
		Delete(&IdempotencyKeyEntity{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrClaimNotFound
	}
	return nil
}

// Get returns the stored claim, mainly for operators and tests.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*model.IdempotencyClaim, error) {
	var entity IdempotencyKeyEntity
	err := r.Read(ctx).WithContext(ctx).Where("key = ?", key).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, err
	}
	return toIdempotencyClaimModel(&entity), nil
}

// PurgeExpired removes rows past their TTL. Returns the number deleted.
func (r *IdempotencyRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.Write(ctx).WithContext(ctx).
		Where("expires_at < ?", r.now().UTC()).
		Delete(&IdempotencyKeyEntity{})
	return res.RowsAffected, res.Error
}
