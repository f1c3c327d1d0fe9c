package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/redis"
)

var (
	ErrAlreadySent         = errors.New("message already submitted to carrier")
	ErrLockHeld            = errors.New("send lock held by another consumer")
	ErrMaxAttemptsExceeded = errors.New("maximum send attempts exceeded")
)

type SendGuardConfig struct {
	// LockTTL bounds how long a crashed consumer can block a message.
	LockTTL time.Duration

	// SentTTL is how long the sent marker survives. Within this window a
	// redelivered queue entry is dropped instead of re-submitted.
	SentTTL time.Duration

	MaxAttempts int

	AttemptKeyPrefix string
	LockKeyPrefix    string
	SentKeyPrefix    string
}

func DefaultSendGuardConfig() SendGuardConfig {
	return SendGuardConfig{
		LockTTL:          30 * time.Second,
		SentTTL:          24 * time.Hour,
		MaxAttempts:      3,
		AttemptKeyPrefix: "sms:attempts:",
		LockKeyPrefix:    "sms:send_lock:",
		SentKeyPrefix:    "sms:sent:",
	}
}

// SendGuard is a redis-backed mutex around carrier submission. It keeps two
// concurrent consumers from submitting the same message and caps how many
// times a failing message is retried.
type SendGuard struct {
	redis  redis.RedisAdapter
	config SendGuardConfig
}

func NewSendGuard(redisAdapter redis.RedisAdapter, config SendGuardConfig) *SendGuard {
	return &SendGuard{
		redis:  redisAdapter,
		config: config,
	}
}

// SendAttempt is a held send lock plus the attempt history for the message.
type SendAttempt struct {
	MessageID    string
	Attempt      int
	lockAcquired bool
}

func (g *SendGuard) AcquireSendLock(ctx context.Context, messageID string) (*SendAttempt, error) {
	sentKey := g.config.SentKeyPrefix + messageID
	exists, err := g.redis.Exist(sentKey)
	if err != nil {
		logger.Warn("Failed to check sent marker", "message_id", messageID, "error", err)
		// Better to risk a duplicate than to stall the pipeline.
	} else if exists > 0 {
		return nil, ErrAlreadySent
	}

	attemptKey := g.config.AttemptKeyPrefix + messageID
	attemptBytes, err := g.redis.Get(attemptKey)
	attempt := 0
	if err == nil && len(attemptBytes) > 0 {
		fmt.Sscanf(string(attemptBytes), "%d", &attempt)
	}

	if attempt >= g.config.MaxAttempts {
		return nil, fmt.Errorf("%w: message_id=%s, attempts=%d", ErrMaxAttemptsExceeded, messageID, attempt)
	}

	lockKey := g.config.LockKeyPrefix + messageID
	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))

	acquired, err := g.redis.SetNX(lockKey, lockValue, g.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockHeld, err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}

	return &SendAttempt{
		MessageID:    messageID,
		Attempt:      attempt + 1,
		lockAcquired: true,
	}, nil
}

// MarkSendSuccess sets the sent marker and drops the lock and attempt
// counter. After this, redeliveries of the same message are acked without
// touching the carrier.
func (g *SendGuard) MarkSendSuccess(ctx context.Context, a *SendAttempt) error {
	sentKey := g.config.SentKeyPrefix + a.MessageID
	if err := g.redis.Set(sentKey, []byte("1"), g.config.SentTTL); err != nil {
		return fmt.Errorf("failed to set sent marker: %w", err)
	}

	if err := g.redis.Del(g.config.LockKeyPrefix + a.MessageID); err != nil {
		logger.Warn("Failed to clean up send lock", "message_id", a.MessageID, "error", err)
	}
	if err := g.redis.Del(g.config.AttemptKeyPrefix + a.MessageID); err != nil {
		logger.Warn("Failed to clean up attempt counter", "message_id", a.MessageID, "error", err)
	}
	a.lockAcquired = false
	return nil
}

// MarkSendFailure bumps the attempt counter and releases the lock so the
// next queue redelivery can retry.
func (g *SendGuard) MarkSendFailure(ctx context.Context, a *SendAttempt, reason error) error {
	attemptKey := g.config.AttemptKeyPrefix + a.MessageID
	if err := g.redis.Set(attemptKey, []byte(fmt.Sprintf("%d", a.Attempt)), g.config.SentTTL); err != nil {
		logger.Error("Failed to bump attempt counter", "message_id", a.MessageID, "error", err)
	}

	if err := g.redis.Del(g.config.LockKeyPrefix + a.MessageID); err != nil {
		logger.Warn("Failed to release send lock", "message_id", a.MessageID, "error", err)
	}
	a.lockAcquired = false

	logger.Warn("Carrier submission failed, will retry",
		"message_id", a.MessageID,
		"attempt", a.Attempt,
		"max_attempts", g.config.MaxAttempts,
		"reason", reason)
	return nil
}

func (g *SendGuard) ReleaseSendLock(ctx context.Context, a *SendAttempt) error {
	if a == nil || !a.lockAcquired {
		return nil
	}

	if err := g.redis.Del(g.config.LockKeyPrefix + a.MessageID); err != nil {
		logger.Warn("Failed to release send lock", "message_id", a.MessageID, "error", err)
		return err
	}
	a.lockAcquired = false
	return nil
}

func (g *SendGuard) AttemptCount(ctx context.Context, messageID string) (int, error) {
	attemptBytes, err := g.redis.Get(g.config.AttemptKeyPrefix + messageID)
	if err != nil {
		if err == redis.NilError {
			return 0, nil
		}
		return 0, err
	}

	attempt := 0
	fmt.Sscanf(string(attemptBytes), "%d", &attempt)
	return attempt, nil
}

func (g *SendGuard) WasSent(ctx context.Context, messageID string) (bool, error) {
	exists, err := g.redis.Exist(g.config.SentKeyPrefix + messageID)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
