package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
)

// Mock Redis adapter for testing
type mockRedisAdapter struct {
	data map[string][]byte
	ttls map[string]time.Time
}

func newMockRedisAdapter() *mockRedisAdapter {
	return &mockRedisAdapter{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Time),
	}
}

func (m *mockRedisAdapter) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	if _, exists := m.data[key]; exists {
		return false, nil
	}
	m.data[key] = value
	if ttl > 0 {
		m.ttls[key] = time.Now().Add(ttl)
	}
	return true, nil
}

func (m *mockRedisAdapter) Set(key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	if ttl > 0 {
		m.ttls[key] = time.Now().Add(ttl)
	}
	return nil
}

func (m *mockRedisAdapter) Get(key string) ([]byte, error) {
	if ttl, ok := m.ttls[key]; ok && time.Now().After(ttl) {
		delete(m.data, key)
		delete(m.ttls, key)
		return nil, redis.NilError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, redis.NilError
}

func (m *mockRedisAdapter) Del(key string) error {
	delete(m.data, key)
	delete(m.ttls, key)
	return nil
}

func (m *mockRedisAdapter) Exist(key string) (int64, error) {
	if ttl, ok := m.ttls[key]; ok && time.Now().After(ttl) {
		delete(m.data, key)
		delete(m.ttls, key)
		return 0, nil
	}
	if _, ok := m.data[key]; ok {
		return 1, nil
	}
	return 0, nil
}

// Stub implementations for methods the send guard does not use
func (m *mockRedisAdapter) Client() goredis.UniversalClient { return nil }
func (m *mockRedisAdapter) XAdd(key string, values map[string]interface{}) (string, error) {
	return "", nil
}
func (m *mockRedisAdapter) XReadGroup(group, consumer, key, id string, count int64) ([]redis.StreamMessage, error) {
	return nil, nil
}
func (m *mockRedisAdapter) XAck(key, group string, ids ...string) error           { return nil }
func (m *mockRedisAdapter) XGroupCreateMkStream(key, group, start string) error   { return nil }
func (m *mockRedisAdapter) XLen(key string) (int64, error)                        { return 0, nil }
func (m *mockRedisAdapter) XTrimApprox(key string, maxLen int64) error            { return nil }
func (m *mockRedisAdapter) XPending(key, group string) (*goredis.XPending, error) { return nil, nil }
func (m *mockRedisAdapter) XPendingExt(key, group string, start, end string, count int64) ([]goredis.XPendingExt, error) {
	return nil, nil
}
func (m *mockRedisAdapter) XClaim(key, group, consumer string, minIdle time.Duration, ids ...string) ([]redis.StreamMessage, error) {
	return nil, nil
}

func TestSendGuard_AcquireSendLock_FirstAttempt(t *testing.T) {
	guard := NewSendGuard(newMockRedisAdapter(), DefaultSendGuardConfig())

	ctx := context.Background()
	attempt, err := guard.AcquireSendLock(ctx, "msg-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if attempt == nil {
		t.Fatal("Expected send attempt, got nil")
	}
	if attempt.MessageID != "msg-1" {
		t.Errorf("Expected message ID msg-1, got %s", attempt.MessageID)
	}
	if attempt.Attempt != 1 {
		t.Errorf("Expected attempt 1, got %d", attempt.Attempt)
	}
	if !attempt.lockAcquired {
		t.Error("Expected lock to be acquired")
	}
}

func TestSendGuard_AcquireSendLock_Concurrent(t *testing.T) {
	guard := NewSendGuard(newMockRedisAdapter(), DefaultSendGuardConfig())

	ctx := context.Background()
	first, err := guard.AcquireSendLock(ctx, "msg-2")
	if err != nil {
		t.Fatalf("First lock acquisition failed: %v", err)
	}

	second, err := guard.AcquireSendLock(ctx, "msg-2")
	if !errors.Is(err, ErrLockHeld) {
		t.Errorf("Expected ErrLockHeld, got: %v", err)
	}
	if second != nil {
		t.Error("Expected nil attempt for second consumer")
	}
	if !first.lockAcquired {
		t.Error("First consumer should still hold the lock")
	}
}

func TestSendGuard_MarkSendSuccess(t *testing.T) {
	guard := NewSendGuard(newMockRedisAdapter(), DefaultSendGuardConfig())

	ctx := context.Background()
	attempt, err := guard.AcquireSendLock(ctx, "msg-3")
	if err != nil {
		t.Fatalf("Lock acquisition failed: %v", err)
	}

	if err := guard.MarkSendSuccess(ctx, attempt); err != nil {
		t.Fatalf("MarkSendSuccess failed: %v", err)
	}

	sent, err := guard.WasSent(ctx, "msg-3")
	if err != nil {
		t.Fatalf("WasSent check failed: %v", err)
	}
	if !sent {
		t.Error("Message should be marked as sent")
	}

	// A redelivery of the same message must not re-submit.
	_, err = guard.AcquireSendLock(ctx, "msg-3")
	if !errors.Is(err, ErrAlreadySent) {
		t.Errorf("Expected ErrAlreadySent, got: %v", err)
	}
}

func TestSendGuard_MarkSendFailure_BumpsAttempt(t *testing.T) {
	guard := NewSendGuard(newMockRedisAdapter(), DefaultSendGuardConfig())

	ctx := context.Background()
	first, err := guard.AcquireSendLock(ctx, "msg-4")
	if err != nil {
		t.Fatalf("First lock acquisition failed: %v", err)
	}
	if first.Attempt != 1 {
		t.Errorf("Expected attempt 1, got %d", first.Attempt)
	}

	if err := guard.MarkSendFailure(ctx, first, errors.New("carrier down")); err != nil {
		t.Fatalf("MarkSendFailure failed: %v", err)
	}

	second, err := guard.AcquireSendLock(ctx, "msg-4")
	if err != nil {
		t.Fatalf("Second lock acquisition failed: %v", err)
	}
	if second.Attempt != 2 {
		t.Errorf("Expected attempt 2, got %d", second.Attempt)
	}
}

func TestSendGuard_MaxAttemptsExceeded(t *testing.T) {
	config := DefaultSendGuardConfig()
	config.MaxAttempts = 2
	guard := NewSendGuard(newMockRedisAdapter(), config)

	ctx := context.Background()
	for i := 0; i < config.MaxAttempts; i++ {
		attempt, err := guard.AcquireSendLock(ctx, "msg-5")
		if err != nil {
			t.Fatalf("Lock acquisition %d failed: %v", i, err)
		}
		if err := guard.MarkSendFailure(ctx, attempt, nil); err != nil {
			t.Fatalf("MarkSendFailure %d failed: %v", i, err)
		}
	}

	attempt, err := guard.AcquireSendLock(ctx, "msg-5")
	if !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Errorf("Expected ErrMaxAttemptsExceeded, got: %v", err)
	}
	if attempt != nil {
		t.Error("Expected nil attempt after max attempts")
	}
}

func TestSendGuard_ReleaseSendLock(t *testing.T) {
	guard := NewSendGuard(newMockRedisAdapter(), DefaultSendGuardConfig())

	ctx := context.Background()
	attempt, err := guard.AcquireSendLock(ctx, "msg-6")
	if err != nil {
		t.Fatalf("Lock acquisition failed: %v", err)
	}

	if err := guard.ReleaseSendLock(ctx, attempt); err != nil {
		t.Fatalf("ReleaseSendLock failed: %v", err)
	}
	if attempt.lockAcquired {
		t.Error("Lock should be marked as released")
	}

	// Lock is free again, attempt counter untouched.
	again, err := guard.AcquireSendLock(ctx, "msg-6")
	if err != nil {
		t.Fatalf("Second lock acquisition failed: %v", err)
	}
	if again.Attempt != 1 {
		t.Errorf("Expected attempt 1 after plain release, got %d", again.Attempt)
	}
}

func TestSendGuard_AttemptCount(t *testing.T) {
	guard := NewSendGuard(newMockRedisAdapter(), DefaultSendGuardConfig())

	ctx := context.Background()
	count, err := guard.AttemptCount(ctx, "msg-7")
	if err != nil {
		t.Fatalf("AttemptCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected attempt count 0, got %d", count)
	}

	attempt, _ := guard.AcquireSendLock(ctx, "msg-7")
	guard.MarkSendFailure(ctx, attempt, nil)

	count, err = guard.AttemptCount(ctx, "msg-7")
	if err != nil {
		t.Fatalf("AttemptCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected attempt count 1, got %d", count)
	}
}
