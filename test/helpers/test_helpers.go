package helpers

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/repository"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/pg"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.CustomerEntity{},
		&repository.MessageEntity{},
		&repository.DeliveryAuditEntity{},
		&repository.IdempotencyKeyEntity{},
		&repository.InvoiceReminderEntity{},
		&repository.EmailLogEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	adapter, err := redis.NewRedisAdapter("test", "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestCustomer(t *testing.T, db *pg.DB, id int64, mobile string) *repository.CustomerEntity {
	ctx := context.Background()
	customer := &repository.CustomerEntity{
		ID:        id,
		Mobile:    mobile,
		SMSOptIn:  true,
		SMSStatus: "active",
	}
	err := db.Write(ctx).Create(customer).Error
	require.NoError(t, err)
	return customer
}

func CreateTestMessage(t *testing.T, db *pg.DB, customerID int64, mobile, body string) *repository.MessageEntity {
	ctx := context.Background()
	msg := &repository.MessageEntity{
		Direction:  "outbound",
		CustomerID: &customerID,
		Mobile:     mobile,
		Body:       body,
		Status:     "queued",
		CreatedAt:  time.Now(),
	}
	err := db.Write(ctx).Create(msg).Error
	require.NoError(t, err)
	return msg
}

func CreateTestReminder(t *testing.T, db *pg.DB, invoiceID int64, recipient, subject string) *repository.InvoiceReminderEntity {
	ctx := context.Background()
	reminder := &repository.InvoiceReminderEntity{
		InvoiceID:      invoiceID,
		InvoiceNumber:  "INV-TEST",
		Type:           "due_soon",
		RecipientEmail: recipient,
		Subject:        subject,
		Body:           "test reminder body",
		Status:         "pending",
		ScheduledFor:   time.Now().Add(-time.Minute),
	}
	err := db.Write(ctx).Create(reminder).Error
	require.NoError(t, err)
	return reminder
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
