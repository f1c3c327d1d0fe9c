package repository

import (
	"context"
	"testing"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReminder(invoiceID int64, typ model.ReminderType, scheduledFor time.Time) *model.InvoiceReminder {
	return &model.InvoiceReminder{
		InvoiceID:      invoiceID,
		InvoiceNumber:  "INV-2026-0042",
		Type:           typ,
		RecipientEmail: "accounts@example.co.uk",
		Subject:        "Invoice INV-2026-0042 is overdue",
		Body:           "Please settle the attached invoice.",
		ScheduledFor:   scheduledFor,
	}
}

func TestReminderRepository_ListDue(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewReminderRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	due, err := repo.Create(ctx, newTestReminder(1, model.ReminderTypeOverdue, now.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newTestReminder(2, model.ReminderTypeDueSoon, now.Add(time.Hour)))
	require.NoError(t, err)

	sent, err := repo.Create(ctx, newTestReminder(3, model.ReminderTypeFinal, now.Add(-2*time.Hour)))
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(ctx, sent.ID, now))

	got, err := repo.ListDue(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
	assert.Equal(t, model.ReminderStatusPending, got[0].Status)
}

func TestReminderRepository_MarkSent(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewReminderRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	r, err := repo.Create(ctx, newTestReminder(1, model.ReminderTypeOverdue, now))
	require.NoError(t, err)

	require.NoError(t, repo.MarkSent(ctx, r.ID, now))

	got, err := repo.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReminderStatusSent, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.NotNil(t, got.SentAt)

	assert.ErrorIs(t, repo.MarkSent(ctx, 999999, now), ErrReminderNotFound)
}

func TestReminderRepository_RecordFailure(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewReminderRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("non-final failure keeps reminder pending", func(t *testing.T) {
		r, err := repo.Create(ctx, newTestReminder(1, model.ReminderTypeDueSoon, now))
		require.NoError(t, err)

		require.NoError(t, repo.RecordFailure(ctx, r.ID, "smtp timeout", false))

		got, err := repo.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReminderStatusPending, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, "smtp timeout", got.LastError)
	})

	t.Run("final failure parks the reminder", func(t *testing.T) {
		r, err := repo.Create(ctx, newTestReminder(2, model.ReminderTypeFinal, now))
		require.NoError(t, err)

		require.NoError(t, repo.RecordFailure(ctx, r.ID, "recipient rejected", true))

		got, err := repo.GetByID(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReminderStatusFailed, got.Status)
	})
}

func TestReminderRepository_Validate(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewReminderRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.InvoiceReminder{InvoiceID: 1})
	assert.Error(t, err)

	_, err = repo.Create(ctx, &model.InvoiceReminder{
		InvoiceID:      1,
		RecipientEmail: "a@b.com",
		Subject:        "s",
		Type:           "weekly", // not a known type
	})
	assert.Error(t, err)
}

func TestEmailLogRepository_Dedup(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewEmailLogRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &model.EmailLog{
		InvoiceID: 7,
		Recipient: "accounts@example.co.uk",
		Subject:   "Invoice INV-2026-0007 is overdue",
		Status:    "sent",
	})
	require.NoError(t, err)

	exists, err := repo.ExistsForRecipientSubject(ctx, "accounts@example.co.uk", "Invoice INV-2026-0007 is overdue")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForRecipientSubject(ctx, "accounts@example.co.uk", "Invoice INV-2026-0008 is overdue")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsForRecipientSubject(ctx, "other@example.co.uk", "Invoice INV-2026-0007 is overdue")
	require.NoError(t, err)
	assert.False(t, exists)
}
