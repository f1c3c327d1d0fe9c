package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/repository"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/prom"
)

const (
	DefaultReminderLimit       = 50
	DefaultMaxReminderAttempts = 3
)

type ReminderRepository interface {
	ListDue(ctx context.Context, limit int, now time.Time) ([]*model.InvoiceReminder, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	RecordFailure(ctx context.Context, id int64, reason string, final bool) error
}

type EmailLogRepository interface {
	Create(ctx context.Context, log *model.EmailLog) (*model.EmailLog, error)
	ExistsForRecipientSubject(ctx context.Context, recipient, subject string) (bool, error)
}

type IdempotencyGuard interface {
	Claim(ctx context.Context, key, requestHash string, ttl time.Duration) (model.ClaimOutcome, error)
	Persist(ctx context.Context, key, requestHash, result string, state model.ClaimState) error
	Release(ctx context.Context, key, requestHash string) error
	Get(ctx context.Context, key string) (*model.IdempotencyClaim, error)
}

type EmailSender interface {
	Send(ctx context.Context, to string, cc []string, subject, body string) error
}

// ReminderSummary reports what a single reminder run did.
type ReminderSummary struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

type ReminderConfig struct {
	Limit       int
	MaxAttempts int
	ClaimTTL    time.Duration
}

func (c *ReminderConfig) normalize() {
	if c.Limit <= 0 {
		c.Limit = DefaultReminderLimit
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxReminderAttempts
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = repository.DefaultClaimTTL
	}
}

// ReminderService sends due invoice reminder emails. Each reminder is
// guarded by a database-backed idempotency claim keyed on invoice and
// reminder type, so overlapping cron fires cannot double-send. When a
// claim is stuck the trade-off is a stuck reminder, never a duplicate
// email.
type ReminderService struct {
	reminderRepo ReminderRepository
	emailLogRepo EmailLogRepository
	guard        IdempotencyGuard
	email        EmailSender
	config       ReminderConfig

	now func() time.Time
}

func NewReminderService(reminderRepo ReminderRepository, emailLogRepo EmailLogRepository, guard IdempotencyGuard, email EmailSender, config ReminderConfig) *ReminderService {
	config.normalize()
	return &ReminderService{
		reminderRepo: reminderRepo,
		emailLogRepo: emailLogRepo,
		guard:        guard,
		email:        email,
		config:       config,
		now:          time.Now,
	}
}

func reminderKey(r *model.InvoiceReminder) string {
	return fmt.Sprintf("invoice_reminder:%d:%s", r.InvoiceID, r.Type)
}

func reminderHash(r *model.InvoiceReminder) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", r.RecipientEmail, r.Subject, r.Body)
	return hex.EncodeToString(h.Sum(nil))
}

// RunDue executes one reminder pass. Per-reminder failures are counted
// and logged but never abort the run.
func (s *ReminderService) RunDue(ctx context.Context) (*ReminderSummary, error) {
	due, err := s.reminderRepo.ListDue(ctx, s.config.Limit, s.now())
	if err != nil {
		return nil, err
	}

	summary := &ReminderSummary{Due: len(due)}
	for _, reminder := range due {
		if err := s.sendOne(ctx, reminder, summary); err != nil {
			summary.Errors++
			logger.Error("Reminder send failed",
				"reminder_id", reminder.ID,
				"invoice_id", reminder.InvoiceID,
				"type", reminder.Type,
				"error", err)
		}
	}

	prom.AddCounter(prom.SystemReminders, prom.MetricRemindersSent, float64(summary.Sent))
	prom.AddCounter(prom.SystemReminders, prom.MetricRemindersFailed, float64(summary.Errors))

	logger.Info("Reminder run finished",
		"due", summary.Due,
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"errors", summary.Errors)
	return summary, nil
}

func (s *ReminderService) sendOne(ctx context.Context, reminder *model.InvoiceReminder, summary *ReminderSummary) error {
	key := reminderKey(reminder)
	hash := reminderHash(reminder)

	outcome, err := s.guard.Claim(ctx, key, hash, s.config.ClaimTTL)
	if err != nil {
		return err
	}
	switch outcome {
	case model.ClaimOutcomeReplay:
		summary.Skipped++
		logger.Info("Reminder already handled, skipping", "reminder_id", reminder.ID, "key", key)
		return s.convergeReplay(ctx, reminder, key)
	case model.ClaimOutcomeConflict:
		summary.Skipped++
		logger.Warn("Reminder claim conflict, content changed under same key",
			"reminder_id", reminder.ID, "key", key)
		return nil
	}

	// Belt and braces: an email with this subject may have gone out
	// through another path (manual resend, older scheduler).
	sent, err := s.emailLogRepo.ExistsForRecipientSubject(ctx, reminder.RecipientEmail, reminder.Subject)
	if err != nil {
		if relErr := s.guard.Release(ctx, key, hash); relErr != nil {
			logger.Warn("Failed to release reminder claim", "key", key, "error", relErr)
		}
		return err
	}
	if sent {
		summary.Skipped++
		logger.Info("Reminder email already logged for recipient, skipping",
			"reminder_id", reminder.ID, "recipient", reminder.RecipientEmail)
		if err := s.guard.Persist(ctx, key, hash, "deduplicated", model.ClaimStateProcessed); err != nil {
			return err
		}
		return s.reminderRepo.MarkSent(ctx, reminder.ID, s.now())
	}

	if err := s.email.Send(ctx, reminder.RecipientEmail, reminder.CC, reminder.Subject, reminder.Body); err != nil {
		final := reminder.Attempts+1 >= s.config.MaxAttempts
		if recErr := s.reminderRepo.RecordFailure(ctx, reminder.ID, err.Error(), final); recErr != nil {
			logger.Error("Failed to record reminder failure", "reminder_id", reminder.ID, "error", recErr)
		}
		// The email never left, so the claim can be freed. When the
		// failure is terminal the reminder row carries that record.
		if relErr := s.guard.Release(ctx, key, hash); relErr != nil {
			logger.Warn("Failed to release reminder claim", "key", key, "error", relErr)
		}
		return err
	}

	sentAt := s.now()
	state := model.ClaimStateProcessed
	result := "sent"
	if _, err := s.emailLogRepo.Create(ctx, &model.EmailLog{
		InvoiceID: reminder.InvoiceID,
		Recipient: reminder.RecipientEmail,
		Subject:   reminder.Subject,
		Status:    "sent",
	}); err != nil {
		// The email went out but its log row did not. The claim must
		// record that split so the key is never retried.
		state = model.ClaimStateProcessedWithError
		result = "sent, email log write failed"
		logger.Error("Failed to log reminder email", "reminder_id", reminder.ID, "error", err)
	}
	if err := s.guard.Persist(ctx, key, hash, result, state); err != nil {
		// Claim stays claimed; a stuck claim beats a duplicate email.
		logger.Error("Failed to persist claim", "key", key, "error", err)
	}
	if err := s.reminderRepo.MarkSent(ctx, reminder.ID, sentAt); err != nil {
		return err
	}
	summary.Sent++
	return nil
}

// convergeReplay closes out a reminder row whose claim already completed.
// A finalized claim with a still pending reminder means an earlier run sent
// the email but failed to mark the row, so mark it here instead of listing
// and skipping it forever.
func (s *ReminderService) convergeReplay(ctx context.Context, reminder *model.InvoiceReminder, key string) error {
	claim, err := s.guard.Get(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrClaimNotFound) {
			return nil
		}
		return err
	}
	if claim.State == model.ClaimStateClaimed {
		// Another attempt is still in flight.
		return nil
	}
	logger.Info("Reminder claim already finalized, marking row sent",
		"reminder_id", reminder.ID, "key", key, "claim_state", claim.State)
	return s.reminderRepo.MarkSent(ctx, reminder.ID, s.now())
}
