package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/repository"
)

const maxBodyLen = 1600 // carrier hard limit for a concatenated message

var (
	ErrInvalidMobile       = fmt.Errorf("invalid mobile number")
	ErrEmptyBody           = fmt.Errorf("message body cannot be empty")
	ErrBodyTooLong         = fmt.Errorf("message body exceeds maximum length")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrCustomerUnreachable = errors.New("customer cannot receive sms")
	ErrNotFound            = errors.New("message not found")
)

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) (*model.Message, error)
	GetByID(ctx context.Context, id int64) (*model.Message, error)
	List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type CustomerReader interface {
	GetByID(ctx context.Context, id int64) (*model.Customer, error)
}

type AuditReader interface {
	ListByMessage(ctx context.Context, messageID int64) ([]*model.DeliveryAudit, error)
}

type MessagePublisher interface {
	PublishJSON(ctx context.Context, v interface{}, metadata map[string]string) (string, error)
}

type MessageService struct {
	messageRepo  MessageRepository
	customerRepo CustomerReader
	auditRepo    AuditReader
	queue        MessagePublisher
}

func NewMessageService(messageRepo MessageRepository, customerRepo CustomerReader, auditRepo AuditReader, q MessagePublisher) *MessageService {
	return &MessageService{
		messageRepo:  messageRepo,
		customerRepo: customerRepo,
		auditRepo:    auditRepo,
		queue:        q,
	}
}

// Create validates an outbound request, checks the customer's messaging
// eligibility, persists the queued row, and hands it to the send pipeline.
func (s *MessageService) Create(ctx context.Context, p model.MessageCreateRequest) (*model.Message, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	mobile, err := NormalizeMobile(p.Mobile)
	if err != nil {
		return nil, ErrInvalidMobile
	}

	body := strings.TrimSpace(p.Body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > maxBodyLen {
		return nil, ErrBodyTooLong
	}

	customer, err := s.customerRepo.GetByID(ctx, p.CustomerID)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	if !customer.CanReceiveSMS() {
		return nil, ErrCustomerUnreachable
	}

	m := &model.Message{
		Direction:  model.DirectionOutbound,
		CustomerID: &p.CustomerID,
		Mobile:     mobile,
		Body:       body,
		Status:     model.MessageStatusQueued,
	}

	var created *model.Message
	err = s.messageRepo.WithinTransaction(ctx, func(ctx context.Context) error {
		created, err = s.messageRepo.Create(ctx, m)
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if s.queue != nil {
			if _, err := s.queue.PublishJSON(ctx, created, nil); err != nil {
				return fmt.Errorf("publish message: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *MessageService) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	return s.messageRepo.List(ctx, f)
}

// MessageWithAudit pairs a message with its delivery status trail.
type MessageWithAudit struct {
	Message *model.Message         `json:"message"`
	Audit   []*model.DeliveryAudit `json:"audit"`
}

func (s *MessageService) GetWithAudit(ctx context.Context, id int64) (*MessageWithAudit, error) {
	msg, err := s.messageRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	audit, err := s.auditRepo.ListByMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	return &MessageWithAudit{Message: msg, Audit: audit}, nil
}

// NormalizeMobile canonicalizes a phone number to E.164. UK national numbers
// (07xxx) become +447xxx; anything already in +E.164 form passes through.
func NormalizeMobile(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(s)
	if s == "" {
		return "", fmt.Errorf("empty mobile")
	}

	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if strings.HasPrefix(s, "07") && len(s) == 11 {
		s = "+44" + s[1:]
	}
	if strings.HasPrefix(s, "447") && len(s) == 12 {
		s = "+" + s
	}

	if !strings.HasPrefix(s, "+") {
		return "", fmt.Errorf("mobile must be E.164 or UK national format")
	}
	digits := s[1:]
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("mobile has invalid length")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("mobile contains non-digits")
		}
	}
	return s, nil
}
