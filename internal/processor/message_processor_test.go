package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/gateways"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/queue"
)

type fakeCarrierSender struct {
	response *gateways.CarrierMessage
	err      error
	calls    int
}

func (f *fakeCarrierSender) CreateMessage(ctx context.Context, to, body string) (*gateways.CarrierMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type acceptedCall struct {
	id            int64
	sid           string
	carrierStatus string
}

type fakeMessageStore struct {
	accepted []acceptedCall
	updates  []model.StatusUpdate
}

func (f *fakeMessageStore) MarkCarrierAccepted(ctx context.Context, id int64, sid, carrierStatus string, sentAt time.Time) error {
	f.accepted = append(f.accepted, acceptedCall{id: id, sid: sid, carrierStatus: carrierStatus})
	return nil
}

func (f *fakeMessageStore) ApplyStatusUpdate(ctx context.Context, id int64, expectedOld model.MessageStatus, u model.StatusUpdate) error {
	f.updates = append(f.updates, u)
	return nil
}

type fakeAuditStore struct {
	rows []*model.DeliveryAudit
}

func (f *fakeAuditStore) Create(ctx context.Context, a *model.DeliveryAudit) (*model.DeliveryAudit, error) {
	f.rows = append(f.rows, a)
	return a, nil
}

type fakeDeliveryOutcomes struct {
	calls []model.MessageStatus
}

func (f *fakeDeliveryOutcomes) ApplyDeliveryOutcome(ctx context.Context, customerID int64, status model.MessageStatus, errorCode *int) error {
	f.calls = append(f.calls, status)
	return nil
}

func queuedEntry(t *testing.T, m *model.Message) *queue.Message {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return &queue.Message{ID: "1-0", Data: data}
}

func queuedTestMessage(id int64) *model.Message {
	customerID := int64(7)
	return &model.Message{
		ID:         id,
		Direction:  model.DirectionOutbound,
		CustomerID: &customerID,
		Mobile:     "+447700900123",
		Body:       "Your table is booked.",
		Status:     model.MessageStatusQueued,
	}
}

func newTestProcessor(carrier *fakeCarrierSender, store *fakeMessageStore, audits *fakeAuditStore, outcomes *fakeDeliveryOutcomes, guard *SendGuard) *SMSMessageProcessor {
	return NewSMSMessageProcessor(carrier, store, audits, outcomes, guard)
}

func TestProcess_SendsAndRecordsAcceptance(t *testing.T) {
	carrier := &fakeCarrierSender{response: &gateways.CarrierMessage{SID: "SM123", Status: "queued"}}
	store := &fakeMessageStore{}
	audits := &fakeAuditStore{}
	guard := NewSendGuard(newMockRedisAdapter(), DefaultSendGuardConfig())
	p := newTestProcessor(carrier, store, audits, &fakeDeliveryOutcomes{}, guard)

	err := p.Process(context.Background(), queuedEntry(t, queuedTestMessage(1)))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(store.accepted) != 1 {
		t.Fatalf("Expected 1 acceptance record, got %d", len(store.accepted))
	}
	if store.accepted[0].sid != "SM123" {
		t.Errorf("Expected SID SM123, got %s", store.accepted[0].sid)
	}
	if len(audits.rows) != 1 || !audits.rows[0].Applied {
		t.Errorf("Expected one applied audit row, got %+v", audits.rows)
	}

	sent, err := guard.WasSent(context.Background(), "1")
	if err != nil || !sent {
		t.Errorf("Expected sent marker, got sent=%v err=%v", sent, err)
	}
}

func TestProcess_RedeliveryIsAcked(t *testing.T) {
	carrier := &fakeCarrierSender{response: &gateways.CarrierMessage{SID: "SM123", Status: "queued"}}
	store := &fakeMessageStore{}
	guard := NewSendGuard(newMockRedisAdapter(), DefaultSendGuardConfig())
	p := newTestProcessor(carrier, store, &fakeAuditStore{}, &fakeDeliveryOutcomes{}, guard)

	entry := queuedEntry(t, queuedTestMessage(1))
	if err := p.Process(context.Background(), entry); err != nil {
		t.Fatalf("First process failed: %v", err)
	}
	if err := p.Process(context.Background(), entry); err != nil {
		t.Fatalf("Redelivery should ack, got: %v", err)
	}

	if carrier.calls != 1 {
		t.Errorf("Expected exactly one carrier call, got %d", carrier.calls)
	}
	if len(store.accepted) != 1 {
		t.Errorf("Expected one acceptance record, got %d", len(store.accepted))
	}
}

func TestProcess_CarrierFailureNacks(t *testing.T) {
	carrier := &fakeCarrierSender{err: errors.New("carrier unavailable")}
	guard := NewSendGuard(newMockRedisAdapter(), DefaultSendGuardConfig())
	p := newTestProcessor(carrier, &fakeMessageStore{}, &fakeAuditStore{}, &fakeDeliveryOutcomes{}, guard)

	err := p.Process(context.Background(), queuedEntry(t, queuedTestMessage(1)))
	if err == nil {
		t.Fatal("Expected error for carrier failure")
	}

	count, _ := guard.AttemptCount(context.Background(), "1")
	if count != 1 {
		t.Errorf("Expected attempt count 1, got %d", count)
	}
}

func TestProcess_AttemptsExhaustedAbandons(t *testing.T) {
	config := DefaultSendGuardConfig()
	config.MaxAttempts = 1
	guard := NewSendGuard(newMockRedisAdapter(), config)

	carrier := &fakeCarrierSender{err: errors.New("carrier unavailable")}
	store := &fakeMessageStore{}
	audits := &fakeAuditStore{}
	outcomes := &fakeDeliveryOutcomes{}
	p := newTestProcessor(carrier, store, audits, outcomes, guard)

	entry := queuedEntry(t, queuedTestMessage(1))

	// First delivery burns the only attempt.
	if err := p.Process(context.Background(), entry); err == nil {
		t.Fatal("Expected error on first attempt")
	}

	// Redelivery finds the attempts exhausted and closes the message out.
	if err := p.Process(context.Background(), entry); err != nil {
		t.Fatalf("Expected ack on exhausted attempts, got: %v", err)
	}

	if len(store.updates) != 1 {
		t.Fatalf("Expected 1 status update, got %d", len(store.updates))
	}
	if store.updates[0].Status != model.MessageStatusFailed {
		t.Errorf("Expected failed status, got %s", store.updates[0].Status)
	}
	if len(audits.rows) != 1 || audits.rows[0].Note != "send attempts exhausted" {
		t.Errorf("Expected abandon audit row, got %+v", audits.rows)
	}
	if len(outcomes.calls) != 1 || outcomes.calls[0] != model.MessageStatusFailed {
		t.Errorf("Expected failure outcome, got %+v", outcomes.calls)
	}
}

func TestProcess_MalformedPayloadErrors(t *testing.T) {
	guard := NewSendGuard(newMockRedisAdapter(), DefaultSendGuardConfig())
	p := newTestProcessor(&fakeCarrierSender{}, &fakeMessageStore{}, &fakeAuditStore{}, &fakeDeliveryOutcomes{}, guard)

	err := p.Process(context.Background(), &queue.Message{ID: "1-0", Data: []byte("{not json")})
	if err == nil {
		t.Fatal("Expected error for malformed payload")
	}
}
