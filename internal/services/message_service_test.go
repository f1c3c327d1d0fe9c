package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/repository"
)

type fakeMessageStore struct {
	created  []*model.Message
	messages map[int64]*model.Message
	nextID   int64
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[int64]*model.Message), nextID: 1}
}

func (f *fakeMessageStore) Create(ctx context.Context, m *model.Message) (*model.Message, error) {
	cp := *m
	cp.ID = f.nextID
	f.nextID++
	f.created = append(f.created, &cp)
	f.messages[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeMessageStore) GetByID(ctx context.Context, id int64) (*model.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m, nil
}

func (f *fakeMessageStore) List(ctx context.Context, filter model.MessageFilter) ([]*model.Message, int64, error) {
	out := make([]*model.Message, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m)
	}
	return out, int64(len(out)), nil
}

func (f *fakeMessageStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeCustomerReader struct {
	customers map[int64]*model.Customer
}

func (f *fakeCustomerReader) GetByID(ctx context.Context, id int64) (*model.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, repository.ErrCustomerNotFound
	}
	return c, nil
}

type fakeAuditReader struct {
	rows map[int64][]*model.DeliveryAudit
}

func (f *fakeAuditReader) ListByMessage(ctx context.Context, messageID int64) ([]*model.DeliveryAudit, error) {
	return f.rows[messageID], nil
}

type fakePublisher struct {
	published []interface{}
}

func (f *fakePublisher) PublishJSON(ctx context.Context, v interface{}, metadata map[string]string) (string, error) {
	f.published = append(f.published, v)
	return "1-0", nil
}

func activeCustomer(id int64) *model.Customer {
	return &model.Customer{
		ID:        id,
		SMSOptIn:  true,
		SMSStatus: model.SMSStatusActive,
	}
}

func newTestMessageService() (*MessageService, *fakeMessageStore, *fakeCustomerReader, *fakePublisher) {
	store := newFakeMessageStore()
	customers := &fakeCustomerReader{customers: map[int64]*model.Customer{}}
	publisher := &fakePublisher{}
	svc := NewMessageService(store, customers, &fakeAuditReader{rows: map[int64][]*model.DeliveryAudit{}}, publisher)
	return svc, store, customers, publisher
}

func TestMessageService_Create(t *testing.T) {
	svc, store, customers, publisher := newTestMessageService()
	customers.customers[7] = activeCustomer(7)

	msg, err := svc.Create(context.Background(), model.MessageCreateRequest{
		CustomerID: 7,
		Mobile:     "07700 900123",
		Body:       "  Your table is booked for 7pm.  ",
	})
	require.NoError(t, err)

	assert.Equal(t, "+447700900123", msg.Mobile)
	assert.Equal(t, "Your table is booked for 7pm.", msg.Body)
	assert.Equal(t, model.MessageStatusQueued, msg.Status)
	assert.Equal(t, model.DirectionOutbound, msg.Direction)
	require.NotNil(t, msg.CustomerID)
	assert.Equal(t, int64(7), *msg.CustomerID)

	require.Len(t, store.created, 1)
	require.Len(t, publisher.published, 1)
}

func TestMessageService_CreateValidation(t *testing.T) {
	svc, _, customers, _ := newTestMessageService()
	customers.customers[7] = activeCustomer(7)

	_, err := svc.Create(context.Background(), model.MessageCreateRequest{
		CustomerID: 7,
		Mobile:     "not-a-number",
		Body:       "hello",
	})
	assert.ErrorIs(t, err, ErrInvalidMobile)

	_, err = svc.Create(context.Background(), model.MessageCreateRequest{
		CustomerID: 7,
		Mobile:     "07700900123",
		Body:       "   ",
	})
	assert.ErrorIs(t, err, ErrEmptyBody)

	_, err = svc.Create(context.Background(), model.MessageCreateRequest{
		CustomerID: 7,
		Mobile:     "07700900123",
		Body:       strings.Repeat("x", maxBodyLen+1),
	})
	assert.ErrorIs(t, err, ErrBodyTooLong)
}

func TestMessageService_CreateUnknownCustomer(t *testing.T) {
	svc, store, _, publisher := newTestMessageService()

	_, err := svc.Create(context.Background(), model.MessageCreateRequest{
		CustomerID: 99,
		Mobile:     "07700900123",
		Body:       "hello",
	})
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	assert.Empty(t, store.created)
	assert.Empty(t, publisher.published)
}

func TestMessageService_CreateUnreachableCustomer(t *testing.T) {
	svc, store, customers, _ := newTestMessageService()

	customers.customers[1] = &model.Customer{ID: 1, SMSOptIn: true, SMSStatus: model.SMSStatusDeactivated}
	customers.customers[2] = &model.Customer{ID: 2, SMSOptIn: false, SMSStatus: model.SMSStatusActive}
	customers.customers[3] = &model.Customer{ID: 3, SMSOptIn: false, SMSStatus: model.SMSStatusOptedOut}

	for _, id := range []int64{1, 2, 3} {
		_, err := svc.Create(context.Background(), model.MessageCreateRequest{
			CustomerID: id,
			Mobile:     "07700900123",
			Body:       "hello",
		})
		assert.ErrorIs(t, err, ErrCustomerUnreachable, "customer %d", id)
	}
	assert.Empty(t, store.created)
}

func TestMessageService_GetWithAudit(t *testing.T) {
	store := newFakeMessageStore()
	audits := &fakeAuditReader{rows: map[int64][]*model.DeliveryAudit{}}
	svc := NewMessageService(store, &fakeCustomerReader{}, audits, &fakePublisher{})

	created, err := store.Create(context.Background(), &model.Message{Mobile: "+447700900123", Body: "hi"})
	require.NoError(t, err)
	audits.rows[created.ID] = []*model.DeliveryAudit{
		{MessageID: created.ID, OldStatus: model.MessageStatusSent, NewStatus: model.MessageStatusDelivered, Applied: true},
	}

	got, err := svc.GetWithAudit(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.Message.ID)
	require.Len(t, got.Audit, 1)

	_, err = svc.GetWithAudit(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNormalizeMobile(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "07700900123", want: "+447700900123"},
		{in: "07700 900 123", want: "+447700900123"},
		{in: "+447700900123", want: "+447700900123"},
		{in: "447700900123", want: "+447700900123"},
		{in: "00447700900123", want: "+447700900123"},
		{in: "+14155552671", want: "+14155552671"},
		{in: "(07700) 900-123", want: "+447700900123"},
		{in: "", wantErr: true},
		{in: "07700", wantErr: true},
		{in: "hello", wantErr: true},
		{in: "+4477009001234567890", wantErr: true},
		{in: "0770090012a", wantErr: true},
	}

	for _, tc := range cases {
		got, err := NormalizeMobile(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
