package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/services"
	xhttp "github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) Create(ctx context.Context, p model.MessageCreateRequest) (*model.Message, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageService) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Message), args.Get(1).(int64), args.Error(2)
}

func (m *MockMessageService) GetWithAudit(ctx context.Context, id int64) (*services.MessageWithAudit, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.MessageWithAudit), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func testMessage(id int64) *model.Message {
	customerID := int64(1)
	return &model.Message{
		ID:         id,
		Direction:  model.DirectionOutbound,
		CustomerID: &customerID,
		Mobile:     "+447700900123",
		Body:       "Your table is booked.",
		Status:     model.MessageStatusQueued,
		CreatedAt:  time.Now(),
	}
}

func TestMessageHandler_CreateMessage(t *testing.T) {
	t.Run("successful message creation", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		reqBody := createMessageRequest{
			CustomerID: 1,
			Mobile:     "07700 900123",
			Body:       "Your table is booked.",
		}
		bodyBytes, _ := json.Marshal(reqBody)

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.MessageCreateRequest) bool {
			return p.CustomerID == 1 && p.Mobile == "07700 900123"
		})).Return(testMessage(123), nil)

		ctx := setupTestContext("POST", "/messages", bodyBytes)
		handler.CreateMessage(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response model.Message
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, int64(123), response.ID)
		assert.Equal(t, model.MessageStatusQueued, response.Status)

		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		ctx := setupTestContext("POST", "/messages", []byte("invalid json"))
		handler.CreateMessage(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())

		var response map[string]string
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Contains(t, response["error"], "invalid JSON")
	})

	t.Run("unknown customer maps to 404", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		bodyBytes, _ := json.Marshal(createMessageRequest{CustomerID: 9, Mobile: "07700900123", Body: "hi"})
		svc.On("Create", mock.Anything, mock.Anything).Return(nil, services.ErrCustomerNotFound)

		ctx := setupTestContext("POST", "/messages", bodyBytes)
		handler.CreateMessage(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("unreachable customer maps to 409", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		bodyBytes, _ := json.Marshal(createMessageRequest{CustomerID: 9, Mobile: "07700900123", Body: "hi"})
		svc.On("Create", mock.Anything, mock.Anything).Return(nil, services.ErrCustomerUnreachable)

		ctx := setupTestContext("POST", "/messages", bodyBytes)
		handler.CreateMessage(ctx)

		assert.Equal(t, 409, ctx.Response.StatusCode())
	})

	t.Run("validation error maps to 400", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		bodyBytes, _ := json.Marshal(createMessageRequest{CustomerID: 9, Mobile: "nope", Body: "hi"})
		svc.On("Create", mock.Anything, mock.Anything).Return(nil, services.ErrInvalidMobile)

		ctx := setupTestContext("POST", "/messages", bodyBytes)
		handler.CreateMessage(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestMessageHandler_ListMessages(t *testing.T) {
	t.Run("list with filters", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("List", mock.Anything, mock.MatchedBy(func(f model.MessageFilter) bool {
			return f.CustomerID != nil && *f.CustomerID == 7 &&
				len(f.Statuses) == 2 &&
				f.Limit == 10 && f.Desc
		})).Return([]*model.Message{testMessage(1), testMessage(2)}, int64(2), nil)

		ctx := setupTestContext("GET", "/messages?customer_id=7&status=sent,delivered&limit=10&order=desc", nil)
		handler.ListMessages(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response listResponse
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Len(t, response.Items, 2)
		assert.Equal(t, int64(2), response.Total)

		svc.AssertExpectations(t)
	})

	t.Run("empty result", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("List", mock.Anything, mock.Anything).Return([]*model.Message{}, int64(0), nil)

		ctx := setupTestContext("GET", "/messages", nil)
		handler.ListMessages(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
	})
}

func TestMessageHandler_GetMessage(t *testing.T) {
	t.Run("found with audit trail", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("GetWithAudit", mock.Anything, int64(123)).Return(&services.MessageWithAudit{
			Message: testMessage(123),
			Audit: []*model.DeliveryAudit{
				{MessageID: 123, OldStatus: model.MessageStatusSent, NewStatus: model.MessageStatusDelivered, Applied: true},
			},
		}, nil)

		ctx := setupTestContext("GET", "/messages/123", nil)
		ctx.SetUserValue("id", "123")
		handler.GetMessage(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response services.MessageWithAudit
		err := json.Unmarshal(ctx.Response.Body(), &response)
		require.NoError(t, err)
		assert.Equal(t, int64(123), response.Message.ID)
		assert.Len(t, response.Audit, 1)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("GetWithAudit", mock.Anything, int64(404)).Return(nil, services.ErrNotFound)

		ctx := setupTestContext("GET", "/messages/404", nil)
		ctx.SetUserValue("id", "404")
		handler.GetMessage(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("invalid id", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		ctx := setupTestContext("GET", "/messages/abc", nil)
		ctx.SetUserValue("id", "abc")
		handler.GetMessage(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}
