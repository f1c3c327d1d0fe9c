package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/model"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/services"
	xhttp "github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/http"
)

type MessageService interface {
	Create(ctx context.Context, p model.MessageCreateRequest) (*model.Message, error)
	List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error)
	GetWithAudit(ctx context.Context, id int64) (*services.MessageWithAudit, error)
}
type MessageHandler struct {
	svc MessageService
}

func RegisterMessageRoutes(e *router.Group, h *MessageHandler) {
	e.POST("/messages", h.CreateMessage)
	e.GET("/messages", h.ListMessages)
	e.GET("/messages/{id}", h.GetMessage)
}

func NewMessageHandler(messageService MessageService) *MessageHandler {
	return &MessageHandler{
		svc: messageService,
	}
}

type createMessageRequest struct {
	CustomerID int64  `json:"customer_id"`
	Mobile     string `json:"mobile"`
	Body       string `json:"body"`
}

type listResponse struct {
	Items []*model.Message `json:"items"`
	Total int64            `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *MessageHandler) CreateMessage(ctx *xhttp.RequestCtx) {
	var req createMessageRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	p := model.MessageCreateRequest{
		CustomerID: req.CustomerID,
		Mobile:     req.Mobile,
		Body:       req.Body,
	}
	msg, err := h.svc.Create(ctx, p)
	if err != nil {
		writeError(ctx, createStatusCode(err), err.Error())
		return
	}
	writeJSON(ctx, 201, msg)
}

func (h *MessageHandler) ListMessages(ctx *xhttp.RequestCtx) {
	f := parseMessageFilter(ctx)

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, listResponse{Items: items, Total: total})
}

func (h *MessageHandler) GetMessage(ctx *xhttp.RequestCtx) {
	idStr, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(ctx, 400, "invalid message id")
		return
	}

	msg, err := h.svc.GetWithAudit(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(ctx, 404, err.Error())
			return
		}
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, msg)
}

// createStatusCode maps service errors on create to HTTP status codes.
func createStatusCode(err error) int {
	switch {
	case errors.Is(err, services.ErrCustomerNotFound):
		return 404
	case errors.Is(err, services.ErrCustomerUnreachable):
		return 409
	default:
		return 400
	}
}

func parseMessageFilter(ctx *xhttp.RequestCtx) model.MessageFilter {
	var f model.MessageFilter

	if v := query(ctx, "customer_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.CustomerID = &id
		}
	}
	if v := query(ctx, "mobile"); v != "" {
		f.Mobile = &v
	}
	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.MessageStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	return f
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
