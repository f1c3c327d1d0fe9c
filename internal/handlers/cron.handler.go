package handlers

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/internal/services"
	xhttp "github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/http"
	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
)

type ReconcilerService interface {
	Run(ctx context.Context) (*services.ReconcileSummary, error)
}

type ReminderService interface {
	RunDue(ctx context.Context) (*services.ReminderSummary, error)
}

// CronHandler exposes the scheduled jobs as HTTP endpoints so an external
// scheduler can fire them. Every route requires the shared cron secret.
type CronHandler struct {
	reconciler ReconcilerService
	reminders  ReminderService
	secret     string
}

func NewCronHandler(reconciler ReconcilerService, reminders ReminderService, secret string) *CronHandler {
	return &CronHandler{
		reconciler: reconciler,
		reminders:  reminders,
		secret:     secret,
	}
}

func RegisterCronRoutes(e *router.Group, h *CronHandler) {
	e.GET("/cron/reconcile-sms", h.ReconcileSMS)
	e.GET("/cron/invoice-reminders", h.InvoiceReminders)
}

type cronReconcileResponse struct {
	Success    bool      `json:"success"`
	Checked    int       `json:"checked"`
	Updated    int       `json:"updated"`
	Suppressed int       `json:"suppressed"`
	Errors     int       `json:"errors"`
	Timestamp  time.Time `json:"timestamp"`
}

type cronReminderResponse struct {
	Success   bool      `json:"success"`
	Due       int       `json:"due"`
	Sent      int       `json:"sent"`
	Skipped   int       `json:"skipped"`
	Errors    int       `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *CronHandler) ReconcileSMS(ctx *xhttp.RequestCtx) {
	if !h.authorize(ctx) {
		return
	}

	summary, err := h.reconciler.Run(ctx)
	if err != nil {
		logger.Error("Cron reconciliation run failed", "error", err)
		writeError(ctx, 500, err.Error())
		return
	}

	writeJSON(ctx, 200, cronReconcileResponse{
		Success:    true,
		Checked:    summary.Checked,
		Updated:    summary.Updated,
		Suppressed: summary.Suppressed,
		Errors:     summary.Errors,
		Timestamp:  time.Now().UTC(),
	})
}

func (h *CronHandler) InvoiceReminders(ctx *xhttp.RequestCtx) {
	if !h.authorize(ctx) {
		return
	}

	summary, err := h.reminders.RunDue(ctx)
	if err != nil {
		logger.Error("Cron reminder run failed", "error", err)
		writeError(ctx, 500, err.Error())
		return
	}

	writeJSON(ctx, 200, cronReminderResponse{
		Success:   true,
		Due:       summary.Due,
		Sent:      summary.Sent,
		Skipped:   summary.Skipped,
		Errors:    summary.Errors,
		Timestamp: time.Now().UTC(),
	})
}

// authorize accepts the secret as "Authorization: Bearer <secret>" or the
// x-cron-secret header. The comparison is constant time.
func (h *CronHandler) authorize(ctx *xhttp.RequestCtx) bool {
	if h.secret == "" {
		logger.Error("Cron secret is not configured, rejecting request")
		writeError(ctx, 503, "cron endpoints disabled")
		return false
	}

	presented := string(ctx.Request.Header.Peek("x-cron-secret"))
	if presented == "" {
		auth := string(ctx.Request.Header.Peek("Authorization"))
		presented = strings.TrimPrefix(auth, "Bearer ")
	}

	if subtle.ConstantTimeCompare([]byte(presented), []byte(h.secret)) != 1 {
		writeError(ctx, 401, "unauthorized")
		return false
	}
	return true
}
