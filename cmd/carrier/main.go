package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// messageResponse mirrors the carrier's message resource.
type messageResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	To           string `json:"to"`
	From         string `json:"from"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	DateSent     string `json:"date_sent"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

const codeNotFound = 20404

type storedMessage struct {
	sid        string
	to         string
	from       string
	acceptedAt time.Time
	settleAt   time.Time
	final      string
	errorCode  *int
	errorMsg   string
}

// status reports the message as seen at time t: queued until half the
// settle window, sent until the full window, then the final status.
func (m *storedMessage) status(t time.Time) string {
	half := m.acceptedAt.Add(m.settleAt.Sub(m.acceptedAt) / 2)
	switch {
	case t.Before(half):
		return "queued"
	case t.Before(m.settleAt):
		return "sent"
	default:
		return m.final
	}
}

func (m *storedMessage) response(t time.Time) messageResponse {
	resp := messageResponse{
		SID:    m.sid,
		Status: m.status(t),
		To:     m.to,
		From:   m.from,
	}
	if resp.Status == m.final {
		resp.DateSent = m.settleAt.Format(time.RFC1123Z)
		if m.final != "delivered" {
			resp.ErrorCode = m.errorCode
			resp.ErrorMessage = m.errorMsg
		}
	}
	return resp
}

// CarrierSimulator is an in-memory stand-in for the SMS carrier's REST API,
// used for local development of the sender and the reconciler.
type CarrierSimulator struct {
	mu           sync.Mutex
	messages     map[string]*storedMessage
	deliveryRate float64
	minSettle    time.Duration
	maxSettle    time.Duration
	rng          *rand.Rand
}

func NewCarrierSimulator(deliveryRate float64, minSettle, maxSettle time.Duration) *CarrierSimulator {
	return &CarrierSimulator{
		messages:     make(map[string]*storedMessage),
		deliveryRate: deliveryRate,
		minSettle:    minSettle,
		maxSettle:    maxSettle,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *CarrierSimulator) accept(to, from string) *storedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	settle := s.minSettle
	if delta := s.maxSettle - s.minSettle; delta > 0 {
		settle += time.Duration(s.rng.Int63n(int64(delta)))
	}

	msg := &storedMessage{
		sid:        "SM" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		to:         to,
		from:       from,
		acceptedAt: now,
		settleAt:   now.Add(settle),
		final:      "delivered",
	}
	if s.rng.Float64() >= s.deliveryRate {
		code, errMsg := s.randomFailure()
		msg.final = "undelivered"
		msg.errorCode = &code
		msg.errorMsg = errMsg
	}

	s.messages[msg.sid] = msg
	return msg
}

func (s *CarrierSimulator) lookup(sid string) *storedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[sid]
}

func (s *CarrierSimulator) randomFailure() (int, string) {
	failures := []struct {
		code int
		msg  string
	}{
		{30003, "Unreachable destination handset"},
		{30005, "Unknown destination handset"},
		{30006, "Landline or unreachable carrier"},
		{30007, "Message filtered by the carrier"},
	}
	f := failures[s.rng.Intn(len(failures))]
	return f.code, f.msg
}

func (s *CarrierSimulator) setDeliveryRate(rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveryRate = rate
}

type Handler struct {
	sim *CarrierSimulator
}

func NewHandler(sim *CarrierSimulator) *Handler {
	return &Handler{sim: sim}
}

// CreateMessage handles POST Messages.json form submissions.
func (h *Handler) CreateMessage(c *gin.Context) {
	to := c.PostForm("To")
	from := c.PostForm("From")
	body := c.PostForm("Body")

	if to == "" || body == "" {
		c.JSON(http.StatusBadRequest, errorResponse{
			Code:    21604,
			Message: "A 'To' number and 'Body' are required",
			Status:  http.StatusBadRequest,
		})
		return
	}

	msg := h.sim.accept(to, from)

	log.Info().
		Str("sid", msg.sid).
		Str("to", to).
		Str("final", msg.final).
		Time("settle_at", msg.settleAt).
		Msg("Message accepted")

	c.JSON(http.StatusCreated, msg.response(time.Now()))
}

// GetMessage handles GET Messages/{sid}.json status lookups.
func (h *Handler) GetMessage(c *gin.Context) {
	sid := strings.TrimSuffix(c.Param("sid"), ".json")

	msg := h.sim.lookup(sid)
	if msg == nil {
		c.JSON(http.StatusNotFound, errorResponse{
			Code:    codeNotFound,
			Message: fmt.Sprintf("The requested resource /Messages/%s.json was not found", sid),
			Status:  http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, msg.response(time.Now()))
}

// UpdateConfig allows changing the delivery rate at runtime.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		DeliveryRate *float64 `json:"delivery_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.DeliveryRate != nil && *config.DeliveryRate >= 0 && *config.DeliveryRate <= 1.0 {
		h.sim.setDeliveryRate(*config.DeliveryRate)
		log.Info().Float64("rate", *config.DeliveryRate).Msg("Updated delivery rate")
	}

	c.JSON(http.StatusOK, gin.H{"message": "Configuration updated"})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	accounts := router.Group("/2010-04-01/Accounts/:account")
	{
		accounts.POST("/Messages.json", handler.CreateMessage)
		accounts.GET("/Messages/:sid", handler.GetMessage)
	}

	router.PUT("/config", handler.UpdateConfig)
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8081")
	deliveryRate := getEnvFloat("DELIVERY_RATE", 0.95)
	minSettle := getEnvDuration("MIN_SETTLE", 2*time.Second)
	maxSettle := getEnvDuration("MAX_SETTLE", 15*time.Second)

	log.Info().
		Str("port", port).
		Float64("delivery_rate", deliveryRate).
		Dur("min_settle", minSettle).
		Dur("max_settle", maxSettle).
		Msg("Starting carrier simulator")

	sim := NewCarrierSimulator(deliveryRate, minSettle, maxSettle)
	handler := NewHandler(sim)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
