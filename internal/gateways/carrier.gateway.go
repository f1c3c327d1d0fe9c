package gateways

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	// ErrMissingCredentials means the account SID or auth token is not
	// configured. Callers fail fast before touching any message.
	ErrMissingCredentials = errors.New("carrier credentials are not configured")
	// ErrMessageNotFound means the carrier has no record of the SID.
	ErrMessageNotFound = errors.New("message not found at carrier")
)

// CarrierCodeNotFound is the carrier's error code for an unknown message SID.
const CarrierCodeNotFound = 20404

// CarrierMessage is the carrier's view of a single message.
type CarrierMessage struct {
	SID          string     `json:"sid"`
	Status       string     `json:"status"`
	To           string     `json:"to"`
	From         string     `json:"from"`
	ErrorCode    *int       `json:"error_code"`
	ErrorMessage string     `json:"error_message"`
	DateSent     *time.Time `json:"-"`
}

type carrierMessagePayload struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	To           string `json:"to"`
	From         string `json:"from"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	DateSent     string `json:"date_sent"`
	Code         int    `json:"code"` // set on error responses
	Message      string `json:"message"`
}

type CarrierConfig struct {
	AccountSID        string
	AuthToken         string
	BaseURL           string
	FromNumber        string
	StatusCallbackURL string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	MaxConns          int

	// Dial overrides the transport dialer, used by tests.
	Dial func(addr string) (net.Conn, error)
}

// CarrierClient talks to the SMS carrier's REST API.
type CarrierClient struct {
	config CarrierConfig
	client *fasthttp.Client
	auth   string
}

func NewCarrierClient(config CarrierConfig) (*CarrierClient, error) {
	if config.AccountSID == "" || config.AuthToken == "" {
		return nil, ErrMissingCredentials
	}
	if config.BaseURL == "" {
		return nil, errors.New("carrier base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	if config.MaxConns == 0 {
		config.MaxConns = 100
	}

	client := &fasthttp.Client{
		MaxConnsPerHost:     config.MaxConns,
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
		Dial:                config.Dial,
	}

	auth := base64.StdEncoding.EncodeToString([]byte(config.AccountSID + ":" + config.AuthToken))

	logger.Info("Carrier client initialized", "base_url", config.BaseURL, "timeout", config.Timeout)

	return &CarrierClient{
		config: config,
		client: client,
		auth:   auth,
	}, nil
}

// CreateMessage submits an outbound message and returns the carrier's
// acknowledgement with the provider-assigned SID.
func (c *CarrierClient) CreateMessage(ctx context.Context, to, body string) (*CarrierMessage, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.config.FromNumber)
	form.Set("Body", body)
	if c.config.StatusCallbackURL != "" {
		form.Set("StatusCallback", c.config.StatusCallbackURL)
	}

	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.config.AccountSID)

	raw, statusCode, err := c.doRequestWithRetry(ctx, fasthttp.MethodPost, path, []byte(form.Encode()))
	if err != nil {
		return nil, err
	}

	return parseCarrierMessage(raw, statusCode)
}

// FetchMessage retrieves the authoritative status of a previously submitted
// message. An unknown SID maps to ErrMessageNotFound.
func (c *CarrierClient) FetchMessage(ctx context.Context, sid string) (*CarrierMessage, error) {
	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Messages/%s.json", c.config.AccountSID, sid)

	raw, statusCode, err := c.doRequestWithRetry(ctx, fasthttp.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	return parseCarrierMessage(raw, statusCode)
}

func (c *CarrierClient) doRequestWithRetry(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		raw, statusCode, err := c.doRequest(ctx, method, path, body)
		if err != nil {
			lastErr = err
			logger.Warn("Carrier request failed", "method", method, "path", path, "attempt", attempt+1, "error", err)
			continue
		}
		return raw, statusCode, nil
	}
	return nil, 0, fmt.Errorf("carrier request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *CarrierClient) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Basic "+c.auth)
	if method == fasthttp.MethodPost {
		req.Header.SetContentType("application/x-www-form-urlencoded")
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}

	raw := make([]byte, len(resp.Body()))
	copy(raw, resp.Body())

	return raw, resp.StatusCode(), nil
}

func parseCarrierMessage(raw []byte, statusCode int) (*CarrierMessage, error) {
	var payload carrierMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal carrier response: %w", err)
	}

	if statusCode == fasthttp.StatusNotFound || payload.Code == CarrierCodeNotFound {
		return nil, ErrMessageNotFound
	}
	if statusCode >= 400 {
		return nil, fmt.Errorf("carrier returned status %d: code=%d message=%s", statusCode, payload.Code, payload.Message)
	}

	msg := &CarrierMessage{
		SID:          payload.SID,
		Status:       payload.Status,
		To:           payload.To,
		From:         payload.From,
		ErrorCode:    payload.ErrorCode,
		ErrorMessage: payload.ErrorMessage,
	}
	if payload.DateSent != "" {
		if t, err := time.Parse(time.RFC1123Z, payload.DateSent); err == nil {
			msg.DateSent = &t
		}
	}
	return msg, nil
}
