package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/peterjpitcher/the-anchor-management-tools-sub010/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	ErrMissingEmailCredentials = errors.New("email provider credentials are not configured")
)

type EmailConfig struct {
	BaseURL     string
	AccessToken string
	Sender      string
	Timeout     time.Duration

	// Dial overrides the transport dialer, used by tests.
	Dial func(addr string) (net.Conn, error)
}

// EmailClient sends mail through a Graph-style JSON sendMail endpoint.
type EmailClient struct {
	config EmailConfig
	client *fasthttp.Client
}

type emailRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type sendMailRequest struct {
	Message struct {
		Subject string `json:"subject"`
		Body    struct {
			ContentType string `json:"contentType"`
			Content     string `json:"content"`
		} `json:"body"`
		ToRecipients []emailRecipient `json:"toRecipients"`
		CCRecipients []emailRecipient `json:"ccRecipients,omitempty"`
	} `json:"message"`
	SaveToSentItems bool `json:"saveToSentItems"`
}

func NewEmailClient(config EmailConfig) (*EmailClient, error) {
	if config.AccessToken == "" || config.Sender == "" {
		return nil, ErrMissingEmailCredentials
	}
	if config.BaseURL == "" {
		return nil, errors.New("email base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	return &EmailClient{
		config: config,
		client: &fasthttp.Client{
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			Dial:         config.Dial,
		},
	}, nil
}

// Send submits one email. A nil error means the provider accepted it.
func (c *EmailClient) Send(ctx context.Context, to string, cc []string, subject, body string) error {
	var payload sendMailRequest
	payload.Message.Subject = subject
	payload.Message.Body.ContentType = "HTML"
	payload.Message.Body.Content = body
	payload.SaveToSentItems = true

	var rcpt emailRecipient
	rcpt.EmailAddress.Address = to
	payload.Message.ToRecipients = []emailRecipient{rcpt}
	for _, addr := range cc {
		var r emailRecipient
		r.EmailAddress.Address = addr
		payload.Message.CCRecipients = append(payload.Message.CCRecipients, r)
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal sendMail request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/v1.0/users/%s/sendMail", c.config.BaseURL, c.config.Sender))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.SetBody(reqBody)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("sendMail request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusAccepted && statusCode != fasthttp.StatusOK {
		return fmt.Errorf("email provider returned status %d: %s", statusCode, resp.Body())
	}

	logger.Info("Email sent", "to", to, "subject", subject)
	return nil
}
