package gateways

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestCarrier(t *testing.T, handler fasthttp.RequestHandler) *CarrierClient {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = fasthttp.Serve(ln, handler)
	}()
	t.Cleanup(func() { _ = ln.Close() })

	client, err := NewCarrierClient(CarrierConfig{
		AccountSID: "AC_test",
		AuthToken:  "secret",
		BaseURL:    "http://carrier.test",
		FromNumber: "+447700900000",
		Timeout:    2 * time.Second,
		Dial: func(addr string) (net.Conn, error) {
			return ln.Dial()
		},
	})
	require.NoError(t, err)
	return client
}

func TestNewCarrierClient_MissingCredentials(t *testing.T) {
	_, err := NewCarrierClient(CarrierConfig{BaseURL: "http://carrier.test"})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewCarrierClient(CarrierConfig{AccountSID: "AC", AuthToken: "t"})
	assert.Error(t, err)
}

func TestCarrierClient_CreateMessage(t *testing.T) {
	client := newTestCarrier(t, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/2010-04-01/Accounts/AC_test/Messages.json", string(ctx.Path()))
		assert.Equal(t, fasthttp.MethodPost, string(ctx.Method()))
		assert.NotEmpty(t, ctx.Request.Header.Peek("Authorization"))

		ctx.SetContentType("application/json")
		ctx.SetStatusCode(fasthttp.StatusCreated)
		ctx.SetBodyString(`{"sid":"SM123","status":"queued","to":"+447700900123"}`)
	})

	msg, err := client.CreateMessage(context.Background(), "+447700900123", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM123", msg.SID)
	assert.Equal(t, "queued", msg.Status)
}

func TestCarrierClient_FetchMessage(t *testing.T) {
	t.Run("delivered with date_sent", func(t *testing.T) {
		client := newTestCarrier(t, func(ctx *fasthttp.RequestCtx) {
			assert.Equal(t, "/2010-04-01/Accounts/AC_test/Messages/SM123.json", string(ctx.Path()))
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"sid":"SM123","status":"delivered","date_sent":"Mon, 02 Jan 2026 15:04:05 +0000"}`)
		})

		msg, err := client.FetchMessage(context.Background(), "SM123")
		require.NoError(t, err)
		assert.Equal(t, "delivered", msg.Status)
		require.NotNil(t, msg.DateSent)
		assert.Equal(t, 2026, msg.DateSent.Year())
	})

	t.Run("failed with error code", func(t *testing.T) {
		client := newTestCarrier(t, func(ctx *fasthttp.RequestCtx) {
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"sid":"SM124","status":"undelivered","error_code":30005,"error_message":"Unknown destination handset"}`)
		})

		msg, err := client.FetchMessage(context.Background(), "SM124")
		require.NoError(t, err)
		assert.Equal(t, "undelivered", msg.Status)
		require.NotNil(t, msg.ErrorCode)
		assert.Equal(t, 30005, *msg.ErrorCode)
	})

	t.Run("unknown sid maps to not found", func(t *testing.T) {
		client := newTestCarrier(t, func(ctx *fasthttp.RequestCtx) {
			ctx.SetContentType("application/json")
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString(`{"code":20404,"message":"The requested resource was not found"}`)
		})

		_, err := client.FetchMessage(context.Background(), "SM_missing")
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})

	t.Run("not found body with 200 still maps", func(t *testing.T) {
		client := newTestCarrier(t, func(ctx *fasthttp.RequestCtx) {
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"code":20404,"message":"gone"}`)
		})

		_, err := client.FetchMessage(context.Background(), "SM_gone")
		assert.ErrorIs(t, err, ErrMessageNotFound)
	})
}

func TestEmailClient_Send(t *testing.T) {
	ln := fasthttputil.NewInmemoryListener()
	paths := make(chan string, 1)
	go func() {
		_ = fasthttp.Serve(ln, func(ctx *fasthttp.RequestCtx) {
			paths <- string(ctx.Path())
			ctx.SetStatusCode(fasthttp.StatusAccepted)
		})
	}()
	t.Cleanup(func() { _ = ln.Close() })

	client, err := NewEmailClient(EmailConfig{
		BaseURL:     "http://graph.test",
		AccessToken: "token",
		Sender:      "billing@venue.example",
		Dial: func(addr string) (net.Conn, error) {
			return ln.Dial()
		},
	})
	require.NoError(t, err)

	err = client.Send(context.Background(), "accounts@example.co.uk", []string{"manager@venue.example"}, "Invoice overdue", "<p>Please pay.</p>")
	require.NoError(t, err)
	assert.Equal(t, "/v1.0/users/billing@venue.example/sendMail", <-paths)
}

func TestNewEmailClient_MissingCredentials(t *testing.T) {
	_, err := NewEmailClient(EmailConfig{BaseURL: "http://graph.test"})
	assert.ErrorIs(t, err, ErrMissingEmailCredentials)
}
