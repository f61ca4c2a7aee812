package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/logs-ratio-server/internal/config"
	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
)

var testMessage = Message{Subject: "Error ratio alert: b.log", Body: "<p>ratio 50.00%</p>"}

type fakeSender struct {
	name string
	err  error
	mu   sync.Mutex
	sent []Message
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeRecorder struct {
	requests atomic.Int32
	failures atomic.Int32
	retries  atomic.Int32
}

func (r *fakeRecorder) RecordRequest(success bool, _ time.Duration, _ int) {
	r.requests.Add(1)
	if !success {
		r.failures.Add(1)
	}
}
func (r *fakeRecorder) RecordRetry()        { r.retries.Add(1) }
func (r *fakeRecorder) RecordRateLimitHit() {}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	ok := &fakeSender{name: "ok"}
	bad := &fakeSender{name: "bad", err: errors.New("refused")}
	also := &fakeSender{name: "also"}

	err := NewMulti(ok, bad, also).Send(context.Background(), testMessage)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDispatchFailed))
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, ok.sent, 1)
	assert.Len(t, also.sent, 1, "a failing sender must not block the others")
}

func TestMultiAllSucceed(t *testing.T) {
	assert.NoError(t, NewMulti(&fakeSender{name: "a"}, &fakeSender{name: "b"}).Send(context.Background(), testMessage))
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(zap.NewNop())
	assert.Equal(t, "log", s.Name())
	assert.NoError(t, s.Send(context.Background(), testMessage))
}

func TestWebhookDelivers(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	s := NewWebhookSender(WebhookConfig{URL: srv.URL, MaxRetries: 2}, zap.NewNop(), rec)

	require.NoError(t, s.Send(context.Background(), testMessage))
	assert.Equal(t, testMessage, got)
	assert.Equal(t, int32(1), rec.requests.Load())
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	s := NewWebhookSender(WebhookConfig{
		URL:          srv.URL,
		MaxRetries:   3,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	}, zap.NewNop(), rec)

	require.NoError(t, s.Send(context.Background(), testMessage))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), rec.retries.Load())
	assert.Equal(t, int32(2), rec.failures.Load())
}

func TestWebhookGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSender(WebhookConfig{
		URL:          srv.URL,
		MaxRetries:   2,
		RetryWaitMin: time.Millisecond,
	}, zap.NewNop(), nil)

	err := s.Send(context.Background(), testMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAPIError))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad payload"))
	}))
	defer srv.Close()

	s := NewWebhookSender(WebhookConfig{URL: srv.URL, MaxRetries: 3, RetryWaitMin: time.Millisecond}, zap.NewNop(), nil)

	err := s.Send(context.Background(), testMessage)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewWebhookSender(WebhookConfig{
		URL:          srv.URL,
		MaxRetries:   5,
		RetryWaitMin: time.Hour,
		RetryWaitMax: time.Hour,
	}, zap.NewNop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Send(ctx, testMessage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShouldRetry(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, shouldRetry(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 501} {
		assert.False(t, shouldRetry(code), code)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
	assert.True(t, isRetryable(errors.New("read: connection reset by peer")))
	assert.True(t, isRetryable(io.ErrUnexpectedEOF))
	assert.False(t, isRetryable(errors.New("certificate signed by unknown authority")))
}

func TestSMTPSenderBuildsHTMLMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s := NewSMTPSender(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "alerts@example.com",
		Password: "secret", // pragma: allowlist secret
		To:       []string{"ops@example.com", "oncall@example.com"},
	}, zap.NewNop())
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, s.Send(context.Background(), testMessage))

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "alerts@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, gotTo)

	raw := string(gotMsg)
	assert.Contains(t, raw, "Subject: Error ratio alert: b.log\r\n")
	assert.Contains(t, raw, "To: ops@example.com, oncall@example.com\r\n")
	assert.Contains(t, raw, `Content-Type: text/html; charset="utf-8"`)
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\n"+testMessage.Body))
}

func TestSMTPSenderFailure(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25, To: []string{"ops@example.com"}}, zap.NewNop())
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("550 mailbox unavailable")
	}

	err := s.Send(context.Background(), testMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "550")
}

func TestSMTPSenderRequiresRecipients(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25}, zap.NewNop())
	assert.Error(t, s.Send(context.Background(), testMessage))
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func (f *fakePublisher) FlushWithContext(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("context has no deadline")
	}
	return nil
}

func TestNATSSenderPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSender(pub, "logs.alerts", zap.NewNop())

	require.NoError(t, s.Send(context.Background(), testMessage))
	assert.Equal(t, "logs.alerts", pub.subject)

	var got Message
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, testMessage, got)
	assert.NoError(t, s.Close())
}

func TestNATSSenderPublishError(t *testing.T) {
	s := NewNATSSender(&fakePublisher{err: errors.New("connection closed")}, "logs.alerts", zap.NewNop())
	assert.Error(t, s.Send(context.Background(), testMessage))
}

func TestFromConfig(t *testing.T) {
	t.Run("nothing configured logs", func(t *testing.T) {
		s, closeFn, err := FromConfig(&config.Config{}, "test", nil, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "log", s.Name())
		assert.NoError(t, closeFn())
	})

	t.Run("single channel", func(t *testing.T) {
		s, closeFn, err := FromConfig(&config.Config{WebhookURL: "http://localhost:1"}, "test", nil, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "webhook", s.Name())
		assert.NoError(t, closeFn())
	})

	t.Run("several channels fan out", func(t *testing.T) {
		s, closeFn, err := FromConfig(&config.Config{
			WebhookURL:      "http://localhost:1",
			SMTPHost:        "localhost",
			SMTPPort:        25,
			AlertRecipients: []string{"ops@example.com"},
		}, "test", nil, zap.NewNop())
		require.NoError(t, err)
		require.IsType(t, &Multi{}, s)
		assert.Len(t, s.(*Multi).Senders(), 2)
		assert.NoError(t, closeFn())
	})
}
