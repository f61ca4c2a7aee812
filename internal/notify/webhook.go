package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/tareqmamari/logs-ratio-server/internal/errors"
	"github.com/tareqmamari/logs-ratio-server/internal/security"
	"github.com/tareqmamari/logs-ratio-server/internal/tracing"
)

const maxResponseBody = 64 * 1024

// RequestRecorder receives per-request delivery metrics.
type RequestRecorder interface {
	RecordRequest(success bool, latency time.Duration, statusCode int)
	RecordRetry()
	RecordRateLimitHit()
}

// WebhookConfig configures the webhook sender.
type WebhookConfig struct {
	URL            string
	Timeout        time.Duration
	MaxRetries     int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	RateLimit      int // requests per second, 0 disables limiting
	RateLimitBurst int
	Version        string
}

// WebhookSender POSTs alerts as JSON with rate limiting and retries.
type WebhookSender struct {
	httpClient  *http.Client
	cfg         WebhookConfig
	logger      *zap.Logger
	rateLimiter *rate.Limiter
	recorder    RequestRecorder
}

// NewWebhookSender creates a webhook sender. recorder may be nil.
func NewWebhookSender(cfg WebhookConfig, logger *zap.Logger, recorder RequestRecorder) *WebhookSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = time.Second
	}
	if cfg.RetryWaitMax < cfg.RetryWaitMin {
		cfg.RetryWaitMax = cfg.RetryWaitMin
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	var rateLimiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		rateLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &WebhookSender{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		cfg:         cfg,
		logger:      logger.Named("webhook"),
		rateLimiter: rateLimiter,
		recorder:    recorder,
	}
}

// Name implements Sender.
func (w *WebhookSender) Name() string {
	return "webhook"
}

// Send implements Sender. Transient network errors, 429 and 5xx responses
// are retried with exponential backoff.
func (w *WebhookSender) Send(ctx context.Context, msg Message) error {
	ctx, span := tracing.NotifySpan(ctx, w.Name())
	defer span.End()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			// Cap shift value to prevent overflow
			shift := min(attempt-1, 30)
			waitTime := w.cfg.RetryWaitMin * time.Duration(1<<shift)
			if waitTime > w.cfg.RetryWaitMax {
				waitTime = w.cfg.RetryWaitMax
			}

			w.logger.Debug("Retrying webhook",
				zap.Int("attempt", attempt),
				zap.Duration("wait", waitTime),
			)
			if w.recorder != nil {
				w.recorder.RecordRetry()
			}

			select {
			case <-time.After(waitTime):
			case <-ctx.Done():
				tracing.RecordError(span, ctx.Err())
				return ctx.Err()
			}
		}

		status, body, err := w.post(ctx, payload)
		if err != nil {
			lastErr = err
			if isRetryable(err) {
				continue
			}
			tracing.RecordError(span, err)
			return err
		}

		if status >= 200 && status < 300 {
			tracing.SetSuccess(span)
			return nil
		}

		lastErr = apperrors.FromHTTPStatus(status, body)
		if shouldRetry(status) {
			continue
		}
		tracing.RecordError(span, lastErr)
		return lastErr
	}

	err = fmt.Errorf("max retries exceeded: %w", lastErr)
	tracing.RecordError(span, err)
	return err
}

func (w *WebhookSender) post(ctx context.Context, payload []byte) (int, string, error) {
	if w.rateLimiter != nil && !w.rateLimiter.Allow() {
		if w.recorder != nil {
			w.recorder.RecordRateLimitHit()
		}
		if err := w.rateLimiter.Wait(ctx); err != nil {
			return 0, "", fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", fmt.Sprintf("logs-ratio-server/%s", w.cfg.Version))
	for k, v := range tracing.FromContext(ctx).Headers() {
		req.Header.Set(k, v)
	}

	startTime := time.Now()
	resp, err := w.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		w.record(false, duration, 0)
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = security.MaskURL(urlErr.URL)
		}
		w.logger.Warn("Webhook request failed",
			zap.String("error", security.SanitizeError(err)),
			zap.Duration("duration", duration),
		)
		return 0, "", fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			w.logger.Warn("Failed to close response body", zap.Error(closeErr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		w.record(false, duration, resp.StatusCode)
		return 0, "", fmt.Errorf("failed to read response body: %w", err)
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	w.record(success, duration, resp.StatusCode)
	w.logger.Debug("Webhook request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
	)
	return resp.StatusCode, string(body), nil
}

func (w *WebhookSender) record(success bool, latency time.Duration, status int) {
	if w.recorder != nil {
		w.recorder.RecordRequest(success, latency, status)
	}
}

// Close releases idle connections.
func (w *WebhookSender) Close() error {
	w.httpClient.CloseIdleConnections()
	return nil
}

// isRetryable determines if an error is retryable (transient network errors)
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation is never retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ENETUNREACH) ||
			errors.Is(opErr.Err, syscall.EHOSTUNREACH) ||
			errors.Is(opErr.Err, syscall.ETIMEDOUT) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"network is unreachable",
		"i/o timeout",
		"tls handshake timeout",
		"eof",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	// Don't retry unknown errors
	return false
}

// shouldRetry determines if an HTTP status code should trigger a retry
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
