package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"time"

	"mediapost/internal/logging"
)

const (
	defaultMaxAttempts = 5
	maxBackoffSeconds  = 60
	jitterMin          = 100 * time.Millisecond
	jitterMax          = 500 * time.Millisecond
)

// Client retries a Backend with bounded exponential backoff.
type Client struct {
	backend     Backend
	maxAttempts int
	logger      *slog.Logger
	sleeper     func(ctx context.Context, d time.Duration) error
	jitter      func() time.Duration
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithMaxAttempts overrides the attempt bound (defaults to 5).
func WithMaxAttempts(attempts int) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithSleeper overrides how waits are performed (useful for tests).
func WithSleeper(sleeper func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// WithJitter overrides the random jitter source (useful for tests).
func WithJitter(jitter func() time.Duration) ClientOption {
	return func(c *Client) {
		if jitter != nil {
			c.jitter = jitter
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient wraps backend with the retry policy.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	client := &Client{
		backend:     backend,
		maxAttempts: defaultMaxAttempts,
		logger:      logging.NewNop(),
		sleeper:     sleepContext,
		jitter:      randomJitter,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Backend returns the wrapped backend.
func (c *Client) Backend() Backend {
	return c.backend
}

// BackoffDelay returns the base wait before the given zero-based attempt:
// min(60, 2^attempt) seconds.
func BackoffDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	seconds := maxBackoffSeconds
	if attempt < 6 {
		seconds = min(maxBackoffSeconds, 1<<attempt)
	}
	return time.Duration(seconds) * time.Second
}

// Transcribe calls the backend until it succeeds or the attempt bound is
// reached. Quota and authentication failures return immediately, as do 4xx
// rejections of the request itself. Other expected remote failures and
// timeouts are retried; exhausting the bound yields an error wrapping
// ErrRetriesExhausted. Other transport errors are returned as-is.
func (c *Client) Transcribe(ctx context.Context, req Request) (Result, error) {
	logger := logging.WithContext(ctx, c.logger).With(
		logging.String("backend", c.backend.Name()),
		logging.String("chunk", req.Path),
	)
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := BackoffDelay(attempt) + c.jitter()
			logger.Info("retrying transcription",
				logging.Int("attempt", attempt+1),
				logging.Int("max_attempts", c.maxAttempts),
				logging.Duration("delay", delay),
			)
			if err := c.sleeper(ctx, delay); err != nil {
				return Result{}, err
			}
		}

		result, err := c.backend.Transcribe(ctx, req)
		if err == nil {
			if attempt > 0 {
				logger.Info("transcription succeeded after retry", logging.Int("attempt", attempt+1))
			}
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}

		var remote *RemoteError
		switch {
		case errors.As(err, &remote):
			if remote.Terminal() {
				logger.Error("transcription backend rejected request",
					logging.Error(err),
					logging.String(logging.FieldEventType, "transcription_"+string(remote.Kind)),
					logging.String(logging.FieldErrorHint, "check the backend API key and account quota"),
					logging.String(logging.FieldImpact, "transcription cannot proceed until the account is fixed"),
				)
				return Result{}, err
			}
			if !remote.Retryable() {
				logging.WarnWithContext(logger, "transcription backend refused chunk", "transcription_"+string(remote.Kind),
					logging.Error(err),
					logging.Int("status", remote.StatusCode),
					logging.String(logging.FieldErrorHint, "check the chunk size and format against the backend limits"),
					logging.String(logging.FieldImpact, "the chunk is not sent again"),
				)
				return Result{}, err
			}
			logger.Warn("transcription attempt failed",
				logging.Int("attempt", attempt+1),
				logging.String("kind", string(remote.Kind)),
				logging.Error(err),
				logging.String(logging.FieldEventType, "transcription_attempt_failed"),
				logging.String(logging.FieldErrorHint, "the request will be retried with backoff"),
			)
			if remote.Kind == ErrorRateLimit && attempt < c.maxAttempts-1 {
				wait := c.backend.RateLimitBackoff()
				logger.Info("rate limit detected; waiting", logging.Duration("wait", wait))
				if err := c.sleeper(ctx, wait); err != nil {
					return Result{}, err
				}
			}
		case isTimeout(err):
			logger.Warn("transcription attempt timed out",
				logging.Int("attempt", attempt+1),
				logging.Error(err),
				logging.String(logging.FieldEventType, "transcription_attempt_timeout"),
				logging.String(logging.FieldErrorHint, "raise transcription.request_timeout_seconds for long chunks"),
			)
		default:
			return Result{}, err
		}
		lastErr = err
	}
	return Result{}, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.maxAttempts, lastErr)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func randomJitter() time.Duration {
	return jitterMin + time.Duration(rand.Int64N(int64(jitterMax-jitterMin)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
