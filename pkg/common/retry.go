package common

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/peakguard/peakguard/pkg/log"
)

// RetryConfig controls how Do retries throttled or failing requests.
type RetryConfig struct {
	// MaxRetries is the number of attempts made after the first one.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter adds up to 25% on top of each computed delay.
	Jitter bool
}

// DefaultRetryConfig returns the retry policy used by the device clients.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Backoff returns the delay before the given retry attempt (1-based).
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter {
		// #nosec G404 - retry jitter does not need a cryptographic source
		delay += rand.Float64() * 0.25 * delay
	}
	return time.Duration(delay)
}

// IsRetryableStatus reports whether an HTTP status is worth retrying.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Do builds a request with newReq and sends it with client, retrying
// throttled/5xx responses and transport errors with exponential backoff. A
// Retry-After header on the failed response replaces the computed delay (still
// capped at MaxDelay). Any response with a non-retryable status is returned to
// the caller as-is; the caller owns the body. When every attempt fails the
// last transient RemoteError is returned.
func Do(ctx context.Context, client *http.Client, cfg RetryConfig, newReq func(context.Context) (*http.Request, error)) (*http.Response, error) {
	cfg.MaxRetries = max(0, cfg.MaxRetries)

	var lastErr *RemoteError
	var retryAfter time.Duration

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.Backoff(attempt)
			if retryAfter > 0 {
				delay = retryAfter
				if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			}
			log.Ctx(ctx).DebugContext(
				ctx,
				"retrying remote call",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", lastErr),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, Transient(0, "retry cancelled", ctx.Err())
			case <-timer.C:
			}
		}

		req, err := newReq(ctx)
		if err != nil {
			return nil, Permanent(0, "failed to build request", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, Transient(0, "request cancelled", err)
			}
			lastErr = Transient(0, fmt.Sprintf("%s %s failed", req.Method, req.URL.Path), err)
			retryAfter = 0
			continue
		}

		if !IsRetryableStatus(resp.StatusCode) {
			return resp, nil
		}

		retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		lastErr = StatusError(resp)
		log.Ctx(ctx).WarnContext(
			ctx,
			"remote call failed with retryable status",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int("status", lastErr.Status),
			slog.Int("attempt", attempt),
		)
	}

	lastErr.Message = fmt.Sprintf("%s (gave up after %d attempts)", lastErr.Message, cfg.MaxRetries+1)
	return nil, lastErr
}

// parseRetryAfter parses a Retry-After header given either in seconds or as an
// HTTP date.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		return time.Until(t)
	}
	return 0
}
