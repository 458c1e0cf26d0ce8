// Package httpx holds the retry policy shared by the outbound provider clients.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxRetryAfter caps a single backoff sleep before jitter.
const MaxRetryAfter = 10 * time.Second

// SendBudget is the longest Client.Do can take with the given per-request
// timeout and retry count.
func SendBudget(timeout time.Duration, maxRetries int) time.Duration {
	if maxRetries < 0 {
		maxRetries = 0
	}
	sleep := MaxRetryAfter + MaxRetryAfter/5
	return timeout*time.Duration(maxRetries+1) + sleep*time.Duration(maxRetries)
}

type HTTPStatusCoder interface {
	HTTPStatusCode() int
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("%s http %d: %s", e.Provider, e.StatusCode, msg)
}

func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

func IsRetryableHTTPStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetryableError reports transient failures. Cancellation by the caller is
// not retryable.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	return false
}

// IsSafeToResend reports failures where the provider cannot have acted on
// the request: the connection was never established, or the provider turned
// it away with 429, or with 503 and a Retry-After. Timeouts and other 5xx
// are not safe, the request may already have been processed.
func IsSafeToResend(err error, resp *http.Response) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var sc HTTPStatusCoder
	if errors.As(err, &sc) {
		switch sc.HTTPStatusCode() {
		case http.StatusTooManyRequests:
			return true
		case http.StatusServiceUnavailable:
			return resp != nil && strings.TrimSpace(resp.Header.Get("Retry-After")) != ""
		}
	}
	return false
}

func RetryAfterDuration(resp *http.Response, fallback, max time.Duration) time.Duration {
	sleepFor := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				sleepFor = time.Duration(secs) * time.Second
			}
		}
	}
	if max > 0 && sleepFor > max {
		sleepFor = max
	}
	return sleepFor
}

// JitterSleep spreads base by +/-20%.
func JitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

// Logger is the subset of the service logger the retry loop needs.
type Logger interface {
	Warn(msg string, keysAndValues ...interface{})
}

// Client executes a request with bounded retries on transient failures.
type Client struct {
	Provider    string
	HTTP        *http.Client
	MaxRetries  int
	BaseBackoff time.Duration
	// NonIdempotent restricts retries to IsSafeToResend failures. Set it for
	// calls that must not reach the provider twice, such as message sends.
	NonIdempotent bool
	Log           Logger
}

// Do runs build+send until it succeeds, fails permanently or retries run
// out. build is called once per attempt so bodies can be re-read.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, *http.Response, error) {
	backoff := c.BaseBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		body, resp, err := c.once(ctx, build)
		if err == nil {
			return body, resp, nil
		}
		if !c.retryable(err, resp) || attempt >= c.MaxRetries {
			return nil, resp, err
		}

		sleepFor := JitterSleep(RetryAfterDuration(resp, backoff, MaxRetryAfter))
		if c.Log != nil {
			c.Log.Warn("Provider request retrying",
				"provider", c.Provider,
				"attempt", attempt+1,
				"max_retries", c.MaxRetries,
				"sleep", sleepFor.String(),
				"error", err.Error(),
			)
		}
		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, resp, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (c *Client) retryable(err error, resp *http.Response) bool {
	if c.NonIdempotent {
		return IsSafeToResend(err, resp)
	}
	return IsRetryableError(err)
}

func (c *Client) once(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, *http.Response, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp, &StatusError{Provider: c.Provider, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, resp, nil
}
