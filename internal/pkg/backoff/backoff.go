// Package backoff provides the retry-delay arithmetic shared by the inbox
// synchronizer, the enrichment client, and the job queue: exponential
// backoff with full jitter, Retry-After parsing, and context-aware sleeps.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Delay returns the backoff duration for the given attempt (1-based).
// Uses exponential growth with full jitter: random(0, min(max, base * 2^(attempt-1))).
func Delay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	if exp > float64(max) {
		exp = float64(max)
	}

	jittered := time.Duration(rand.Float64() * exp)

	// Floor at 100ms to avoid busy-looping
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}

// Exact returns the un-jittered exponential delay base * 2^(attempt-1),
// capped at max. The queue uses this so redelivery times are predictable.
func Exact(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	if exp > float64(max) {
		exp = float64(max)
	}
	return time.Duration(exp)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryAfter extracts a Retry-After delay from response headers.
// Only the delta-seconds form is handled; HTTP-date values are ignored.
func RetryAfter(h http.Header) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// IsRetryableStatus reports whether an HTTP status indicates a transient
// upstream condition worth retrying. Client errors (400, 401, 403, 404)
// are not retried.
func IsRetryableStatus(code int) bool {
	switch code {
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
