// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages: the browser
// header set the file server insists on, 429-aware request execution, and
// exponential-backoff retries for whole operations.
package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/datfetch/internal/ctxlog"
)

// RetryBaseDelay controls the base duration for exponential backoff on
// HTTP 429 responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 10 * time.Second

const defaultMaxRetries = 5

// Backoff returns the delay before retry number attempt (0-based):
// base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return base
	}
	return base << uint(attempt)
}

// DoWithRetry executes an HTTP request and retries on HTTP 429 (Too Many
// Requests) with exponential backoff. The delay starts at RetryBaseDelay
// and doubles each attempt.
//
// When maxRetries is 0 the default (5) is used. On each 429 the response
// body is drained and closed before sleeping. If the context is cancelled
// during a backoff wait the function returns ctx.Err(). After exhausting
// retries the last 429 response is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for attempt := 0; ; attempt++ {
		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if attempt >= maxRetries {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		backoff := Backoff(RetryBaseDelay, attempt)
		ctxlog.FromContext(ctx).Warn("rate limited",
			"url", req.URL.String(), "retry_in", backoff, "attempt", attempt+1, "max", maxRetries)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry calls fn up to attempts times, sleeping Backoff(base, n) between
// attempts. It returns the number of attempts made and the last error.
// Permanent errors stop the loop early; cancellation during a backoff
// wait returns ctx.Err().
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(attempt int) error) (int, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for n := 0; n < attempts; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return n, ctx.Err()
			case <-time.After(Backoff(base, n-1)):
			}
		}

		err = fn(n + 1)
		if err == nil {
			return n + 1, nil
		}
		if IsPermanent(err) {
			return n + 1, err
		}
	}
	return attempts, err
}
