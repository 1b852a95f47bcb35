package ascapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Controls the retry stage of the transport pipeline.
type RetryPolicy struct {
	// Total attempts per call, including the first. Overridable per call with [WithMaxAttempts].
	MaxAttempts int

	// HTTP status codes which trigger another attempt
	RetryStatuses []int

	WaitMin time.Duration
	WaitMax time.Duration

	// Computes the delay before the next attempt. Results are clamped to WaitMax, so the total time spent waiting is bounded.
	Backoff retryablehttp.Backoff

	// Blocks for the given duration, or until the context is done. Tests replace this to avoid real sleeps.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Retries up to 5 attempts total on HTTP 429, 500, and 504, or on retryable network failures; exponential backoff from 1s to 30s.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   5,
		RetryStatuses: []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusGatewayTimeout},
		WaitMin:       1 * time.Second,
		WaitMax:       30 * time.Second,
		Backoff:       retryablehttp.DefaultBackoff,
		Sleep:         sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Decides whether an attempt outcome should be retried. A non-nil error return means retrying is impossible (eg, the context was cancelled).
func (p *RetryPolicy) shouldRetry(ctx context.Context, resp *RawResponse, err error) (bool, error) {
	if err != nil {
		// only network-level failures are retried; errors from other stages (eg, token signing) are returned as-is
		var uerr *url.Error
		if !errors.As(err, &uerr) {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, nil, err)
	}
	if !slices.Contains(p.RetryStatuses, resp.StatusCode) {
		return false, nil
	}
	// a completed response is kept even if the context is done; only another attempt is ruled out
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return true, nil
}

func (p *RetryPolicy) wait(attempt int, resp *RawResponse) time.Duration {
	backoff := p.Backoff
	if backoff == nil {
		backoff = retryablehttp.DefaultBackoff
	}
	var httpResp *http.Response
	if resp != nil {
		httpResp = &http.Response{StatusCode: resp.StatusCode, Header: resp.Header}
	}
	d := backoff(p.WaitMin, p.WaitMax, attempt, httpResp)
	if p.WaitMax > 0 && d > p.WaitMax {
		d = p.WaitMax
	}
	return d
}

func (p *RetryPolicy) stage(logger *slog.Logger) Stage {
	return func(ctx context.Context, req *PreparedRequest, next Handler) (*RawResponse, error) {
		maxAttempts := p.MaxAttempts
		if req.MaxAttempts > 0 {
			maxAttempts = req.MaxAttempts
		}
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		sleep := p.Sleep
		if sleep == nil {
			sleep = sleepContext
		}

		for attempt := 1; ; attempt++ {
			resp, err := next(ctx, req)

			retry, policyErr := p.shouldRetry(ctx, resp, err)
			if policyErr != nil {
				return nil, &TransportError{Method: req.Method, URL: req.URL, Attempts: attempt, Err: policyErr}
			}

			if !retry || attempt >= maxAttempts {
				if err != nil {
					var uerr *url.Error
					if errors.As(err, &uerr) {
						return nil, &TransportError{Method: req.Method, URL: req.URL, Attempts: attempt, Err: err}
					}
					return nil, err
				}
				resp.Attempts = attempt
				return resp, nil
			}

			delay := p.wait(attempt-1, resp)
			if err != nil {
				logger.Warn("API request failed, retrying", "method", req.Method, "url", req.URL, "attempt", attempt, "delay", delay, "err", err)
			} else {
				logger.Warn("API request failed, retrying", "method", req.Method, "url", req.URL, "attempt", attempt, "delay", delay, "status", resp.StatusCode)
			}

			if err := sleep(ctx, delay); err != nil {
				return nil, &TransportError{Method: req.Method, URL: req.URL, Attempts: attempt, Err: err}
			}
		}
	}
}
