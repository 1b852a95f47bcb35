package ascapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Fully-resolved request as it moves through the transport pipeline. One is created per API call, and re-used across retry attempts; stages may mutate headers.
type PreparedRequest struct {
	Method string

	// Absolute URL, including encoded query parameters
	URL string

	Header http.Header

	// Optional serialized body; re-sent as-is on every attempt
	Body []byte

	// Attempt budget for this call (including the first attempt). Zero means the client default.
	MaxAttempts int

	// number of token refreshes performed during this call
	refreshes int
}

// Raw service response, after body decoding.
type RawResponse struct {
	StatusCode int
	Header     http.Header

	// Undecoded body bytes
	Raw []byte

	// Decoded body: map[string]any or []any for JSON/plist documents; string for anything else; nil when empty
	Body any

	// Link relations parsed from 'Link' headers (rel name to URL)
	Rels map[string]string

	// Number of attempts made by the retry stage
	Attempts int
}

// Sends one request (or the remainder of the pipeline).
type Handler func(ctx context.Context, req *PreparedRequest) (*RawResponse, error)

// One processing stage. A stage may modify the request, call next zero or more times, and inspect or modify the response.
type Stage func(ctx context.Context, req *PreparedRequest, next Handler) (*RawResponse, error)

// Composes stages around a terminal handler. The first stage is outermost: it sees the request first and the response last.
func Chain(send Handler, stages ...Stage) Handler {
	h := send
	for i := len(stages) - 1; i >= 0; i-- {
		stage, next := stages[i], h
		h = func(ctx context.Context, req *PreparedRequest) (*RawResponse, error) {
			return stage(ctx, req, next)
		}
	}
	return h
}

// Terminal handler which performs a single HTTP exchange and reads the whole body. Failures are returned as [*url.Error], which marks them as transport-level for the retry stage.
func sendWith(c *http.Client) Handler {
	return func(ctx context.Context, req *PreparedRequest) (*RawResponse, error) {
		var body io.Reader
		if req.Body != nil {
			body = bytes.NewReader(req.Body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
		if err != nil {
			return nil, fmt.Errorf("building HTTP request: %w", err)
		}
		for k := range req.Header {
			httpReq.Header.Set(k, req.Header.Get(k))
		}

		resp, err := c.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &url.Error{Op: req.Method, URL: req.URL, Err: err}
		}
		return &RawResponse{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Raw:        raw,
		}, nil
	}
}

// Client-side rate limiting; waits before every attempt.
func throttleStage(limiter *rate.Limiter) Stage {
	return func(ctx context.Context, req *PreparedRequest, next Handler) (*RawResponse, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		return next(ctx, req)
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func sinceMillis(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
