package ascapi

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ascapi_requests_total",
	Help: "Number of App Store Connect API calls, by outcome",
}, []string{"method", "host", "auth", "status"})

var apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ascapi_request_duration_seconds",
	Help:    "Duration of App Store Connect API calls, including retries",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
}, []string{"method", "host", "auth"})

var apiRequestAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ascapi_request_attempts",
	Help:    "Number of HTTP attempts made per API call",
	Buckets: []float64{1, 2, 3, 4, 5},
}, []string{"method", "host"})

// Records per-call timing and outcome. Never alters the request or response, and passes errors through unchanged.
func statsStage(logger *slog.Logger, authKind string) Stage {
	return func(ctx context.Context, req *PreparedRequest, next Handler) (*RawResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		host := "unknown"
		if u, perr := url.Parse(req.URL); perr == nil {
			host = u.Host
		}
		status := "error"
		attempts := 0
		if resp != nil {
			status = strconv.Itoa(resp.StatusCode)
			attempts = resp.Attempts
		}

		apiRequests.WithLabelValues(req.Method, host, authKind, status).Inc()
		apiRequestDuration.WithLabelValues(req.Method, host, authKind).Observe(time.Since(start).Seconds())
		if attempts > 0 {
			apiRequestAttempts.WithLabelValues(req.Method, host).Observe(float64(attempts))
		}

		if err != nil {
			logger.Debug("API request failed", "method", req.Method, "url", req.URL, "auth", authKind, "duration_ms", sinceMillis(start), "err", err)
		} else {
			logger.Debug("API request", "method", req.Method, "url", req.URL, "auth", authKind, "status", resp.StatusCode, "attempts", attempts, "duration_ms", sinceMillis(start))
		}
		return resp, err
	}
}
