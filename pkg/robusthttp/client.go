package robusthttp

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type settings struct {
	timeout            time.Duration
	connectTimeout     time.Duration
	proxy              *url.URL
	insecureSkipVerify bool
	transport          http.RoundTripper
	tracing            bool
}

type Option func(*settings)

// WithTimeout sets the overall per-request timeout (connect, headers, and body).
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.timeout = timeout
	}
}

// WithConnectTimeout sets the TCP dial and TLS handshake timeout.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.connectTimeout = timeout
	}
}

// WithProxy routes all requests through the given proxy, instead of the proxy (if any) from the environment.
func WithProxy(proxy *url.URL) Option {
	return func(s *settings) {
		s.proxy = proxy
	}
}

// WithInsecureSkipVerify disables TLS certificate verification. Only meant for debugging through an intercepting proxy.
func WithInsecureSkipVerify() Option {
	return func(s *settings) {
		s.insecureSkipVerify = true
	}
}

// WithTransport sets a custom base transport. Proxy, TLS, and connect timeout options are ignored in that case.
func WithTransport(transport http.RoundTripper) Option {
	return func(s *settings) {
		s.transport = transport
	}
}

// WithoutTracing disables the OpenTelemetry transport wrapper.
func WithoutTracing() Option {
	return func(s *settings) {
		s.tracing = false
	}
}

// Generates an HTTP client with decent general-purpose defaults around
// timeouts and connection pooling. Requests are traced with OpenTelemetry.
//
// This client does not retry: retries are the job of the calling API client,
// which knows which status codes are safe to retry. This does not start from
// http.DefaultClient.
func NewClient(options ...Option) *http.Client {
	s := settings{
		timeout:        30 * time.Second,
		connectTimeout: 30 * time.Second,
		tracing:        true,
	}
	for _, option := range options {
		option(&s)
	}

	transport := s.transport
	if transport == nil {
		transport = newTransport(&s)
	}
	if s.tracing {
		transport = otelhttp.NewTransport(transport)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   s.timeout,
	}
}

func newTransport(s *settings) *http.Transport {
	t := cleanhttp.DefaultPooledTransport()
	t.DialContext = (&net.Dialer{
		Timeout:   s.connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.TLSHandshakeTimeout = s.connectTimeout
	if s.proxy != nil {
		t.Proxy = http.ProxyURL(s.proxy)
	}
	if s.insecureSkipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return t
}

// For use in local integration tests. Short timeouts, no tracing, etc
func TestingHTTPClient() *http.Client {
	return &http.Client{
		Transport: cleanhttp.DefaultPooledTransport(),
		Timeout:   1 * time.Second,
	}
}
