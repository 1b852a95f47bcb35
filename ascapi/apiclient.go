package ascapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/bluesky-social/shipyard/pkg/robusthttp"

	"github.com/carlmjohnson/versioninfo"
)

// Authenticated client for the App Store Connect API (token mode) or the web-session APIs behind it (cookie mode).
//
// Every call goes through the same transport pipeline, and every response through the same normalizer, so calling code sees a uniform set of error types.
type APIClient struct {
	// Base URL which relative request targets are resolved against. May be changed after creation (eg, to point at a test server).
	Host string

	// Credential state. Shared with derived clients only by copy.
	Session *Session

	// Inner HTTP client. Bound in to the pipeline at creation; use [Config.HTTPClient] to customize it.
	Client *http.Client

	// Optional HTTP headers which will be included in all requests. Only a single value per key is included; request-level headers override client-level defaults.
	Headers http.Header

	Auth   AuthMethod
	Retry  *RetryPolicy
	Logger *slog.Logger

	pipeline Handler
}

// Creates a client from exactly one of: a web-session cookie, an API token, or another client (to derive a web session from).
//
// Misconfiguration fails here, before any network request: see [ErrInvalidConfig] and [ErrNotImplemented].
func NewAPIClient(cfg Config) (*APIClient, error) {
	if cfg.credentialCount() != 1 {
		return nil, fmt.Errorf("%w: must initialize with exactly one of cookie, token, or another client", ErrInvalidConfig)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("subsystem", "ascapi")
	}

	c := &APIClient{
		Headers: http.Header{
			"User-Agent": []string{"shipyard/" + versioninfo.Short()},
		},
		Retry:  cfg.Retry,
		Logger: logger,
	}
	if c.Retry == nil {
		c.Retry = DefaultRetryPolicy()
	}

	var env *Env
	var httpOpts []robusthttp.Option
	switch {
	case cfg.Token != nil:
		env = cfg.Env
		if env == nil {
			var err error
			env, err = LoadEnv()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
			}
		}
		c.Session = newTokenSession(cfg.Token, cfg.TeamID)
		c.Host = ConnectAPIHost
		c.Auth = &TokenAuth{Session: c.Session, Logger: logger}
		httpOpts = append(httpOpts,
			robusthttp.WithTimeout(env.RequestTimeout()),
			robusthttp.WithConnectTimeout(env.ConnectTimeout()),
		)
	case cfg.Cookie != "":
		if cfg.Hosts == nil {
			return nil, fmt.Errorf("%w: web session host: %w", ErrInvalidConfig, ErrNotImplemented)
		}
		env = cfg.Env
		c.Session = newCookieSession(cfg.Cookie, cfg.TeamID, cfg.CSRFTokens)
		c.Host = cfg.Hosts.Hostname()
		c.Auth = &CookieAuth{Session: c.Session}
		httpOpts = append(httpOpts, robusthttp.WithTimeout(WebSessionTimeout))
	default:
		if cfg.Hosts == nil {
			return nil, fmt.Errorf("%w: web session host: %w", ErrInvalidConfig, ErrNotImplemented)
		}
		if cfg.Another.Session == nil {
			return nil, fmt.Errorf("%w: client to derive from was not created with NewAPIClient", ErrInvalidConfig)
		}
		// derived sessions keep library default timeouts, and don't re-read the environment
		env = cfg.Env
		c.Session = cfg.Another.Session.derive()
		c.Host = cfg.Hosts.Hostname()
		c.Auth = &CookieAuth{Session: c.Session}
		httpOpts = append(httpOpts, robusthttp.WithTimeout(DefaultTimeout))
	}
	if env == nil {
		env = &Env{}
	}

	proxyOpts, err := proxyOptions(env)
	if err != nil {
		return nil, err
	}
	httpOpts = append(httpOpts, proxyOpts...)

	if env.Debug {
		logger.Info("to run API requests through a local proxy, set SHIPYARD_LOCAL_PROXY=true")
	}

	c.Client = cfg.HTTPClient
	if c.Client == nil {
		c.Client = robusthttp.NewClient(httpOpts...)
	}

	stages := []Stage{
		decodeStage(logger),
		relsStage(),
		statsStage(logger, c.Auth.Kind()),
		c.Retry.stage(logger),
		c.Auth.DoWithAuth,
	}
	if limiter := newLimiter(env.RateLimit); limiter != nil {
		stages = append(stages, throttleStage(limiter))
	}
	c.pipeline = Chain(sendWith(c.Client), stages...)
	return c, nil
}

// Debugging proxy settings. Nothing here is reachable unless explicitly enabled in the environment.
func proxyOptions(env *Env) ([]robusthttp.Option, error) {
	switch {
	case env.LocalProxy:
		u, err := url.Parse(LocalProxyURL)
		if err != nil {
			return nil, err
		}
		return []robusthttp.Option{robusthttp.WithProxy(u), robusthttp.WithInsecureSkipVerify()}, nil
	case env.Proxy != "":
		u, err := url.Parse(env.Proxy)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid proxy URL: %w", ErrInvalidConfig, err)
		}
		opts := []robusthttp.Option{robusthttp.WithProxy(u)}
		if env.ProxySSLVerifyNone {
			opts = append(opts, robusthttp.WithInsecureSkipVerify())
		}
		return opts, nil
	}
	return nil, nil
}

// Returns true for cookie-based (web session) clients.
func (c *APIClient) WebSession() bool {
	return c.Session.IsWebSession()
}

// JSON "GET" request. Params may be nil; see [EncodeParams] for supported types.
//
// Returns (nil, nil) for a successful response with an empty body.
func (c *APIClient) Get(ctx context.Context, target string, params any, opts ...RequestOption) (*Response, error) {
	req := NewAPIRequest(http.MethodGet, target, opts...)
	req.Params = params
	req.Headers.Set("Content-Type", "application/json")
	return c.Do(ctx, req)
}

// JSON "POST" request; body is serialized as JSON.
func (c *APIClient) Post(ctx context.Context, target string, body any, opts ...RequestOption) (*Response, error) {
	req := NewAPIRequest(http.MethodPost, target, opts...)
	req.Body = body
	req.Headers.Set("Content-Type", "application/json")
	return c.Do(ctx, req)
}

// Same as [APIClient.Post], with the PATCH method.
func (c *APIClient) Patch(ctx context.Context, target string, body any, opts ...RequestOption) (*Response, error) {
	req := NewAPIRequest(http.MethodPatch, target, opts...)
	req.Body = body
	req.Headers.Set("Content-Type", "application/json")
	return c.Do(ctx, req)
}

// "DELETE" request. Query params and JSON body are each optional (nil), independently.
func (c *APIClient) Delete(ctx context.Context, target string, params any, body any, opts ...RequestOption) (*Response, error) {
	req := NewAPIRequest(http.MethodDelete, target, opts...)
	req.Params = params
	if body != nil {
		req.Body = body
		req.Headers.Set("Content-Type", "application/json")
	}
	return c.Do(ctx, req)
}

// Full-featured method for API requests: runs the request through the transport pipeline, then classifies the response.
func (c *APIClient) Do(ctx context.Context, req *APIRequest) (*Response, error) {
	if c.pipeline == nil {
		return nil, fmt.Errorf("%w: client was not created with NewAPIClient", ErrInvalidConfig)
	}
	prepared, err := req.prepare(c.Host, c.Headers)
	if err != nil {
		return nil, err
	}
	raw, err := c.pipeline(ctx, prepared)
	if err != nil {
		return nil, err
	}
	return c.handleResponse(raw)
}
