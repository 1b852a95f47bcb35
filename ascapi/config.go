package ascapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// Base host for all token-mode clients
	ConnectAPIHost = "https://api.appstoreconnect.apple.com/v1/"

	// Address of a local intercepting proxy, used when [Env.LocalProxy] is set
	LocalProxyURL = "https://127.0.0.1:8888"

	// Web-session endpoints can be very slow
	WebSessionTimeout = 1200 * time.Second

	DefaultTimeout = 300 * time.Second
)

// Environment-driven settings, read with the "SHIPYARD_" prefix (eg, SHIPYARD_TIMEOUT).
type Env struct {
	// Request timeout, in seconds
	Timeout int `envconfig:"TIMEOUT" default:"300"`

	// Connect timeout, in seconds. Defaults to Timeout when unset.
	OpenTimeout int `envconfig:"OPEN_TIMEOUT"`

	// Route all requests through a local debugging proxy, without TLS verification
	LocalProxy bool `envconfig:"LOCAL_PROXY"`

	Proxy              string `envconfig:"PROXY"`
	ProxySSLVerifyNone bool   `envconfig:"PROXY_SSL_VERIFY_NONE"`

	// Client-side request rate limit (requests per second); zero disables
	RateLimit float64 `envconfig:"RATE_LIMIT"`

	// Verbose diagnostic output. Also read from plain DEBUG. Never changes behavior.
	Debug bool `envconfig:"DEBUG"`
}

// Reads [Env] from the process environment.
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process("shipyard", &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Env) RequestTimeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(e.Timeout) * time.Second
}

func (e *Env) ConnectTimeout() time.Duration {
	if e.OpenTimeout <= 0 {
		return e.RequestTimeout()
	}
	return time.Duration(e.OpenTimeout) * time.Second
}

// Construction-time options for [NewAPIClient]. Exactly one of Cookie, Token, or Another must be provided.
type Config struct {
	// Web-session cookie header value
	Cookie     string
	TeamID     string
	CSRFTokens map[string]string

	// API token
	Token Token

	// Existing client to derive a web session from (cookie, team, and CSRF tokens are copied; a token never is)
	Another *APIClient

	// Base host for web-session and derived clients. Required for those modes.
	Hosts HostResolver

	// Environment settings. If nil, token-mode clients read them with [LoadEnv].
	Env *Env

	// Overrides the HTTP client built from Env; mostly for tests.
	HTTPClient *http.Client

	// Overrides [DefaultRetryPolicy].
	Retry *RetryPolicy

	Logger *slog.Logger
}

func (cfg *Config) credentialCount() int {
	n := 0
	if cfg.Cookie != "" {
		n++
	}
	if cfg.Token != nil {
		n++
	}
	if cfg.Another != nil {
		n++
	}
	return n
}
