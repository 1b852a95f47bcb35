package ascapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// At most this many token refreshes happen during a single API call (across all retry attempts).
const maxRefreshesPerCall = 1

// Interface for the credential-injection stage of an [APIClient] pipeline.
type AuthMethod interface {
	DoWithAuth(ctx context.Context, req *PreparedRequest, next Handler) (*RawResponse, error)

	// Short name for logs and metrics
	Kind() string
}

// Bearer token auth for the App Store Connect API. Refreshes the token before use when it has expired, and once more if the service rejects it with HTTP 401.
type TokenAuth struct {
	Session *Session
	Logger  *slog.Logger
}

func (a *TokenAuth) Kind() string {
	return "token"
}

func (a *TokenAuth) DoWithAuth(ctx context.Context, req *PreparedRequest, next Handler) (*RawResponse, error) {
	token, err := a.Session.BearerToken()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := next(ctx, req)
	if err != nil {
		return nil, err
	}

	// on success, or most errors, just return the response
	if resp.StatusCode != http.StatusUnauthorized || req.refreshes >= maxRefreshesPerCall {
		return resp, nil
	}

	// service rejected the token: refresh (unless another call already did) and try once more
	req.refreshes++
	a.Logger.Info("API token rejected, refreshing", "method", req.Method, "url", req.URL)
	if err := a.Session.RefreshToken(token); err != nil {
		return nil, err
	}
	token, err = a.Session.BearerToken()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return next(ctx, req)
}

// Web-session auth: sends the session cookie and the latest CSRF tokens.
type CookieAuth struct {
	Session *Session
}

func (a *CookieAuth) Kind() string {
	return "cookie"
}

func (a *CookieAuth) DoWithAuth(ctx context.Context, req *PreparedRequest, next Handler) (*RawResponse, error) {
	if cookie := a.Session.Cookie(); cookie != "" {
		req.Header.Set("Cookie", strings.TrimSpace(cookie))
	}
	for k, v := range a.Session.CSRFTokens() {
		req.Header.Set(k, v)
	}
	return next(ctx, req)
}
