package ascapi

import (
	"net/http"
	"strings"
	"sync"
)

// Response headers which carry web-session anti-forgery tokens. They are echoed back as request headers on later calls.
var csrfHeaderNames = []string{"csrf", "csrf_ts"}

// Supplies the base host for web-session (cookie) clients. Each resource family (eg, the developer portal or the App Store Connect web API) provides its own.
type HostResolver interface {
	Hostname() string
}

// Static [HostResolver].
type HostURL string

func (h HostURL) Hostname() string {
	return string(h)
}

// Authenticated context used by an [APIClient]: either a web session (cookie, team, CSRF tokens) or an API token.
//
// Credential state may be updated in place after successful responses (CSRF tokens) or token refreshes. All access goes through methods, which hold a lock; it is safe to share a Session between goroutines.
type Session struct {
	lk sync.RWMutex

	cookie     string
	teamID     string
	csrfTokens map[string]string
	token      Token
}

func newCookieSession(cookie, teamID string, csrf map[string]string) *Session {
	return &Session{
		cookie:     cookie,
		teamID:     teamID,
		csrfTokens: cloneTokens(csrf),
	}
}

func newTokenSession(token Token, teamID string) *Session {
	return &Session{
		token:  token,
		teamID: teamID,
	}
}

// Copies web-session state (cookie, team, CSRF tokens) from another session. The token is never copied.
func (s *Session) derive() *Session {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return newCookieSession(s.cookie, s.teamID, s.csrfTokens)
}

// True if this is a cookie-based web session (no token).
func (s *Session) IsWebSession() bool {
	return !s.HasToken()
}

func (s *Session) HasToken() bool {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return s.token != nil
}

func (s *Session) Cookie() string {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return s.cookie
}

func (s *Session) TeamID() string {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return s.teamID
}

// Returns a copy of the current CSRF tokens, keyed by lower-case header name.
func (s *Session) CSRFTokens() map[string]string {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return cloneTokens(s.csrfTokens)
}

// Persists any CSRF tokens found in response headers. The stored set is replaced as a whole, and only if at least one token header is present.
func (s *Session) StoreCSRFTokens(hdr http.Header) {
	if hdr == nil {
		return
	}
	found := map[string]string{}
	for _, name := range csrfHeaderNames {
		if v := hdr.Get(name); v != "" {
			found[name] = v
		}
	}
	if len(found) == 0 {
		return
	}

	s.lk.Lock()
	defer s.lk.Unlock()
	s.csrfTokens = found
}

// Returns the current bearer credential, refreshing it first if it has expired. Returns an empty string for web sessions.
func (s *Session) BearerToken() (string, error) {
	s.lk.RLock()
	if s.token == nil {
		s.lk.RUnlock()
		return "", nil
	}
	text, expired := s.token.Text(), s.token.Expired()
	s.lk.RUnlock()

	if !expired {
		return text, nil
	}
	if err := s.RefreshToken(text); err != nil {
		return "", err
	}

	s.lk.RLock()
	defer s.lk.RUnlock()
	return s.token.Text(), nil
}

// Refreshes the token (takes a write-lock on session data).
//
// `prior` is the token text the caller observed; if the token has already changed (a concurrent refresh happened), no refresh is done. An empty `prior` forces a refresh.
func (s *Session) RefreshToken(prior string) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if s.token == nil {
		return nil
	}
	if prior != "" && prior != s.token.Text() {
		return nil
	}
	return s.token.Refresh()
}

func cloneTokens(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
