package ascapi

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIClientCredentials(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	other, err := NewAPIClient(Config{Cookie: "myacinfo=abc", Hosts: HostURL("https://example.com/")})
	require.NoError(err)

	bad := []Config{
		{},
		{TeamID: "team", CSRFTokens: map[string]string{"csrf": "x"}},
		{Cookie: "c", Token: newFakeToken(), Env: &Env{}},
		{Token: newFakeToken(), Another: other, Env: &Env{}},
		{Cookie: "c", Another: other, Hosts: HostURL("https://example.com/")},
		{Cookie: "c", Token: newFakeToken(), Another: other, Env: &Env{}},
		{Another: &APIClient{}, Hosts: HostURL("https://example.com/")},
	}
	for _, cfg := range bad {
		_, err := NewAPIClient(cfg)
		assert.ErrorIs(err, ErrInvalidConfig)
	}
}

func TestWebSessionRequiresHost(t *testing.T) {
	assert := assert.New(t)

	_, err := NewAPIClient(Config{Cookie: "c", TeamID: "team"})
	assert.ErrorIs(err, ErrInvalidConfig)
	assert.ErrorIs(err, ErrNotImplemented)

	tc, err := NewAPIClient(Config{Token: newFakeToken(), Env: &Env{}})
	require.NoError(t, err)
	_, err = NewAPIClient(Config{Another: tc})
	assert.ErrorIs(err, ErrNotImplemented)
}

func TestClientModes(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	tc, err := NewAPIClient(Config{Token: newFakeToken(), TeamID: "team1", Env: &Env{}})
	require.NoError(err)
	assert.Equal(ConnectAPIHost, tc.Host)
	assert.False(tc.WebSession())
	assert.Equal(DefaultTimeout, tc.Client.Timeout)
	assert.Equal("team1", tc.Session.TeamID())
	assert.Equal("token", tc.Auth.Kind())

	tc2, err := NewAPIClient(Config{Token: newFakeToken(), Env: &Env{Timeout: 42}})
	require.NoError(err)
	assert.Equal(42*time.Second, tc2.Client.Timeout)

	cc, err := NewAPIClient(Config{Cookie: "c", TeamID: "team2", Hosts: HostURL("https://web.example.com/api/")})
	require.NoError(err)
	assert.Equal("https://web.example.com/api/", cc.Host)
	assert.True(cc.WebSession())
	assert.Equal(WebSessionTimeout, cc.Client.Timeout)
	assert.Equal("cookie", cc.Auth.Kind())

	dc, err := NewAPIClient(Config{Another: cc, Hosts: HostURL("https://other.example.com/")})
	require.NoError(err)
	assert.Equal("https://other.example.com/", dc.Host)
	assert.Equal(DefaultTimeout, dc.Client.Timeout)
}

func TestDerivedSession(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	hosts := HostURL("https://web.example.com/")

	// derived from a token client: team is copied, token never is
	tc, err := NewAPIClient(Config{Token: newFakeToken(), TeamID: "team1", Env: &Env{}})
	require.NoError(err)
	dc, err := NewAPIClient(Config{Another: tc, Hosts: hosts})
	require.NoError(err)
	assert.False(dc.Session.HasToken())
	assert.True(dc.WebSession())
	assert.Equal("team1", dc.Session.TeamID())
	tok, err := dc.Session.BearerToken()
	assert.NoError(err)
	assert.Empty(tok)

	// derived from a web session: cookie, team, and CSRF tokens are copied
	cc, err := NewAPIClient(Config{
		Cookie:     "myacinfo=abc",
		TeamID:     "team2",
		CSRFTokens: map[string]string{"csrf": "c1", "csrf_ts": "t1"},
		Hosts:      hosts,
	})
	require.NoError(err)
	dc2, err := NewAPIClient(Config{Another: cc, Hosts: hosts})
	require.NoError(err)
	assert.Equal("myacinfo=abc", dc2.Session.Cookie())
	assert.Equal("team2", dc2.Session.TeamID())
	assert.Equal(map[string]string{"csrf": "c1", "csrf_ts": "t1"}, dc2.Session.CSRFTokens())

	// later updates don't leak between the two sessions
	dc2.Session.StoreCSRFTokens(http.Header{"Csrf": []string{"c2"}})
	assert.Equal("c1", cc.Session.CSRFTokens()["csrf"])
}

func TestStoreCSRFTokens(t *testing.T) {
	assert := assert.New(t)

	s := newCookieSession("c", "", map[string]string{"csrf": "c1", "csrf_ts": "t1"})

	s.StoreCSRFTokens(nil)
	s.StoreCSRFTokens(http.Header{"Content-Type": []string{"application/json"}})
	assert.Equal(map[string]string{"csrf": "c1", "csrf_ts": "t1"}, s.CSRFTokens())

	hdr := http.Header{}
	hdr.Set("csrf", "c2")
	s.StoreCSRFTokens(hdr)
	assert.Equal(map[string]string{"csrf": "c2"}, s.CSRFTokens())

	// returned map is a copy
	s.CSRFTokens()["csrf"] = "mutated"
	assert.Equal("c2", s.CSRFTokens()["csrf"])
}

func TestSessionRefreshToken(t *testing.T) {
	assert := assert.New(t)

	tok := newFakeToken()
	s := newTokenSession(tok, "")

	text, err := s.BearerToken()
	assert.NoError(err)
	assert.Equal("tok1", text)

	// stale prior value: someone else already refreshed
	assert.NoError(s.RefreshToken("tok0"))
	assert.Equal(int32(0), tok.refreshes.Load())

	assert.NoError(s.RefreshToken("tok1"))
	text, _ = s.BearerToken()
	assert.Equal("tok2", text)

	// expired tokens are refreshed before use
	s.lk.Lock()
	tok.expired = true
	s.lk.Unlock()
	text, _ = s.BearerToken()
	assert.Equal("tok3", text)
	assert.Equal(int32(2), tok.refreshes.Load())
}

func TestSessionConcurrentRefresh(t *testing.T) {
	tok := newFakeToken()
	s := newTokenSession(tok, "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RefreshToken("tok1")
			s.StoreCSRFTokens(http.Header{"Csrf": []string{"x"}})
			_ = s.CSRFTokens()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), tok.refreshes.Load())
}

func TestLoadEnv(t *testing.T) {
	assert := assert.New(t)

	t.Setenv("SHIPYARD_TIMEOUT", "42")
	t.Setenv("DEBUG", "1")
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(42*time.Second, env.RequestTimeout())
	assert.Equal(42*time.Second, env.ConnectTimeout())
	assert.True(env.Debug)
	assert.False(env.LocalProxy)
	assert.Empty(env.Proxy)

	t.Setenv("SHIPYARD_OPEN_TIMEOUT", "5")
	env, err = LoadEnv()
	require.NoError(t, err)
	assert.Equal(5*time.Second, env.ConnectTimeout())

	assert.Equal(DefaultTimeout, (&Env{}).RequestTimeout())
}

func TestProxyOptions(t *testing.T) {
	assert := assert.New(t)

	opts, err := proxyOptions(&Env{})
	assert.NoError(err)
	assert.Empty(opts)

	opts, err = proxyOptions(&Env{LocalProxy: true})
	assert.NoError(err)
	assert.Len(opts, 2)

	opts, err = proxyOptions(&Env{Proxy: "http://proxy.example.com:3128"})
	assert.NoError(err)
	assert.Len(opts, 1)

	opts, err = proxyOptions(&Env{Proxy: "http://proxy.example.com:3128", ProxySSLVerifyNone: true})
	assert.NoError(err)
	assert.Len(opts, 2)

	_, err = proxyOptions(&Env{Proxy: "http://bad host:3128"})
	assert.ErrorIs(err, ErrInvalidConfig)
}
