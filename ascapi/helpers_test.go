package ascapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Token which yields "tok1", "tok2", ... on each refresh.
type fakeToken struct {
	gen       int
	expired   bool
	refreshes atomic.Int32
}

func newFakeToken() *fakeToken {
	return &fakeToken{gen: 1}
}

func (t *fakeToken) Text() string {
	return fmt.Sprintf("tok%d", t.gen)
}

func (t *fakeToken) Expired() bool {
	return t.expired
}

func (t *fakeToken) Refresh() error {
	t.gen++
	t.expired = false
	t.refreshes.Add(1)
	return nil
}

// Retry policy which records delays instead of sleeping.
func instantRetry(delays *[]time.Duration) *RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return ctx.Err()
	}
	return p
}

func newTokenTestClient(t *testing.T, handler http.HandlerFunc, tok Token) (*APIClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	if tok == nil {
		tok = newFakeToken()
	}
	c, err := NewAPIClient(Config{
		Token:      tok,
		Env:        &Env{},
		HTTPClient: srv.Client(),
		Retry:      instantRetry(nil),
	})
	require.NoError(t, err)
	c.Host = srv.URL + "/v1/"
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
