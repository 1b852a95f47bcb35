package ascapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func recordStage(name string, trace *[]string) Stage {
	return func(ctx context.Context, req *PreparedRequest, next Handler) (*RawResponse, error) {
		*trace = append(*trace, name+">")
		resp, err := next(ctx, req)
		*trace = append(*trace, "<"+name)
		return resp, err
	}
}

func TestChainOrder(t *testing.T) {
	assert := assert.New(t)

	var trace []string
	send := func(ctx context.Context, req *PreparedRequest) (*RawResponse, error) {
		trace = append(trace, "send")
		return &RawResponse{StatusCode: 200}, nil
	}
	h := Chain(send, recordStage("a", &trace), recordStage("b", &trace), recordStage("c", &trace))
	_, err := h(context.Background(), &PreparedRequest{Method: "GET", URL: "https://example.com/"})
	assert.NoError(err)
	assert.Equal([]string{"a>", "b>", "c>", "send", "<c", "<b", "<a"}, trace)

	trace = nil
	_, err = Chain(send)(context.Background(), &PreparedRequest{})
	assert.NoError(err)
	assert.Equal([]string{"send"}, trace)
}

func TestDecodeBody(t *testing.T) {
	assert := assert.New(t)
	logger := slog.Default()

	assert.Nil(decodeBody(logger, "application/json", nil))
	assert.Nil(decodeBody(logger, "application/json", []byte("  \n")))

	assert.Equal(map[string]any{"a": float64(1)}, decodeBody(logger, "application/json", []byte(`{"a":1}`)))
	assert.Equal(map[string]any{"a": "b"}, decodeBody(logger, "application/vnd.api+json; charset=utf-8", []byte(`{"a":"b"}`)))
	assert.Equal([]any{"x"}, decodeBody(logger, "application/json", []byte(`["x"]`)))
	assert.Equal("{bad", decodeBody(logger, "application/json", []byte(`{bad`)))
	assert.Equal("<html></html>", decodeBody(logger, "text/html", []byte(`<html></html>`)))
	assert.Equal(`{"a":1}`, decodeBody(logger, "", []byte(`{"a":1}`)))
	assert.Equal(`{"a":1}`, decodeBody(logger, "application/jsonp", []byte(`{"a":1}`)))

	doc := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>resultCode</key>
	<integer>0</integer>
	<key>userString</key>
	<string>ok</string>
</dict>
</plist>`
	decoded, ok := decodeBody(logger, "application/x-plist", []byte(doc)).(map[string]any)
	assert.True(ok)
	assert.Equal("ok", decoded["userString"])

	truncated := `<plist version="1.0"><dict><key>a</key>`
	assert.Equal(truncated, decodeBody(logger, "text/x-xml-plist", []byte(truncated)))
}

func TestParseLinkHeader(t *testing.T) {
	assert := assert.New(t)

	hdr := http.Header{}
	assert.Empty(parseLinkHeader(hdr))

	hdr.Add("Link", `<https://example.com/v1/apps?cursor=abc>; rel="next", <https://example.com/v1/apps>; rel="first self"`)
	hdr.Add("Link", `<https://example.com/v1/other>; rel=next`)
	hdr.Add("Link", `garbage; rel="prev"`)
	assert.Equal(map[string]string{
		"next":  "https://example.com/v1/apps?cursor=abc",
		"first": "https://example.com/v1/apps",
		"self":  "https://example.com/v1/apps",
	}, parseLinkHeader(hdr))
}

func TestStatsStagePassThrough(t *testing.T) {
	assert := assert.New(t)

	stage := statsStage(slog.Default(), "token")
	req := &PreparedRequest{Method: "GET", URL: "https://stats.example.com/v1/apps"}

	sentinel := errors.New("boom")
	resp, err := stage(context.Background(), req, func(ctx context.Context, req *PreparedRequest) (*RawResponse, error) {
		return nil, sentinel
	})
	assert.Nil(resp)
	assert.Equal(sentinel, err)
	assert.Equal(float64(1), testutil.ToFloat64(apiRequests.WithLabelValues("GET", "stats.example.com", "token", "error")))

	want := &RawResponse{StatusCode: 204, Attempts: 2}
	resp, err = stage(context.Background(), req, func(ctx context.Context, req *PreparedRequest) (*RawResponse, error) {
		return want, nil
	})
	assert.NoError(err)
	assert.Same(want, resp)
	assert.Equal(float64(1), testutil.ToFloat64(apiRequests.WithLabelValues("GET", "stats.example.com", "token", "204")))
}

func TestThrottleStage(t *testing.T) {
	assert := assert.New(t)

	assert.Nil(newLimiter(0))
	assert.Equal(1, newLimiter(0.5).Burst())
	assert.Equal(4, newLimiter(4).Burst())

	var calls int
	send := func(ctx context.Context, req *PreparedRequest) (*RawResponse, error) {
		calls++
		return &RawResponse{StatusCode: 200}, nil
	}
	h := Chain(send, throttleStage(rate.NewLimiter(rate.Every(time.Hour), 1)))

	_, err := h(context.Background(), &PreparedRequest{})
	assert.NoError(err)

	// the next token is an hour away, so the wait fails against a short deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = h(ctx, &PreparedRequest{})
	assert.Error(err)
	assert.Equal(1, calls)
}
