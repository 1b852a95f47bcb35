package ascapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Describes a single API call, before it is resolved against a client's base host.
type APIRequest struct {
	// HTTP method, eg "GET" (required)
	Method string

	// Absolute URL, or a path relative to the client's base host (required)
	Target string

	// Optional query parameters; see [EncodeParams] for supported types
	Params any

	// Optional request body, serialized as JSON. A []byte or [json.RawMessage] is sent as-is.
	Body any

	// Optional HTTP headers. Only the first value is used for each key ("Set" behavior); these override client-level defaults.
	Headers http.Header

	// Optional per-call attempt budget, overriding the client retry policy
	MaxAttempts int
}

type RequestOption func(*APIRequest)

// Overrides the total number of attempts (including the first) for a single call.
func WithMaxAttempts(n int) RequestOption {
	return func(r *APIRequest) {
		r.MaxAttempts = n
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *APIRequest) {
		if r.Headers == nil {
			r.Headers = http.Header{}
		}
		r.Headers.Set(key, value)
	}
}

// Initializes a new request struct, with Headers initialized so it can be manipulated immediately.
func NewAPIRequest(method, target string, opts ...RequestOption) *APIRequest {
	req := &APIRequest{
		Method:  method,
		Target:  target,
		Headers: http.Header{},
	}
	for _, opt := range opts {
		opt(req)
	}
	return req
}

// Resolves the request in to a [PreparedRequest].
//
// `host` is the base URL which relative targets are resolved against. `clientHeaders`, if provided, are treated as client-level defaults (may be nil).
func (r *APIRequest) prepare(host string, clientHeaders http.Header) (*PreparedRequest, error) {
	if r.Method == "" {
		return nil, fmt.Errorf("empty request method")
	}
	if r.Target == "" {
		return nil, fmt.Errorf("empty request target")
	}

	u, err := resolveTarget(host, r.Target)
	if err != nil {
		return nil, err
	}

	qp, err := EncodeParams(r.Params)
	if err != nil {
		return nil, err
	}
	if len(qp) > 0 {
		existing := u.Query()
		for k, vals := range qp {
			for _, v := range vals {
				existing.Add(k, v)
			}
		}
		u.RawQuery = existing.Encode()
	}

	var body []byte
	switch v := r.Body.(type) {
	case nil:
	case []byte:
		body = v
	case json.RawMessage:
		body = v
	default:
		body, err = json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}

	hdr := http.Header{}
	// first set default headers...
	for k := range clientHeaders {
		hdr.Set(k, clientHeaders.Get(k))
	}
	// ... then request-specific take priority (overwrite)
	for k := range r.Headers {
		hdr.Set(k, r.Headers.Get(k))
	}

	return &PreparedRequest{
		Method:      r.Method,
		URL:         u.String(),
		Header:      hdr,
		Body:        body,
		MaxAttempts: r.MaxAttempts,
	}, nil
}

func resolveTarget(host, target string) (*url.URL, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid request target: %w", err)
	}
	if ref.IsAbs() {
		return ref, nil
	}

	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host URL: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("empty hostname in host URL")
	}
	if base.Scheme == "" {
		return nil, fmt.Errorf("empty scheme in host URL")
	}
	return base.ResolveReference(ref), nil
}
