package ascapi

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// Returned (wrapped) by [NewAPIClient] when the credential combination is invalid. Never reaches the network.
	ErrInvalidConfig = errors.New("invalid client configuration")

	// Returned (wrapped) when a web-session client has no [HostResolver] to supply its base host.
	ErrNotImplemented = errors.New("not implemented")
)

// HTTP 5xx response which was not recovered by the retry stage.
type ServerError struct {
	StatusCode int
	Body       any
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("Server error got %d", e.StatusCode)
}

// Response body was present, but was not a structured mapping (eg, a bare string, array, or unparseable JSON).
type UnexpectedShapeError struct {
	StatusCode int
	Body       any
	Raw        []byte
}

func (e *UnexpectedShapeError) Error() string {
	if s, ok := e.Body.(string); ok {
		return fmt.Sprintf("unexpected response shape (HTTP %d): %s", e.StatusCode, s)
	}
	return fmt.Sprintf("unexpected response shape (HTTP %d): %s", e.StatusCode, renderBody(e.Body))
}

// Service reported one or more errors in the response body, either as a single 'error' field or as a JSON:API 'errors' array.
//
// For the multi-error form, Records holds the parsed error objects, and Message is the flattened, newline-joined rendering.
type UnexpectedResponseError struct {
	StatusCode int
	Message    string
	Records    []ErrorRecord
}

func (e *UnexpectedResponseError) Error() string {
	return e.Message
}

// Service reported `"statusCode": "ERROR"` in the body. This is a known transient upstream failure which callers may retry at a higher level.
type TransientError struct {
	StatusCode int
	Body       any
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("Temporary App Store Connect error: %s", renderBody(e.Body))
}

// Network-level failure which persisted after the retry budget was exhausted (or was not retryable at all).
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("API request failed after %d attempt(s): %s", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Helper to check if an error is a failure of a kind which may succeed if the whole operation is tried again later.
func IsTemporary(err error) bool {
	var te *TransientError
	var se *ServerError
	var tpe *TransportError
	return errors.As(err, &te) || errors.As(err, &se) || errors.As(err, &tpe)
}

func renderBody(body any) string {
	switch v := body.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Sprint(body)
	}
	return string(b)
}
