package ascapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// One service-reported error object from a JSON:API 'errors' array.
//
// Example error format:
//
//	{
//	  "errors": [{
//	    "id": "cbfd8674-4802-4857-bfe8-444e1ea36e32",
//	    "status": "409",
//	    "code": "STATE_ERROR",
//	    "title": "The request cannot be fulfilled because of the state of another resource.",
//	    "detail": "Submit for review errors found.",
//	    "meta": {
//	      "associatedErrors": {
//	        "/v1/appScreenshots/": [{
//	          "id": "23d1734f-b81f-411a-98e4-6d3e763d54ed",
//	          "status": "409",
//	          "code": "STATE_ERROR.SCREENSHOT_REQUIRED.APP_WATCH_SERIES_4",
//	          "title": "App screenshot missing (APP_WATCH_SERIES_4)."
//	        }]
//	      }
//	    }
//	  }]
//	}
type ErrorRecord struct {
	ID     string
	Status string
	Code   string
	Title  *string
	Detail *string

	// Errors for related resources, in document order
	Associated []AssociatedError
}

type AssociatedError struct {
	// Resource path the error refers to, eg "/v1/builds/<id>"
	Path   string
	ID     string
	Status string
	Code   string
	Title  *string
	Detail *string
}

// Human-readable rendering: title and detail joined with " - " (either may be absent).
func (r ErrorRecord) Message() string {
	return joinMessage(r.Title, r.Detail)
}

func (a AssociatedError) Message() string {
	return joinMessage(a.Title, a.Detail)
}

// The record's own message, followed by one line per associated error.
func (r ErrorRecord) Messages() []string {
	out := []string{r.Message()}
	for _, a := range r.Associated {
		out = append(out, a.Message())
	}
	return out
}

func joinMessage(title, detail *string) string {
	parts := []string{}
	if title != nil {
		parts = append(parts, *title)
	}
	if detail != nil {
		parts = append(parts, *detail)
	}
	return strings.Join(parts, " - ")
}

// Parses the 'errors' array out of a JSON document, preserving document order (including the order of 'associatedErrors' paths).
func ParseErrorRecords(doc []byte) []ErrorRecord {
	records := []ErrorRecord{}
	gjson.GetBytes(doc, "errors").ForEach(func(_, e gjson.Result) bool {
		rec := ErrorRecord{
			ID:     e.Get("id").String(),
			Status: e.Get("status").String(),
			Code:   e.Get("code").String(),
			Title:  optString(e.Get("title")),
			Detail: optString(e.Get("detail")),
		}
		e.Get("meta.associatedErrors").ForEach(func(path, list gjson.Result) bool {
			list.ForEach(func(_, a gjson.Result) bool {
				rec.Associated = append(rec.Associated, AssociatedError{
					Path:   path.String(),
					ID:     a.Get("id").String(),
					Status: a.Get("status").String(),
					Code:   a.Get("code").String(),
					Title:  optString(a.Get("title")),
					Detail: optString(a.Get("detail")),
				})
				return true
			})
			return true
		})
		records = append(records, rec)
		return true
	})
	return records
}

func optString(r gjson.Result) *string {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	s := r.String()
	return &s
}

// Flattens all records and their associated errors in to one newline-joined message.
func FlattenErrorRecords(records []ErrorRecord) string {
	lines := []string{}
	for _, r := range records {
		lines = append(lines, r.Messages()...)
	}
	return strings.Join(lines, "\n")
}

// Classifies a decoded response as void success (nil, nil), success (envelope), or one of the typed failures. The order of checks matters.
func (c *APIClient) handleResponse(raw *RawResponse) (*Response, error) {
	status := raw.StatusCode

	if status >= 200 && status < 300 && isEmptyBody(raw.Body) {
		return nil, nil
	}

	if status >= 500 && status < 600 {
		return nil, &ServerError{StatusCode: status, Body: raw.Body}
	}

	body, ok := raw.Body.(map[string]any)
	if !ok {
		return nil, &UnexpectedShapeError{StatusCode: status, Body: raw.Body, Raw: raw.Raw}
	}

	if v, ok := body["error"]; ok && truthy(v) {
		return nil, &UnexpectedResponseError{StatusCode: status, Message: renderBody(v)}
	}

	if v, ok := body["errors"]; ok && truthy(v) {
		if _, isList := v.([]any); !isList {
			return nil, &UnexpectedResponseError{StatusCode: status, Message: renderBody(v)}
		}
		records := ParseErrorRecords(jsonDocument(raw))
		return nil, &UnexpectedResponseError{
			StatusCode: status,
			Message:    FlattenErrorRecords(records),
			Records:    records,
		}
	}

	if sc, ok := body["statusCode"].(string); ok && sc == "ERROR" {
		return nil, &TransientError{StatusCode: status, Body: body}
	}

	if status >= 400 {
		return nil, &UnexpectedResponseError{StatusCode: status, Message: fmt.Sprintf("unexpected HTTP status %d: %s", status, renderBody(body))}
	}

	c.Session.StoreCSRFTokens(raw.Header)

	return &Response{
		StatusCode: status,
		Body:       body,
		Headers:    raw.Header,
		Rels:       raw.Rels,
		Raw:        raw.Raw,
		Client:     c,
	}, nil
}

// Returns the body as a JSON document: the raw bytes when they are JSON, otherwise the decoded body re-serialized (eg, for plist responses).
func jsonDocument(raw *RawResponse) []byte {
	if gjson.ValidBytes(raw.Raw) {
		return raw.Raw
	}
	b, err := json.Marshal(raw.Body)
	if err != nil {
		return nil
	}
	return b
}

func isEmptyBody(body any) bool {
	switch v := body.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	return true
}
