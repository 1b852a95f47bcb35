package ascapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Successful API response. Created fresh for every call.
type Response struct {
	StatusCode int

	// Decoded body (a JSON or plist mapping)
	Body map[string]any

	Headers http.Header

	// Link header relations
	Rels map[string]string

	// Undecoded body bytes
	Raw []byte

	// Client which issued the request; used for pagination and other follow-up calls
	Client *APIClient
}

// Decodes the body in to a typed value (eg, a struct with JSON tags).
func (r *Response) Decode(out any) error {
	doc := r.Raw
	if !json.Valid(doc) {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return err
		}
		doc = b
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return fmt.Errorf("failed decoding JSON response body: %w", err)
	}
	return nil
}

// The 'data' member of a JSON:API document (a single resource object or a list); nil if missing.
func (r *Response) Data() any {
	return r.Body["data"]
}

// URL of the next page of results, from the JSON:API 'links.next' member or a rel="next" Link header. Empty if this is the last page.
func (r *Response) NextURL() string {
	if links, ok := r.Body["links"].(map[string]any); ok {
		if next, ok := links["next"].(string); ok && next != "" {
			return next
		}
	}
	return r.Rels["next"]
}

// Fetches the next page of results with the issuing client. Returns (nil, nil) when there are no more pages.
func (r *Response) NextPage(ctx context.Context) (*Response, error) {
	next := r.NextURL()
	if next == "" {
		return nil, nil
	}
	if r.Client == nil {
		return nil, fmt.Errorf("response has no client for pagination")
	}
	return r.Client.Get(ctx, next, nil)
}

// Returns this response followed by every subsequent page, up to maxPages in total (zero means no limit).
func (r *Response) AllPages(ctx context.Context, maxPages int) ([]*Response, error) {
	pages := []*Response{r}
	cur := r
	for maxPages <= 0 || len(pages) < maxPages {
		next, err := cur.NextPage(ctx)
		if err != nil {
			return pages, err
		}
		if next == nil {
			break
		}
		pages = append(pages, next)
		cur = next
	}
	return pages, nil
}
