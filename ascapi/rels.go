package ascapi

import (
	"context"
	"net/http"
	"strings"
)

// Exposes 'Link' header relations (eg, rel="next") on the response. Pass-through otherwise.
func relsStage() Stage {
	return func(ctx context.Context, req *PreparedRequest, next Handler) (*RawResponse, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		resp.Rels = parseLinkHeader(resp.Header)
		return resp, nil
	}
}

// Parses RFC 8288 link headers, like: `<https://example.com/v1/apps?cursor=abc>; rel="next"`. The first URL seen for a relation wins.
func parseLinkHeader(hdr http.Header) map[string]string {
	rels := map[string]string{}
	for _, line := range hdr.Values("Link") {
		for _, link := range strings.Split(line, ",") {
			parts := strings.Split(link, ";")
			target := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			target = target[1 : len(target)-1]
			for _, param := range parts[1:] {
				k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || strings.ToLower(strings.TrimSpace(k)) != "rel" {
					continue
				}
				// a single rel param may name several space-separated relations
				for _, rel := range strings.Fields(strings.Trim(v, `"`)) {
					if _, exists := rels[rel]; !exists {
						rels[rel] = target
					}
				}
			}
		}
	}
	return rels
}
