package ascapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"regexp"
	"strings"

	"howett.net/plist"
)

var (
	jsonContentType  = regexp.MustCompile(`\bjson$`)
	plistContentType = regexp.MustCompile(`\bplist$`)
)

// Parses JSON and property-list bodies in to structured values, based on response Content-Type. Other bodies are left as strings. A body which fails to parse is also left as a string, so later classification sees it as an unexpected shape.
func decodeStage(logger *slog.Logger) Stage {
	return func(ctx context.Context, req *PreparedRequest, next Handler) (*RawResponse, error) {
		resp, err := next(ctx, req)
		if err != nil {
			return nil, err
		}
		resp.Body = decodeBody(logger, resp.Header.Get("Content-Type"), resp.Raw)
		return resp, nil
	}
}

func decodeBody(logger *slog.Logger, contentType string, raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	mediaType := contentType
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	} else if i := strings.IndexByte(contentType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(contentType[:i])
	}

	switch {
	case jsonContentType.MatchString(mediaType):
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			logger.Debug("failed to parse JSON response body", "contentType", contentType, "err", err)
			return string(raw)
		}
		return out
	case plistContentType.MatchString(mediaType):
		var out any
		if _, err := plist.Unmarshal(raw, &out); err != nil {
			logger.Debug("failed to parse plist response body", "contentType", contentType, "err", err)
			return string(raw)
		}
		return out
	default:
		return string(raw)
	}
}
