package edge

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/camera-scraper/internal/archive"
	"github.com/fpang/camera-scraper/internal/watermark"
)

// The two public latest-image paths the router rewrites. Anything else
// passes through untouched.
var wellKnownPaths = map[string]bool{
	"/east.jpg": true,
	"/west.jpg": true,
}

const (
	eventOriginRequest  = "origin-request"
	eventOriginResponse = "origin-response"

	// markerHeader tags rewritten requests so the response phase can
	// recognize them.
	markerHeader = "edgelambda-marker"
	markerValue  = "rerouted"

	// freshnessWindow is how long a snapshot stays cacheable past its
	// last-modified time.
	freshnessWindow = 10 * time.Minute

	// staleCacheControl caps caching when the snapshot is already stale.
	staleCacheControl = "max-age=60"
)

// WatermarkReader is the read side of the watermark store.
type WatermarkReader interface {
	Get(ctx context.Context, key string) (time.Time, bool, error)
}

// Handler routes CloudFront events. It is stateless per invocation; every
// internal error collapses into a fixed 404 fallback so callers never see a
// raw failure.
type Handler struct {
	Watermarks WatermarkReader
	// Now is the clock for freshness decisions. Defaults to time.Now.
	Now func() time.Time
}

// NewHandler creates a Handler over the given watermark reader.
func NewHandler(watermarks WatermarkReader) *Handler {
	return &Handler{Watermarks: watermarks, Now: time.Now}
}

// Handle dispatches one Lambda@Edge event. The returned value is either a
// *Request (request phase pass-through or rewrite) or a *Response. The error
// result is always nil: failures become the fallback response.
func (h *Handler) Handle(ctx context.Context, event Event) (interface{}, error) {
	if len(event.Records) == 0 {
		log.Error().Msg("Event carries no records")
		return fallbackResponse(), nil
	}

	record := event.Records[0].CF
	switch record.Config.EventType {
	case eventOriginRequest:
		return h.handleRequest(ctx, record.Request), nil
	case eventOriginResponse:
		return h.handleResponse(record), nil
	default:
		log.Error().Str("eventType", record.Config.EventType).Msg("Unexpected event type")
		return fallbackResponse(), nil
	}
}

// handleRequest rewrites a well-known latest-image URI to the archived key of
// the camera's newest snapshot.
func (h *Handler) handleRequest(ctx context.Context, req *Request) interface{} {
	if req == nil {
		log.Error().Msg("Origin-request event without request")
		return fallbackResponse()
	}
	if !wellKnownPaths[req.URI] {
		// Not ours; leave it for the origin.
		return req
	}

	prefix := strings.TrimSuffix(strings.TrimPrefix(req.URI, "/"), ".jpg")
	latest, found, err := h.Watermarks.Get(ctx, watermark.PrefixKey(prefix))
	if err != nil {
		log.Error().Err(err).Str("prefix", prefix).Msg("Watermark lookup failed")
		return fallbackResponse()
	}
	if !found {
		log.Warn().Str("prefix", prefix).Msg("No watermark for camera")
		return fallbackResponse()
	}

	req.URI = "/" + archive.Key(prefix, latest)
	if req.Headers == nil {
		req.Headers = make(Headers)
	}
	req.Headers.Set(markerHeader, markerHeader, markerValue)
	log.Debug().Str("prefix", prefix).Str("uri", req.URI).Msg("Request rewritten")
	return req
}

// handleResponse overrides the cache timing of marked responses so clients
// re-fetch soon after the next snapshot lands, instead of the distribution
// default.
func (h *Handler) handleResponse(record RecordData) interface{} {
	resp := record.Response
	if resp == nil {
		log.Error().Msg("Origin-response event without response")
		return fallbackResponse()
	}
	if record.Request == nil || record.Request.Headers.First(markerHeader) != markerValue {
		// Not a rewritten request; leave the response alone.
		return resp
	}
	if resp.Headers == nil {
		resp.Headers = make(Headers)
	}

	lastModified, err := time.Parse(time.RFC1123, resp.Headers.First("last-modified"))
	if err != nil {
		log.Warn().Err(err).Msg("No usable last-modified header")
		resp.Headers.Set("cache-control", "Cache-Control", staleCacheControl)
		return resp
	}

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	expires := lastModified.Add(freshnessWindow)
	if expires.Before(now) {
		// Snapshot already stale; keep the cache lifetime short instead of
		// setting an expiry in the past.
		resp.Headers.Set("cache-control", "Cache-Control", staleCacheControl)
	} else {
		resp.Headers.Set("expires", "Expires", expires.UTC().Format(http.TimeFormat))
	}
	return resp
}

// fallbackResponse is the fixed answer for every internal error class.
func fallbackResponse() *Response {
	return &Response{
		Status:            "404",
		StatusDescription: "Not Found",
		Headers: Headers{
			"cache-control": {{Key: "Cache-Control", Value: staleCacheControl}},
			"content-type":  {{Key: "Content-Type", Value: "text/html"}},
		},
		Body: "Better luck next time",
	}
}
