// Package edge rewrites CloudFront requests for the well-known latest-image
// URLs into the archived object path of the newest snapshot, and tunes the
// cache lifetime of the rewritten responses.
//
// aws-lambda-go ships no Lambda@Edge event types, so the CloudFront record
// payload is modelled here. Fields the router does not touch are carried as
// raw JSON so pass-through preserves them byte for byte.
package edge

import "encoding/json"

// Event is the Lambda@Edge invocation payload.
type Event struct {
	Records []Record `json:"Records"`
}

// Record wraps one CloudFront record.
type Record struct {
	CF RecordData `json:"cf"`
}

// RecordData carries the trigger configuration plus the request and, for
// response-phase triggers, the response.
type RecordData struct {
	Config   TriggerConfig `json:"config"`
	Request  *Request      `json:"request,omitempty"`
	Response *Response     `json:"response,omitempty"`
}

// TriggerConfig identifies the trigger phase ("origin-request" or
// "origin-response").
type TriggerConfig struct {
	DistributionID string `json:"distributionId,omitempty"`
	EventType      string `json:"eventType"`
	RequestID      string `json:"requestId,omitempty"`
}

// Header is one CloudFront header value. Key carries the canonical casing.
type Header struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
}

// Headers maps lowercased header names to their values.
type Headers map[string][]Header

// First returns the first value for a header name, or "".
func (h Headers) First(name string) string {
	if values := h[name]; len(values) > 0 {
		return values[0].Value
	}
	return ""
}

// Set replaces a header with a single value.
func (h Headers) Set(name, key, value string) {
	h[name] = []Header{{Key: key, Value: value}}
}

// Request is a CloudFront origin request. Origin and Body are opaque to the
// router and passed through untouched.
type Request struct {
	ClientIP    string          `json:"clientIp,omitempty"`
	Headers     Headers         `json:"headers"`
	Method      string          `json:"method,omitempty"`
	Querystring string          `json:"querystring,omitempty"`
	URI         string          `json:"uri"`
	Origin      json.RawMessage `json:"origin,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Response is a CloudFront origin response.
type Response struct {
	Status            string  `json:"status"`
	StatusDescription string  `json:"statusDescription,omitempty"`
	Headers           Headers `json:"headers"`
	Body              string  `json:"body,omitempty"`
	BodyEncoding      string  `json:"bodyEncoding,omitempty"`
}
