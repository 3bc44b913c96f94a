// Package weather fetches the current METAR report for the camera site.
//
// Weather attachment is best effort: the fetch carries short timeouts so a
// flaky upstream cannot stall the scrape run, and every failure is reported
// to the caller, logged, and swallowed there. A Report is a pure data record;
// constructing one never performs I/O.
package weather

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultStation is the reporting station closest to the cameras.
const DefaultStation = "EDMA"

// reportURLFormat serves the latest raw METAR for a station.
const reportURLFormat = "https://aviationweather.gov/api/data/metar?ids=%s&format=raw"

// ValidityWindow is how long a report may be attached to snapshots after its
// observation time.
const ValidityWindow = time.Hour

// maxReportBytes bounds the response body read.
const maxReportBytes = 4 << 10

// Report is one METAR observation. It covers snapshots captured in
// [ValidFrom, ValidFrom+ValidityWindow).
type Report struct {
	Text      string
	ValidFrom time.Time
}

// Covers reports whether t falls inside the report's validity window.
func (r Report) Covers(t time.Time) bool {
	return !t.Before(r.ValidFrom) && t.Before(r.ValidFrom.Add(ValidityWindow))
}

// Client fetches Reports over HTTP.
type Client struct {
	// HTTP is the client used for the fetch. The default carries a 1s connect
	// and 1s response-header timeout so the whole scrape run cannot stall on
	// this soft dependency.
	HTTP *http.Client
	// URL is the report endpoint.
	URL string
	// Now is the clock used to supply the year and month the report format
	// omits. Defaults to time.Now.
	Now func() time.Time
}

// NewClient creates a Client for the given station with the default timeouts.
func NewClient(station string) *Client {
	return &Client{
		HTTP: &http.Client{
			Timeout: 2 * time.Second,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: time.Second}).DialContext,
				ResponseHeaderTimeout: time.Second,
			},
		},
		URL: fmt.Sprintf(reportURLFormat, station),
	}
}

// Fetch downloads the current report and derives its observation time.
func (c *Client) Fetch(ctx context.Context) (Report, error) {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return Report{}, fmt.Errorf("build weather request: %w", err)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("fetch weather report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("fetch weather report: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes))
	if err != nil {
		return Report{}, fmt.Errorf("read weather report: %w", err)
	}
	text := strings.TrimSpace(string(body))

	validFrom, err := parseReportTime(text, now)
	if err != nil {
		return Report{}, err
	}
	return Report{Text: text, ValidFrom: validFrom}, nil
}

// parseReportTime reads the observation time from the fixed character offsets
// of a raw report: the station occupies [0:4], then a space, then DDHHMM
// digits at [5:11] followed by a literal Z. The format omits year and month,
// which are taken from now.
func parseReportTime(text string, now time.Time) (time.Time, error) {
	if len(text) < 12 || text[4] != ' ' || text[11] != 'Z' {
		return time.Time{}, fmt.Errorf("malformed weather report %q", truncate(text, 32))
	}
	day, err1 := strconv.Atoi(text[5:7])
	hour, err2 := strconv.Atoi(text[7:9])
	minute, err3 := strconv.Atoi(text[9:11])
	if err1 != nil || err2 != nil || err3 != nil ||
		day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("malformed weather report time in %q", truncate(text, 32))
	}
	return time.Date(now.Year(), now.Month(), day, hour, minute, 0, 0, time.Local), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
