// Package watermark persists "most recent" timestamps in a DynamoDB
// key-value table shared by the scrape pipeline and the edge router.
//
// The table holds one run-wide LastRun record used by the run scheduler for
// rate limiting, plus one {prefix}-latestPicture record per camera used by
// the edge router to target the newest archived snapshot. Values are stored
// as strings in a fixed "YYYY-MM-DD HH:MM:SS" form.
package watermark

import (
	"context"
	"time"
)

// KeyLastRun is the run-wide watermark key consulted by the run scheduler.
const KeyLastRun = "LastRun"

// TimeLayout is the string encoding for every stored timestamp value.
const TimeLayout = "2006-01-02 15:04:05"

// Epoch is the sentinel returned for absent watermarks. A run that discovers
// no parseable images reports Epoch as its latest capture time, which the
// scheduler converts into "advance LastRun to now" for backoff.
var Epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.Local)

// PrefixKey returns the per-camera watermark key for a prefix.
func PrefixKey(prefix string) string {
	return prefix + "-latestPicture"
}

// FormatTime encodes a timestamp as a stored watermark value.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// ParseTime decodes a stored watermark value.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.Local)
}

// Store is the key-value persistence backend for watermarks.
// Get returns (Epoch, false, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (time.Time, bool, error)
	Put(ctx context.Context, key string, t time.Time) error
}
