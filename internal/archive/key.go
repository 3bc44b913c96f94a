// Package archive persists camera snapshots to S3 under deterministic keys.
//
// Keys have the form {prefix}/{YYYY}/{MM}/{DD}/{HHMMSS}.jpg and are bijective
// with (camera prefix, second-resolution capture time), so the same key is
// used for the existence check before a write and for request routing at the
// edge.
package archive

import "time"

// ContentType is the fixed content type for every archived snapshot.
const ContentType = "image/jpeg"

// Key returns the deterministic archive key for a camera prefix and capture time.
func Key(prefix string, captureTime time.Time) string {
	return prefix + "/" + captureTime.Format("2006/01/02") + "/" + captureTime.Format("150405") + ".jpg"
}
