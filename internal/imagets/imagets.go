// Package imagets extracts capture timestamps from camera image references.
//
// The camera site embeds the capture time in each snapshot filename as
// YYYYMMDD-HHMMSS (site-local time), e.g. east_20240615-140501.jpg. The
// extractor is a pure function; callers that hit a ParseError skip the
// affected image and continue.
package imagets

import (
	"fmt"
	"regexp"
	"time"
)

// Layout is the filename timestamp layout (date and time, second resolution).
const Layout = "20060102-150405"

// pattern matches the first YYYYMMDD-HHMMSS token with a 20xx year.
var pattern = regexp.MustCompile(`20[0-9]{6}-[0-9]{6}`)

// ParseError reports an image reference without a usable capture timestamp.
type ParseError struct {
	Ref   string // the offending filename or URL
	Cause error  // non-nil when a matched token is not a valid date/time
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid capture timestamp in %q: %v", e.Ref, e.Cause)
	}
	return fmt.Sprintf("no capture timestamp in %q", e.Ref)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Extract locates the first timestamp token in ref and parses it in site-local
// time. It returns a *ParseError when no token is present or the token is not
// a valid calendar date/time.
func Extract(ref string) (time.Time, error) {
	token := pattern.FindString(ref)
	if token == "" {
		return time.Time{}, &ParseError{Ref: ref}
	}
	t, err := time.ParseInLocation(Layout, token, time.Local)
	if err != nil {
		return time.Time{}, &ParseError{Ref: ref, Cause: err}
	}
	return t, nil
}
