// Package suntimes looks up per-station, per-day sunrise/sunset and civil
// twilight times. The rows are written by an external batch loader; the
// pipeline only reads them, through a run-local cache so several snapshots
// from the same day cost a single table read.
package suntimes

import (
	"context"
	"time"
)

// DefaultStation matches the station the external loader ingests.
const DefaultStation = "EDMA"

// DateLayout is the table's date key encoding.
const DateLayout = "2006-01-02"

// Row is one day of sun and moon times for a station. The time-of-day fields
// are stored as strings exactly as the loader parsed them ("HH:MM"); only the
// four sun columns are attached to archived snapshots.
type Row struct {
	Station string `dynamodbav:"Station"`
	Date    string `dynamodbav:"Date"`
	BCMT    string `dynamodbav:"BCMT"` // begin of civil morning twilight
	SR      string `dynamodbav:"SR"`   // sunrise
	SS      string `dynamodbav:"SS"`   // sunset
	ECET    string `dynamodbav:"ECET"` // end of civil evening twilight
	MR      string `dynamodbav:"MR,omitempty"`
	MS      string `dynamodbav:"MS,omitempty"`
	FM      string `dynamodbav:"FM,omitempty"`
	NM      string `dynamodbav:"NM,omitempty"`
}

// Table is the persistence backend. GetRow returns (nil, nil) when no row
// exists for the station and date.
type Table interface {
	GetRow(ctx context.Context, station, date string) (*Row, error)
}

// cacheKey is the composite lookup key for the run-local cache.
type cacheKey struct {
	station string
	date    string
}

// Source layers a run-local cache over a Table. Not-found outcomes are cached
// too, so a day without data costs one read rather than one per snapshot.
// The cache is warm-start state only: discarding it at any time is safe.
type Source struct {
	table Table
	cache map[cacheKey]*Row
}

// NewSource creates a Source over the given table.
func NewSource(table Table) *Source {
	return &Source{
		table: table,
		cache: make(map[cacheKey]*Row),
	}
}

// Lookup returns the row for the station on the given day, or (nil, nil) when
// none exists. Errors are not cached.
func (s *Source) Lookup(ctx context.Context, station string, day time.Time) (*Row, error) {
	key := cacheKey{station: station, date: day.Format(DateLayout)}
	if row, hit := s.cache[key]; hit {
		return row, nil
	}

	row, err := s.table.GetRow(ctx, key.station, key.date)
	if err != nil {
		return nil, err
	}
	s.cache[key] = row
	return row, nil
}
