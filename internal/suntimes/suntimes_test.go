package suntimes

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeTable counts reads and serves rows from a map keyed by station/date.
type fakeTable struct {
	rows  map[string]*Row
	reads int
	err   error
}

func (f *fakeTable) GetRow(ctx context.Context, station, date string) (*Row, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[station+"/"+date], nil
}

var june15 = time.Date(2024, time.June, 15, 14, 5, 1, 0, time.Local)

func TestLookup_CachesRows(t *testing.T) {
	table := &fakeTable{rows: map[string]*Row{
		"EDMA/2024-06-15": {Station: "EDMA", Date: "2024-06-15", BCMT: "04:38", SR: "05:17", SS: "21:17", ECET: "21:57"},
	}}
	src := NewSource(table)

	for i := 0; i < 3; i++ {
		row, err := src.Lookup(context.Background(), "EDMA", june15)
		if err != nil {
			t.Fatalf("Lookup #%d: %v", i+1, err)
		}
		if row == nil || row.SS != "21:17" {
			t.Fatalf("Lookup #%d = %+v, want sunset 21:17", i+1, row)
		}
	}
	if table.reads != 1 {
		t.Errorf("table reads = %d, want 1 (cache must absorb repeats)", table.reads)
	}
}

func TestLookup_CachesNotFound(t *testing.T) {
	table := &fakeTable{}
	src := NewSource(table)

	for i := 0; i < 3; i++ {
		row, err := src.Lookup(context.Background(), "EDMA", june15)
		if err != nil {
			t.Fatalf("Lookup #%d: %v", i+1, err)
		}
		if row != nil {
			t.Fatalf("Lookup #%d = %+v, want nil", i+1, row)
		}
	}
	if table.reads != 1 {
		t.Errorf("table reads = %d, want 1 (misses must be cached too)", table.reads)
	}
}

func TestLookup_DistinctDaysDistinctReads(t *testing.T) {
	table := &fakeTable{}
	src := NewSource(table)

	src.Lookup(context.Background(), "EDMA", june15)
	src.Lookup(context.Background(), "EDMA", june15.AddDate(0, 0, 1))
	if table.reads != 2 {
		t.Errorf("table reads = %d, want 2", table.reads)
	}
}

func TestLookup_ErrorsNotCached(t *testing.T) {
	table := &fakeTable{err: errors.New("throttled")}
	src := NewSource(table)

	if _, err := src.Lookup(context.Background(), "EDMA", june15); err == nil {
		t.Fatal("Lookup: expected error")
	}

	table.err = nil
	table.rows = map[string]*Row{"EDMA/2024-06-15": {SR: "05:17"}}
	row, err := src.Lookup(context.Background(), "EDMA", june15)
	if err != nil {
		t.Fatalf("Lookup after recovery: %v", err)
	}
	if row == nil || row.SR != "05:17" {
		t.Errorf("Lookup after recovery = %+v, want sunrise 05:17", row)
	}
}
