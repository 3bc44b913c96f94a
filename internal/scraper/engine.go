// Package scraper contains the scrape-and-archive pipeline: the
// dedup-and-archive engine that discovers camera snapshots and persists the
// missing ones, and the rate-limited runner that drives one run end to end.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"

	"github.com/fpang/camera-scraper/internal/archive"
	"github.com/fpang/camera-scraper/internal/camconfig"
	"github.com/fpang/camera-scraper/internal/imagets"
	"github.com/fpang/camera-scraper/internal/suntimes"
	"github.com/fpang/camera-scraper/internal/watermark"
	"github.com/fpang/camera-scraper/internal/weather"
)

// imageElementSelector matches the live snapshot elements on the source page.
const imageElementSelector = `[id="wimg1"]`

// pageFetchTimeout bounds the source page download.
const pageFetchTimeout = 15 * time.Second

// WeatherSource provides the current weather report. Failures are soft.
type WeatherSource interface {
	Fetch(ctx context.Context) (weather.Report, error)
}

// SunSource provides per-day sun time rows. Failures are soft.
type SunSource interface {
	Lookup(ctx context.Context, station string, day time.Time) (*suntimes.Row, error)
}

// Engine is the dedup-and-archive orchestrator. For every image listed on the
// source page it checks archive existence by deterministic key, fetches and
// writes only genuine misses, and tracks in-memory watermark candidates.
type Engine struct {
	// NewArchive binds an archive store to the bucket named in the run's
	// config snapshot.
	NewArchive func(bucket string) archive.Store

	// Weather and Sun are optional enrichment providers; either may be nil.
	Weather    WeatherSource
	Sun        SunSource
	SunStation string

	// HTTP fetches individual image bodies. Defaults to a client with the
	// page fetch timeout.
	HTTP *http.Client
}

// Result summarises one engine run. Latest is the watermark.Epoch sentinel
// when the page yielded no parseable candidates; the runner converts that
// into a backoff.
type Result struct {
	Latest   time.Time
	ByPrefix map[string]time.Time
	Seen     int // candidates discovered on the page
	Archived int // objects written this run
	Skipped  int // candidates dropped on parse or fetch failure
}

// Run scrapes the source page and archives every missing snapshot.
//
// Per candidate: an unparseable timestamp or a failed image fetch skips just
// that candidate; an existence-check failure other than not-found, or a
// write failure, is fatal for the run. Already-archived candidates perform no
// storage work but still advance the in-memory watermark candidates, which
// covers a previous run that archived the image and crashed before persisting
// its watermark.
func (e *Engine) Run(ctx context.Context, cfg camconfig.Config) (Result, error) {
	res := Result{
		Latest:   watermark.Epoch,
		ByPrefix: make(map[string]time.Time),
	}

	refs, err := e.discover(cfg.SourceURL)
	if err != nil {
		return res, fmt.Errorf("fetch source page %s: %w", cfg.SourceURL, err)
	}
	log.Debug().Int("candidates", len(refs)).Str("url", cfg.SourceURL).Msg("Source page scraped")

	report := e.currentWeather(ctx)
	store := e.NewArchive(cfg.BucketName)

	for _, ref := range refs {
		res.Seen++

		captureTime, err := imagets.Extract(ref)
		if err != nil {
			log.Error().Err(err).Str("ref", ref).Msg("Dropping candidate without capture timestamp")
			res.Skipped++
			continue
		}

		prefix := matchPrefix(ref, cfg.KnownPrefixes)
		key := archive.Key(prefix, captureTime)

		exists, err := store.Exists(ctx, key)
		if err != nil {
			return res, fmt.Errorf("existence check %s: %w", key, err)
		}
		if exists {
			log.Debug().Str("key", key).Msg("Snapshot already archived")
		} else {
			body, err := e.fetchImage(ctx, ref)
			if err != nil {
				log.Warn().Err(err).Str("ref", ref).Msg("Image fetch failed, skipping candidate")
				res.Skipped++
				continue
			}
			if err := store.Put(ctx, key, body, e.buildMetadata(ctx, captureTime, report)); err != nil {
				return res, fmt.Errorf("archive %s: %w", key, err)
			}
			res.Archived++
			log.Info().Str("key", key).Time("captureTime", captureTime).Msg("Snapshot archived")
		}

		if captureTime.After(res.Latest) {
			res.Latest = captureTime
		}
		if cur, ok := res.ByPrefix[prefix]; !ok || captureTime.After(cur) {
			res.ByPrefix[prefix] = captureTime
		}
	}

	return res, nil
}

// discover downloads the source page and collects the snapshot references.
func (e *Engine) discover(pageURL string) ([]string, error) {
	c := colly.NewCollector(colly.IgnoreRobotsTxt())
	c.SetRequestTimeout(pageFetchTimeout)

	var refs []string
	c.OnHTML(imageElementSelector, func(el *colly.HTMLElement) {
		src := el.Attr("src")
		if src == "" {
			return
		}
		refs = append(refs, el.Request.AbsoluteURL(src))
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, err
	}
	c.Wait()
	return refs, nil
}

// currentWeather fetches the run's weather report, or nil when the provider
// is absent or failing. Enrichment never blocks archival.
func (e *Engine) currentWeather(ctx context.Context) *weather.Report {
	if e.Weather == nil {
		return nil
	}
	report, err := e.Weather.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("No weather data this run")
		return nil
	}
	return &report
}

// buildMetadata assembles the optional object metadata for one snapshot,
// attaching whichever enrichments succeed and omitting the rest.
func (e *Engine) buildMetadata(ctx context.Context, captureTime time.Time, report *weather.Report) map[string]string {
	meta := make(map[string]string)

	if report != nil && report.Covers(captureTime) {
		meta["metar"] = report.Text
	}

	if e.Sun != nil {
		row, err := e.Sun.Lookup(ctx, e.SunStation, captureTime)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Sun times lookup failed")
		case row != nil:
			meta["bcmt"] = row.BCMT
			meta["sunrise"] = row.SR
			meta["sunset"] = row.SS
			meta["ecet"] = row.ECET
		}
	}

	return meta
}

// fetchImage downloads one snapshot body.
func (e *Engine) fetchImage(ctx context.Context, ref string) ([]byte, error) {
	client := e.HTTP
	if client == nil {
		client = &http.Client{Timeout: pageFetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// matchPrefix picks the first known prefix contained in the reference,
// falling back to the first configured prefix.
func matchPrefix(ref string, prefixes []string) string {
	for _, p := range prefixes {
		if strings.Contains(ref, p) {
			return p
		}
	}
	return prefixes[0]
}
