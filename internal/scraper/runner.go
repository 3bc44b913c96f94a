package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/camera-scraper/internal/camconfig"
	"github.com/fpang/camera-scraper/internal/watermark"
)

// ConfigSource loads the per-run configuration snapshot.
type ConfigSource interface {
	Load(ctx context.Context) (camconfig.Config, error)
}

// Runner is the run scheduler. It rate-limits runs against the run-wide
// LastRun watermark, refreshes the config snapshot once a run is due, drives
// the engine, and persists watermarks when the run finishes.
//
// A cached config snapshot is kept as warm-start state between invocations;
// the interval check for the next run uses the previous snapshot and falls
// back to the default interval on a cold start. The cache is an optimization
// only and may be discarded at any time.
type Runner struct {
	store  watermark.Store
	config ConfigSource
	engine *Engine

	now      func() time.Time
	snapshot *camconfig.Config
}

// NewRunner creates a Runner over the given watermark store, config source,
// and engine.
func NewRunner(store watermark.Store, config ConfigSource, engine *Engine) *Runner {
	return &Runner{
		store:  store,
		config: config,
		engine: engine,
		now:    time.Now,
	}
}

// Outcome summarises one Run invocation for logging and metrics.
type Outcome struct {
	RunID   string
	Skipped bool      // true when the run was rate-limited away
	NextDue time.Time // earliest next run time, set when Skipped

	Seen          int
	Archived      int
	SkippedImages int
	Latest        time.Time // LastRun value persisted for this run
}

// Run performs one complete scheduled invocation.
//
// A run that is not yet due exits with zero side effects: no config refresh,
// no network traffic, no watermark write. Once a run is attempted, the
// run-wide LastRun watermark is persisted exactly once no matter how the
// engine fares: to the engine's latest capture time when it found anything,
// otherwise to now, so an empty or broken source page still backs off.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	out := Outcome{RunID: uuid.NewString()}
	logger := log.With().Str("runId", out.RunID).Logger()

	now := r.now()
	lastRun, _, err := r.store.Get(ctx, watermark.KeyLastRun)
	if err != nil {
		return out, fmt.Errorf("read %s watermark: %w", watermark.KeyLastRun, err)
	}

	interval := camconfig.DefaultInterval
	if r.snapshot != nil {
		interval = r.snapshot.Interval
	}
	if next := lastRun.Add(interval); now.Before(next) {
		out.Skipped = true
		out.NextDue = next
		logger.Info().Time("nextDue", next).Msg("Last run too recent, skipping")
		return out, nil
	}

	cfg, err := r.config.Load(ctx)
	if err != nil {
		return out, fmt.Errorf("load config: %w", err)
	}
	r.snapshot = &cfg
	logger.Debug().
		Str("url", cfg.SourceURL).
		Str("bucket", cfg.BucketName).
		Dur("interval", cfg.Interval).
		Msg("Config snapshot refreshed")

	res, runErr := r.engine.Run(ctx, cfg)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Scrape run failed")
	}

	// Per-prefix watermarks are routing hints for the edge; persisting them
	// must not fail the run.
	for prefix, captureTime := range res.ByPrefix {
		r.advancePrefix(ctx, logger, prefix, captureTime)
	}

	// Guaranteed cleanup: LastRun is written exactly once per attempted run.
	final := res.Latest
	if !final.After(watermark.Epoch) {
		final = r.now()
		logger.Info().Msg("No pictures found, backing off until the next interval")
	}
	if err := r.store.Put(ctx, watermark.KeyLastRun, final); err != nil {
		logger.Error().Err(err).Msg("Failed to persist LastRun watermark")
		if runErr == nil {
			runErr = fmt.Errorf("persist %s watermark: %w", watermark.KeyLastRun, err)
		}
	}

	out.Seen = res.Seen
	out.Archived = res.Archived
	out.SkippedImages = res.Skipped
	out.Latest = final
	logger.Info().
		Int("seen", out.Seen).
		Int("archived", out.Archived).
		Int("skipped", out.SkippedImages).
		Time("latest", final).
		Msg("Run complete")
	return out, runErr
}

// advancePrefix moves a per-camera watermark forward when the run saw a
// strictly newer capture. Stale or failed writes only cost the edge router
// freshness, so errors are logged and dropped.
func (r *Runner) advancePrefix(ctx context.Context, logger zerolog.Logger, prefix string, captureTime time.Time) {
	key := watermark.PrefixKey(prefix)
	current, _, err := r.store.Get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Could not read camera watermark")
		return
	}
	if !captureTime.After(current) {
		return
	}
	if err := r.store.Put(ctx, key, captureTime); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Could not advance camera watermark")
		return
	}
	logger.Info().Str("key", key).Time("captureTime", captureTime).Msg("Camera watermark advanced")
}
