// Package main provides the scheduled Lambda entry point for the
// scrape-and-archive pipeline.
//
// An EventBridge schedule invokes the handler more often than the configured
// poll interval; the run scheduler rate-limits against the LastRun watermark
// so only due invocations actually scrape. Every attempted run ends with
// exactly one LastRun write, which is also what keeps an empty or broken
// source page from being hammered.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/camera-scraper/internal/archive"
	"github.com/fpang/camera-scraper/internal/camconfig"
	"github.com/fpang/camera-scraper/internal/lambdaboot"
	"github.com/fpang/camera-scraper/internal/logging"
	"github.com/fpang/camera-scraper/internal/metrics"
	"github.com/fpang/camera-scraper/internal/scraper"
	"github.com/fpang/camera-scraper/internal/suntimes"
	"github.com/fpang/camera-scraper/internal/weather"
)

// runner is initialized at cold start and reused across invocations; its
// cached config snapshot and sun-times cache are warm-start state only.
var runner *scraper.Runner

var coldStart = true

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	s3Client := s3.NewFromConfig(clients.Config)
	watermarks := lambdaboot.InitWatermarks(clients.Config, "WATERMARK_TABLE_NAME")
	sunTable := lambdaboot.InitSunTimes(clients.Config, "SUNTIMES_TABLE_NAME")

	engine := &scraper.Engine{
		NewArchive: func(bucket string) archive.Store {
			return archive.NewS3(s3Client, bucket)
		},
		Weather:    weather.NewClient(weather.DefaultStation),
		Sun:        suntimes.NewSource(sunTable),
		SunStation: suntimes.DefaultStation,
	}
	runner = scraper.NewRunner(watermarks, camconfig.NewLoader(clients.SSM), engine)

	lambdaboot.StartupLog("scraper-lambda", initStart).
		DynamoTable("watermarks", logging.EnvOrDefault("WATERMARK_TABLE_NAME", lambdaboot.DefaultWatermarkTable)).
		DynamoTable("sunTimes", logging.EnvOrDefault("SUNTIMES_TABLE_NAME", lambdaboot.DefaultSunTimesTable)).
		SSMParam("config", camconfig.ParameterPath).
		Config("weatherStation", weather.DefaultStation).
		Log()
}

func handler(ctx context.Context) error {
	handlerStart := time.Now()
	if coldStart {
		coldStart = false
		log.Info().Str("function", "scraper-lambda").Msg("First invocation since cold start")
	}

	out, err := runner.Run(ctx)

	rec := metrics.New("CameraScraper").
		Dimension("Operation", "scrape").
		Property("runId", out.RunID).
		Metric("RunDurationMs", float64(time.Since(handlerStart).Milliseconds()), metrics.UnitMilliseconds)
	if out.Skipped {
		rec.Count("RunsSkipped")
	} else {
		rec.Metric("CandidatesSeen", float64(out.Seen), metrics.UnitCount).
			Metric("ImagesArchived", float64(out.Archived), metrics.UnitCount).
			Metric("CandidatesSkipped", float64(out.SkippedImages), metrics.UnitCount)
	}
	if err != nil {
		rec.Count("RunErrors")
	}
	rec.Flush()

	if err != nil {
		log.Error().Err(err).Str("runId", out.RunID).Msg("Scrape invocation failed")
		return err
	}
	return nil
}

func main() {
	lambda.Start(handler)
}
