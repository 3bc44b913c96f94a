// Command camera-cli is a local harness for exercising the pipeline without
// deploying. It can run one scrape cycle against real AWS resources, or feed
// a recorded CloudFront event through the edge router and print the result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/camera-scraper/internal/archive"
	"github.com/fpang/camera-scraper/internal/camconfig"
	"github.com/fpang/camera-scraper/internal/edge"
	"github.com/fpang/camera-scraper/internal/lambdaboot"
	"github.com/fpang/camera-scraper/internal/logging"
	"github.com/fpang/camera-scraper/internal/scraper"
	"github.com/fpang/camera-scraper/internal/suntimes"
	"github.com/fpang/camera-scraper/internal/watermark"
	"github.com/fpang/camera-scraper/internal/weather"
)

// CLI flags
var (
	eventFileFlag string
	forceFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "camera-cli",
	Short: "Local harness for the camera snapshot pipeline",
	Long: `camera-cli drives the snapshot pipeline from a workstation.

The scrape command performs one full scrape cycle using the same code path
as the scheduled Lambda: SSM config, source page scrape, S3 archival, and
DynamoDB watermarks. AWS credentials come from the default chain.

The edge command replays a recorded CloudFront origin-request or
origin-response event (JSON, as delivered by Lambda@Edge) through the edge
router and prints the resulting request or response.

Examples:
  camera-cli scrape
  camera-cli scrape --force
  camera-cli edge -f testdata/origin-request.json
  WATERMARK_TABLE_NAME=CameraScraper-Dev camera-cli scrape`,
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape cycle against real AWS resources",
	Run:   runScrape,
}

var edgeCmd = &cobra.Command{
	Use:   "edge",
	Short: "Replay a recorded CloudFront event through the edge router",
	Run:   runEdge,
}

func init() {
	scrapeCmd.Flags().BoolVar(&forceFlag, "force", false, "Run even if the last run is more recent than the poll interval")
	edgeCmd.Flags().StringVarP(&eventFileFlag, "file", "f", "", "Path to a CloudFront event JSON file (required)")
	rootCmd.AddCommand(scrapeCmd, edgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runScrape performs one scheduled-run invocation locally.
func runScrape(cmd *cobra.Command, args []string) {
	logging.Init()
	ctx := context.Background()

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
	runner := scraper.NewRunner(watermarks, camconfig.NewLoader(clients.SSM), engine)

	out, err := runner.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("runId", out.RunID).Msg("Scrape run failed")
	}

	if out.Skipped {
		if !forceFlag {
			fmt.Printf("Run skipped: last run too recent, next due %s\n", out.NextDue.Format("15:04:05"))
			return
		}
		// Rewind LastRun so the scheduler check passes, then try again.
		log.Info().Msg("Forcing run despite recent LastRun")
		if err := watermarks.Put(ctx, watermark.KeyLastRun, out.NextDue.Add(-24*time.Hour)); err != nil {
			log.Fatal().Err(err).Msg("Could not rewind LastRun watermark")
		}
		out, err = runner.Run(ctx)
		if err != nil {
			log.Fatal().Err(err).Str("runId", out.RunID).Msg("Forced scrape run failed")
		}
	}

	fmt.Println("============================================")
	fmt.Println("Scrape run complete")
	fmt.Println("============================================")
	fmt.Printf("Run ID:     %s\n", out.RunID)
	fmt.Printf("Candidates: %d\n", out.Seen)
	fmt.Printf("Archived:   %d\n", out.Archived)
	fmt.Printf("Skipped:    %d\n", out.SkippedImages)
	fmt.Printf("Latest:     %s\n", out.Latest.Format("2006-01-02 15:04:05"))
}

// runEdge replays a recorded CloudFront event file through the router.
func runEdge(cmd *cobra.Command, args []string) {
	logging.Init()

	if eventFileFlag == "" {
		log.Fatal().Msg("The edge command requires -f with a CloudFront event JSON file")
	}
	data, err := os.ReadFile(eventFileFlag)
	if err != nil {
		log.Fatal().Err(err).Str("path", eventFileFlag).Msg("Could not read event file")
	}
	var event edge.Event
	if err := json.Unmarshal(data, &event); err != nil {
		log.Fatal().Err(err).Str("path", eventFileFlag).Msg("Event file is not valid CloudFront event JSON")
	}

	clients := lambdaboot.InitAWS()
	watermarks := lambdaboot.InitWatermarks(clients.Config, "WATERMARK_TABLE_NAME")
	handler := edge.NewHandler(watermarks)

	result, err := handler.Handle(context.Background(), event)
	if err != nil {
		log.Fatal().Err(err).Msg("Edge handler failed")
	}

	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Could not render handler result")
	}
	fmt.Println(string(pretty))
}
