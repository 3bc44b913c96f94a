// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Both Lambdas need some subset of: AWS config, S3, DynamoDB, and startup
// logging. This package extracts the common init patterns so each Lambda's
// init() is a short composition of helpers.
package lambdaboot

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/camera-scraper/internal/logging"
	"github.com/fpang/camera-scraper/internal/suntimes"
	"github.com/fpang/camera-scraper/internal/watermark"
)

// Default table names. Lambda@Edge replicas cannot carry environment
// variables, so the edge Lambda relies on these compiled-in defaults; the
// scraper may override them via the environment.
const (
	DefaultWatermarkTable = "CameraScraper-KeyValue"
	DefaultSunTimesTable  = "CameraScraper-SunTimes"
)

// AWSClients holds the core AWS SDK clients shared across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitWatermarks creates the watermark store, resolving the table name from
// the given environment variable with the compiled-in default as fallback.
func InitWatermarks(cfg aws.Config, tableEnvVar string) *watermark.DynamoStore {
	tableName := logging.EnvOrDefault(tableEnvVar, DefaultWatermarkTable)
	return watermark.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

// InitSunTimes creates the sun-times table reader, resolving the table name
// from the given environment variable with the compiled-in default as fallback.
func InitSunTimes(cfg aws.Config, tableEnvVar string) *suntimes.DynamoTable {
	tableName := logging.EnvOrDefault(tableEnvVar, DefaultSunTimesTable)
	return suntimes.NewDynamoTable(dynamodb.NewFromConfig(cfg), tableName)
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
