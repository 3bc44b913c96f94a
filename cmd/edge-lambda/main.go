// Package main provides the Lambda@Edge entry point for latest-image
// request routing.
//
// CloudFront invokes the handler on origin-request and origin-response for
// the camera distribution. Requests for /east.jpg and /west.jpg are rewritten
// to the archived key of the camera's newest snapshot; the matching responses
// get their cache timing tuned to the snapshot freshness window. Everything
// else passes through untouched.
package main

import (
	"time"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/fpang/camera-scraper/internal/edge"
	"github.com/fpang/camera-scraper/internal/lambdaboot"
	"github.com/fpang/camera-scraper/internal/logging"
)

var handler *edge.Handler

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	// Lambda@Edge replicas run without environment variables; the table name
	// env var only matters for local invocation.
	watermarks := lambdaboot.InitWatermarks(clients.Config, "WATERMARK_TABLE_NAME")
	handler = edge.NewHandler(watermarks)

	lambdaboot.StartupLog("edge-lambda", initStart).
		DynamoTable("watermarks", logging.EnvOrDefault("WATERMARK_TABLE_NAME", lambdaboot.DefaultWatermarkTable)).
		Log()
}

func main() {
	lambda.Start(handler.Handle)
}
