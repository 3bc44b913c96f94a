// Package camconfig loads the per-run pipeline configuration from SSM
// Parameter Store. The snapshot is refreshed once per run, after the rate
// limit check has passed; the check itself uses the previously cached
// snapshot's interval.
package camconfig

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// ParameterPath is the SSM namespace holding all scraper parameters.
const ParameterPath = "/cameraScraper"

// DefaultInterval applies when /cameraScraper/interval is absent, and is the
// interval the scheduler assumes before the first snapshot has been loaded.
const DefaultInterval = 5 * time.Minute

// defaultPrefixes applies when /cameraScraper/knownPrefixes is absent.
var defaultPrefixes = []string{"east", "west"}

// ErrIncomplete reports a snapshot missing a required parameter.
// The run aborts before scraping when configuration is incomplete.
var ErrIncomplete = errors.New("camera scraper config incomplete")

// Config is a read-only snapshot of the parameter store namespace.
type Config struct {
	SourceURL     string        // page listing the live camera images
	BucketName    string        // archive bucket
	KnownPrefixes []string      // camera identifiers matched against image URLs
	Interval      time.Duration // minimum time between runs
}

// Loader reads Config snapshots via the SSM GetParametersByPath paginator.
type Loader struct {
	client ssm.GetParametersByPathAPIClient
	path   string
}

// NewLoader creates a Loader over the fixed parameter namespace.
func NewLoader(client ssm.GetParametersByPathAPIClient) *Loader {
	return &Loader{client: client, path: ParameterPath}
}

// Load pages through the namespace and assembles a snapshot. Missing required
// parameters or malformed values are errors; the caller aborts the run.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	cfg := Config{
		Interval:      DefaultInterval,
		KnownPrefixes: append([]string(nil), defaultPrefixes...),
	}

	paginator := ssm.NewGetParametersByPathPaginator(l.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(l.path),
		WithDecryption: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return Config{}, fmt.Errorf("read parameters under %s: %w", l.path, err)
		}
		for _, param := range page.Parameters {
			if param.Name == nil || param.Value == nil {
				continue
			}
			if err := cfg.apply(*param.Name, *param.Value); err != nil {
				return Config{}, err
			}
		}
	}

	if cfg.SourceURL == "" {
		return Config{}, fmt.Errorf("%w: missing %s/url", ErrIncomplete, l.path)
	}
	if cfg.BucketName == "" {
		return Config{}, fmt.Errorf("%w: missing %s/bucket", ErrIncomplete, l.path)
	}
	return cfg, nil
}

// apply folds one parameter into the snapshot by name suffix.
func (c *Config) apply(name, value string) error {
	switch {
	case strings.HasSuffix(name, "/interval"):
		minutes, err := strconv.ParseFloat(value, 64)
		if err != nil || minutes < 0 {
			return fmt.Errorf("parameter %s: invalid interval %q", name, value)
		}
		c.Interval = time.Duration(minutes * float64(time.Minute))
	case strings.HasSuffix(name, "/url"):
		c.SourceURL = value
	case strings.HasSuffix(name, "/bucket"):
		c.BucketName = value
	case strings.HasSuffix(name, "/knownPrefixes"):
		prefixes := make([]string, 0, 2)
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefixes = append(prefixes, p)
			}
		}
		if len(prefixes) == 0 {
			return fmt.Errorf("parameter %s: no usable prefixes in %q", name, value)
		}
		c.KnownPrefixes = prefixes
	case strings.HasSuffix(name, "/lastRun"):
		// Superseded by the watermark store; the parameter may linger in old
		// deployments.
		log.Warn().Str("parameter", name).Msg("Ignoring deprecated lastRun parameter")
	default:
		log.Debug().Str("parameter", name).Msg("Unrecognized parameter")
	}
	return nil
}
