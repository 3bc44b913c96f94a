package archive

import "context"

// Store is the archive backend consumed by the scrape pipeline.
//
// Exists must distinguish "object not present" (false, nil) from every other
// backend failure: a failed existence check is indistinguishable from data
// loss and is therefore fatal to the run, while a miss simply drives the
// fetch-and-write branch.
type Store interface {
	// Exists reports whether an object is already archived under key.
	// It is a metadata-only check and never fetches the object body.
	Exists(ctx context.Context, key string) (bool, error)

	// Put archives an object under key with the fixed snapshot content type,
	// the cost-optimized storage tier, and the given optional metadata.
	Put(ctx context.Context, key string, body []byte, metadata map[string]string) error

	// Get returns the archived object body.
	Get(ctx context.Context, key string) ([]byte, error)
}
