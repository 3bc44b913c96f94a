package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Store implements Store on top of a single S3 bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// Compile-time interface check.
var _ Store = (*S3Store)(nil)

// NewS3 creates an S3Store for the given bucket.
// The client should be initialized from the shared AWS config.
func NewS3(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// Exists performs a HeadObject call. A NotFound response maps to (false, nil);
// any other error is returned to the caller.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("HeadObject s3://%s/%s: %w", s.bucket, key, err)
	}
	return true, nil
}

// Put writes the snapshot with content type image/jpeg and the
// INTELLIGENT_TIERING storage class.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       &s.bucket,
		Key:          &key,
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(ContentType),
		StorageClass: types.StorageClassIntelligentTiering,
		Metadata:     metadata,
	})
	if err != nil {
		return fmt.Errorf("PutObject s3://%s/%s: %w", s.bucket, key, err)
	}
	log.Debug().Str("bucket", s.bucket).Str("key", key).Int("bytes", len(body)).Msg("Snapshot archived")
	return nil
}

// Get returns the archived object body.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("GetObject s3://%s/%s: %w", s.bucket, key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}
