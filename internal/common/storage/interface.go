// Package storage ships files to S3-compatible object storage.
package storage

import (
	"context"
	"io"
)

// ObjectStorage is the subset of object storage the runner writes to.
type ObjectStorage interface {
	// PutObject uploads sizeBytes read from reader under objectKey.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// EnsureBucket creates bucket when it does not exist.
	EnsureBucket(ctx context.Context, bucket string) error
}
