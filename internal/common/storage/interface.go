package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the object operations used to archive judged submissions.
type ObjectStorage interface {
	// EnsureBucket creates the bucket when it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject uploads size bytes from reader; size -1 streams with an unknown length.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, size int64, contentType string) error

	// StatObject returns the size and content type of a stored object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ContentType string
}
