package storage

import "context"

// BlobStore is the pipeline's view of object storage: named blobs in
// logical buckets. Implementations must distinguish a missing object
// (errors.ErrNotFound) from an infrastructure failure so the pipeline can
// classify the attempt.
type BlobStore interface {
	// Download fetches bucket/key into the local file at path, truncating
	// any previous content.
	Download(ctx context.Context, bucket, key, path string) error

	// Upload stores the local file at path as bucket/key.
	Upload(ctx context.Context, bucket, key, path, contentType string) error

	// Put stores raw bytes as bucket/key.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error

	// Delete removes bucket/key. Deleting an absent object is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// List returns up to max keys from the bucket.
	List(ctx context.Context, bucket string, max int32) ([]string, error)

	// Exists reports whether bucket/key is present.
	Exists(ctx context.Context, bucket, key string) (bool, error)
}
