// Package storage abstracts the external object store that holds member
// profile images. The production deployment targets an S3-compatible bucket;
// this package keeps that collaborator behind a narrow interface so services
// and tests never depend on a cloud SDK directly.
package storage

import "context"

// ObjectStore persists opaque blobs under string keys.
type ObjectStore interface {
	// Put writes data under key and returns the stored object's key. The
	// returned key is what gets persisted on the member row.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get reads the blob stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the blob stored under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error
}
