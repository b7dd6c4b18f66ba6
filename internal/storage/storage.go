// internal/storage/storage.go
package storage

import "context"

// ObjectStorage captures the minimal operations needed to archive cycle
// reports to an S3-compatible bucket.
type ObjectStorage interface {
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
}
