// Package storage provides the object store used for uploaded query results and
// rejected-record reports.
package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
	ErrListFailed     = errors.New("list failed")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage abstracts object storage operations.
// Implementations are S3 and the local filesystem for testing.
type ObjectStorage interface {
	// Put writes data to objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get reads the whole object.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Download copies the object to localPath.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// ListObjects returns the objects under prefix, sorted by key.
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
