// Package storage provides object storage for study inputs and rendered
// exports. Studies reference their schema and iteration table as objects;
// the export writer publishes front selections through the same interface.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations include S3 and the local filesystem.
//
// All operations are one-shot: a failure surfaces immediately and the caller
// decides what to do. Study loading treats a failed fetch as a failed load,
// leaving previously loaded state untouched.
type ObjectStorage interface {
	// Upload copies a local file into object storage.
	// localPath is the path to the local file to upload.
	// objectPath is the destination path in object storage.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies an object to the local filesystem.
	// Returns ErrObjectNotFound when the object does not exist.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix.
	// Used to enumerate published exports.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}
