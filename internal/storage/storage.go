// Package storage moves store backups to and from object storage: the local
// filesystem or S3.
package storage

import (
	"context"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

// Sentinels for errors.Is checks.
var (
	ErrObjectNotFound = storeerrors.New(storeerrors.ErrCategoryStorage, storeerrors.CodeObjectNotFound, "object not found")
	ErrUploadFailed   = storeerrors.New(storeerrors.ErrCategoryStorage, storeerrors.CodeUploadFailed, "upload failed")
	ErrDownloadFailed = storeerrors.New(storeerrors.ErrCategoryStorage, storeerrors.CodeDownloadFailed, "download failed")
)

// ObjectStorage abstracts the object store backups are written to.
type ObjectStorage interface {
	// Upload copies the file at localPath to objectPath.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies objectPath to localPath. A missing object returns an
	// error matching ErrObjectNotFound.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes objectPath. Deleting a missing object succeeds.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether objectPath exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns the object paths under prefix in sorted order.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// MultipartUploadConfig holds configuration for multipart uploads.
type MultipartUploadConfig struct {
	// PartSize is the size of each part in bytes (default: 5MB).
	PartSize int64
	// Concurrency is the number of concurrent part uploads (default: 5).
	Concurrency int
}

// DefaultMultipartConfig returns the default multipart upload configuration.
func DefaultMultipartConfig() MultipartUploadConfig {
	return MultipartUploadConfig{
		PartSize:    5 * 1024 * 1024,
		Concurrency: 5,
	}
}

func uploadFailed(objectPath string, err error) error {
	return storeerrors.NewStorageError(storeerrors.CodeUploadFailed, "storage: upload "+objectPath, err)
}

func downloadFailed(objectPath string, err error) error {
	return storeerrors.NewStorageError(storeerrors.CodeDownloadFailed, "storage: download "+objectPath, err)
}

func notFound(objectPath string) error {
	return storeerrors.NewStorageError(storeerrors.CodeObjectNotFound, "storage: no object "+objectPath, nil)
}
