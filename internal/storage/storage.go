// Package storage provides the object storage that holds partition files.
package storage

import (
	"context"
	"fmt"

	kerrors "github.com/dpblh/kite/internal/errors"
)

// Sentinel errors for errors.Is.
var (
	ErrObjectNotFound = kerrors.NewStorageError(kerrors.CodeObjectNotFound, "object not found", nil)
	ErrUploadFailed   = kerrors.NewStorageError(kerrors.CodeUploadFailed, "upload failed", nil)
	ErrDownloadFailed = kerrors.NewStorageError(kerrors.CodeDownloadFailed, "download failed", nil)
	ErrDeleteFailed   = kerrors.NewStorageError(kerrors.CodeDeleteFailed, "delete failed", nil)
	ErrListFailed     = kerrors.NewStorageError(kerrors.CodeListFailed, "list failed", nil)
)

// ObjectStorage abstracts object storage operations. Object paths are
// slash-separated and relative to the storage root.
type ObjectStorage interface {
	// Upload copies the local file to objectPath, replacing any existing
	// object.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies the object to localPath. A missing object yields
	// ErrObjectNotFound.
	Download(ctx context.Context, objectPath, localPath string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

func objectNotFound(objectPath string) error {
	return kerrors.NewStorageError(kerrors.CodeObjectNotFound,
		fmt.Sprintf("object %q not found", objectPath), nil).
		WithDetails(map[string]interface{}{"object": objectPath})
}

func storageErr(code, op, objectPath string, cause error) error {
	return kerrors.NewStorageError(code, fmt.Sprintf("%s %q", op, objectPath), cause).
		WithDetails(map[string]interface{}{"object": objectPath})
}
