// Package storage syncs benchmark artifacts and the metrics log to object
// storage, so results survive the ephemeral machines benchmarks tend to
// run on.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStore abstracts the object storage operations the harness needs.
// Implementations: S3 and local filesystem.
type ObjectStore interface {
	// Upload copies a local file to objectPath in the store.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Download copies an object to localPath, creating parent directories.
	Download(ctx context.Context, objectPath, localPath string) error

	// Exists reports whether an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Delete removes an object. Deleting an absent object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// ListObjects returns all object paths under the given prefix.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// SyncDir uploads every regular file under localDir to the store, keyed by
// its path relative to localDir joined under prefix.
func SyncDir(ctx context.Context, store ObjectStore, localDir, prefix string) error {
	return filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		return store.Upload(ctx, path, filepath.ToSlash(filepath.Join(prefix, rel)))
	})
}

// VerifySync confirms that every regular file under localDir has a matching
// object in the store. Run after SyncDir; a missing object means the sync
// silently dropped a file.
func VerifySync(ctx context.Context, store ObjectStore, localDir, prefix string) error {
	return filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(filepath.Join(prefix, rel))
		exists, err := store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("verify %s: %w", key, ErrObjectNotFound)
		}
		return nil
	})
}
