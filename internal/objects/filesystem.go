package objects

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilesystemObjectStore archives job logs as files under basePath, one
// file per key (jobs/{id}/stdout.log, jobs/{id}/stderr.log). This is the
// default backend (JOBSERVITOR_OBJECT_STORE_TYPE=filesystem) - suitable
// for a single-node deployment where the Scheduler API and the worker
// that captured a job's logs share a disk.
type FilesystemObjectStore struct {
	basePath string
}

// NewFilesystemObjectStore roots a filesystem-backed job log store at basePath.
func NewFilesystemObjectStore(basePath string) *FilesystemObjectStore {
	return &FilesystemObjectStore{
		basePath: basePath,
	}
}

// Put writes a job log to disk under basePath/key.
func (f *FilesystemObjectStore) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	if err := ValidateJobLogKey(key); err != nil {
		return err
	}

	fullPath := filepath.Join(f.basePath, key)

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, data)
	return err
}

// Get opens a captured job log for reading.
func (f *FilesystemObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateJobLogKey(key); err != nil {
		return nil, err
	}

	fullPath := filepath.Join(f.basePath, key)
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

// GetURL returns a file:// URL for a captured job log (not pre-signed -
// the filesystem backend has no notion of that, unlike S3).
func (f *FilesystemObjectStore) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := ValidateJobLogKey(key); err != nil {
		return "", err
	}

	fullPath := filepath.Join(f.basePath, key)
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}

	// Return a file:// URL (note: this is not a pre-signed URL, just a file path)
	return "file://" + filepath.ToSlash(fullPath), nil
}

// Delete removes a job log from disk.
func (f *FilesystemObjectStore) Delete(ctx context.Context, key string) error {
	if err := ValidateJobLogKey(key); err != nil {
		return err
	}

	fullPath := filepath.Join(f.basePath, key)
	err := os.Remove(fullPath)
	if err != nil && os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// Exists reports whether a job log has been captured yet.
func (f *FilesystemObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateJobLogKey(key); err != nil {
		return false, err
	}

	fullPath := filepath.Join(f.basePath, key)
	_, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List finds captured job logs under prefix - typically "jobs/{id}/" to
// list one job's stdout/stderr together. Every object in this store is a
// plain-text log, so content type is never guessed from extension.
func (f *FilesystemObjectStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	baseSearchPath := filepath.Join(f.basePath, filepath.Dir(prefix))

	err := filepath.Walk(baseSearchPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip directories
		if info.IsDir() {
			return nil
		}

		// Get relative path from base
		relPath, err := filepath.Rel(f.basePath, path)
		if err != nil {
			return err
		}

		// Convert to forward slashes for consistency
		relPath = filepath.ToSlash(relPath)

		// Check if this path matches our prefix
		if strings.HasPrefix(relPath, prefix) {
			objects = append(objects, ObjectInfo{
				Key:          relPath,
				Size:         info.Size(),
				LastModified: info.ModTime(),
				ContentType:  "text/plain",
			})
		}

		return nil
	})

	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return objects, nil
}
