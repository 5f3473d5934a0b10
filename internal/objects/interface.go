// Package objects archives the container logs captured by the Executor
// Worker (SPEC_FULL.md §4.3 step 6: "logs are surfaced to some sink"),
// and serves them back out through the Scheduler API's /logs and
// /logs/stream endpoints (§4.1). It is not a general-purpose artifact
// store: every key it stores or serves belongs to exactly one job's
// captured stdout/stderr, named by JobLogKey.
package objects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrNotSupported  = errors.New("operation not supported")
	ErrInvalidKey    = errors.New("invalid object key")
	ErrAlreadyExists = errors.New("object already exists")
)

// LogStream identifies which half of a job's captured container output
// an object key refers to.
type LogStream string

const (
	LogStreamStdout LogStream = "stdout"
	LogStreamStderr LogStream = "stderr"
)

// jobLogPrefix is the namespace every key in this store lives under -
// there is no other kind of object archived here.
const jobLogPrefix = "jobs/"

// JobLogKey formats the object key a job's captured stdout/stderr is
// archived under (§4.3 step 6). This is the one place that layout is
// defined; callers (internal/worker's log capture, internal/handlers'
// log retrieval/streaming) must go through it rather than building the
// key by hand, so the two sides of the store can never drift apart.
func JobLogKey(jobID string, stream LogStream) string {
	return fmt.Sprintf("%s%s/%s.log", jobLogPrefix, jobID, stream)
}

// ValidateJobLogKey rejects anything that isn't a well-formed job log
// key: outside the jobs/ namespace, or attempting path traversal. Every
// backend implementation (filesystem, memory, S3) calls this in Put, Get,
// GetURL, Delete and Exists before touching its storage,
// so the domain restriction is enforced once rather than duplicated.
func ValidateJobLogKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	if !strings.HasPrefix(key, jobLogPrefix) {
		return fmt.Errorf("%w: keys must live under %q", ErrInvalidKey, jobLogPrefix)
	}
	return nil
}

// ObjectStore defines the interface for archiving and retrieving job logs.
type ObjectStore interface {
	// Put stores an object under key
	Put(ctx context.Context, key string, data io.Reader, contentType string) error

	// Get retrieves an object
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns a pre-signed URL for accessing the object (optional)
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Delete removes an object
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// List objects with a prefix
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo contains metadata about an object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type"`
}

// ObjectStoreConfig contains configuration for object store implementations
type ObjectStoreConfig struct {
	Type   string            `json:"type"` // "s3", "filesystem", "memory"
	Config map[string]string `json:"config"`
}

// NewObjectStore creates a new object store based on the provided configuration
func NewObjectStore(config ObjectStoreConfig) (ObjectStore, error) {
	switch config.Type {
	case "filesystem":
		basePath := config.Config["base_path"]
		if basePath == "" {
			basePath = "./objects"
		}
		return NewFilesystemObjectStore(basePath), nil
	case "memory":
		return NewMemoryObjectStore(), nil
	case "s3":
		return NewS3ObjectStore(S3Config{
			Bucket:    config.Config["bucket"],
			Prefix:    config.Config["prefix"],
			Region:    config.Config["region"],
			Endpoint:  config.Config["endpoint"],
			AccessKey: config.Config["access_key"],
			SecretKey: config.Config["secret_key"],
		})
	default:
		return nil, errors.New("unsupported object store type: " + config.Type)
	}
}
