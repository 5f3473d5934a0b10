package store

import (
	"context"
	"errors"
)

// Sentinel errors returned by Broker implementations, mapped to HTTP status
// codes in internal/handlers.BaseHandler per §7's error taxonomy.
var (
	ErrNotFound           = errors.New("job not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrServiceUnavailable = errors.New("store unavailable")
)

// Broker is the Job Store & Queue Broker of §4.2: a thin abstraction over a
// key/value + sorted-set service. No method on Job touches the store
// directly (see SPEC_FULL.md §9) - every read-modify-write sequence is
// driven by a caller holding a Broker value, never by a method on the
// record itself.
type Broker interface {
	PutJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)

	Enqueue(ctx context.Context, bucket Bucket, id string, score int64) error
	BlockingPopMin(ctx context.Context, bucket Bucket, timeout int) (id string, score int64, ok bool, err error)
	PopMinBatch(ctx context.Context, bucket Bucket, n int) ([]Member, error)
	Remove(ctx context.Context, bucket Bucket, id string) error

	// PopFit composes PopMinBatch with a capacity filter. Not atomic across
	// its internal pop/pick/push-back steps - see SPEC_FULL.md §4.2 and
	// DESIGN.md for the accepted race.
	PopFit(ctx context.Context, bucket Bucket, n int, cpuCores, memoryGB int) (*Job, error)

	// ListQueued returns every job currently present in any affinity
	// bucket. §9's open question is resolved in favor of the source's
	// queued-only behavior.
	ListQueued(ctx context.Context) ([]*Job, error)

	Close() error
}

// Member is one (id, score) pair popped from a sorted-set bucket.
type Member struct {
	ID    string
	Score int64
}
