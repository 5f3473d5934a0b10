package worker

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
)

// Lifecycle coordinates graceful shutdown of a Supervisor. Unlike the
// teacher's LifecycleManager, there is never more than one job in flight
// per worker process (see SPEC_FULL.md §5), so there is no activeJobs map -
// just a single optional in-flight job and a cancel func for its context.
type Lifecycle struct {
	shutdownTimeout time.Duration
	mu              sync.Mutex
	current         *inFlight
	shutdownCh      chan struct{}
	shutdownOnce    sync.Once
}

type inFlight struct {
	jobID  string
	cancel context.CancelFunc
}

// NewLifecycle creates a Lifecycle with the given shutdown grace period.
func NewLifecycle(shutdownTimeout time.Duration) *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: shutdownTimeout,
		shutdownCh:      make(chan struct{}),
	}
}

// Track registers the job currently being supervised, so GracefulShutdown
// knows what to wait for (or, past the timeout, what to cancel).
func (lc *Lifecycle) Track(jobID string, cancel context.CancelFunc) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.current = &inFlight{jobID: jobID, cancel: cancel}
}

// Untrack clears the in-flight job once it reaches a terminal state.
func (lc *Lifecycle) Untrack(jobID string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.current != nil && lc.current.jobID == jobID {
		lc.current = nil
	}
}

// IsShuttingDown reports whether shutdown has been requested. The main
// loop checks this between dequeue attempts and stops pulling new work
// once it is true, per SPEC_FULL.md's graceful-shutdown addition.
func (lc *Lifecycle) IsShuttingDown() bool {
	select {
	case <-lc.shutdownCh:
		return true
	default:
		return false
	}
}

// RequestShutdown signals IsShuttingDown and waits up to shutdownTimeout
// for any in-flight job to finish on its own before cancelling its
// context. It does not kill the container directly - cancelling the
// context is what causes the Supervisor loop to abandon its poll and let
// the caller clean up.
func (lc *Lifecycle) RequestShutdown(ctx context.Context) {
	lc.shutdownOnce.Do(func() { close(lc.shutdownCh) })

	lc.mu.Lock()
	job := lc.current
	lc.mu.Unlock()
	if job == nil {
		return
	}

	logging.Log.WithField("job_id", job.jobID).Info("waiting for in-flight job before shutdown")

	deadline := time.NewTimer(lc.shutdownTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		lc.mu.Lock()
		stillRunning := lc.current != nil && lc.current.jobID == job.jobID
		lc.mu.Unlock()
		if !stillRunning {
			logging.Log.WithField("job_id", job.jobID).Info("in-flight job completed before shutdown deadline")
			return
		}

		select {
		case <-deadline.C:
			logging.Log.WithField("job_id", job.jobID).Warn("shutdown grace period elapsed, cancelling in-flight job")
			job.cancel()
			return
		case <-ticker.C:
		case <-ctx.Done():
			job.cancel()
			return
		}
	}
}

// SetupSignalHandlers installs SIGINT/SIGTERM handlers that trigger
// RequestShutdown and then cancel the process's root context.
func (lc *Lifecycle) SetupSignalHandlers(ctx context.Context, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logging.Log.WithField("signal", sig).Info("received shutdown signal")
			lc.RequestShutdown(ctx)
			cancel()
		case <-ctx.Done():
		}
	}()
}
