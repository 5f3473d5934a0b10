package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLifecycle_IsShuttingDown(t *testing.T) {
	lc := NewLifecycle(time.Second)
	assert.False(t, lc.IsShuttingDown())

	lc.RequestShutdown(context.Background())
	assert.True(t, lc.IsShuttingDown())
}

func TestLifecycle_TrackUntrack(t *testing.T) {
	lc := NewLifecycle(time.Second)
	cancelled := false
	lc.Track("job-1", func() { cancelled = true })
	lc.Untrack("job-1")

	// RequestShutdown should return immediately: no in-flight job left.
	done := make(chan struct{})
	go func() {
		lc.RequestShutdown(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RequestShutdown did not return promptly with no in-flight job")
	}
	assert.False(t, cancelled)
}

func TestLifecycle_RequestShutdown_WaitsThenCancels(t *testing.T) {
	lc := NewLifecycle(200 * time.Millisecond)
	cancelled := make(chan struct{})
	lc.Track("job-1", func() { close(cancelled) })

	start := time.Now()
	lc.RequestShutdown(context.Background())
	elapsed := time.Since(start)

	select {
	case <-cancelled:
	default:
		t.Fatal("expected in-flight job's cancel func to have been called")
	}
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
}

func TestLifecycle_RequestShutdown_JobFinishesBeforeDeadline(t *testing.T) {
	lc := NewLifecycle(5 * time.Second)
	cancelled := false
	lc.Track("job-1", func() { cancelled = true })

	go func() {
		time.Sleep(50 * time.Millisecond)
		lc.Untrack("job-1")
	}()

	start := time.Now()
	lc.RequestShutdown(context.Background())
	elapsed := time.Since(start)

	assert.False(t, cancelled)
	assert.Less(t, elapsed, 2*time.Second)
}
