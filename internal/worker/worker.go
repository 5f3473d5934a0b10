// Package worker implements the Executor Worker of SPEC_FULL.md §4.3: a
// single-threaded cooperative loop that dequeues by locality cascade,
// drives one job through its state machine, and supervises its
// container to completion or abort.
package worker

import (
	"context"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"

	"github.com/orenmazor/jobservitor/internal/metrics"
	"github.com/orenmazor/jobservitor/internal/objects"
	"github.com/orenmazor/jobservitor/internal/store"
)

// fitBatchSize bounds how many candidates PopFit considers per bucket
// when the blocking-popped head of the queue doesn't fit this worker.
const fitBatchSize = 10

// pollInterval is the sleep between container supervision polls. Bounded
// by ~1s per §5; a shorter interval keeps abort latency low without
// busy-spinning.
const pollInterval = 500 * time.Millisecond

// Config is an executor's identity and capacity, set once at startup from
// EXECUTOR_* environment variables (§6).
type Config struct {
	Name         string
	GPUType      store.GPUType
	CPUCores     int
	MemoryGB     int
	DC           string
	Region       string
	IdleTime     time.Duration
	BlockingTime time.Duration
}

// Supervisor runs the main loop. It holds no per-job goroutines: job
// supervision is synchronous, one job at a time, matching §5's explicit
// no-in-process-parallelism rule - a deliberate departure from the
// teacher's goroutine-pool worker design.
type Supervisor struct {
	cfg     Config
	broker  store.Broker
	runner  Runner
	objects objects.ObjectStore
	life    *Lifecycle
	monitor *ResourceMonitor
}

func NewSupervisor(cfg Config, broker store.Broker, runner Runner, objectStore objects.ObjectStore, life *Lifecycle, monitor *ResourceMonitor) *Supervisor {
	return &Supervisor{cfg: cfg, broker: broker, runner: runner, objects: objectStore, life: life, monitor: monitor}
}

// Run executes the main loop until ctx is cancelled or shutdown is
// requested and there is no job left to finish.
func (s *Supervisor) Run(ctx context.Context) error {
	logging.Log.WithField("executor", s.cfg.Name).Info("executor worker starting")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.life.IsShuttingDown() {
			logging.Log.WithField("executor", s.cfg.Name).Info("shutdown requested, executor worker exiting")
			return nil
		}

		job, step, err := s.dequeue(ctx)
		if err != nil {
			logging.Log.WithField("executor", s.cfg.Name).WithError(err).Warn("dequeue cascade failed, continuing")
		}
		metrics.RecordDequeueCascadeDepth(s.cfg.Name, step)

		if job == nil {
			select {
			case <-time.After(s.cfg.IdleTime):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		s.handleOne(ctx, job)
	}
}

// dequeue runs the locality cascade of §4.3 step 1 and returns the job it
// found (nil if all four buckets came up empty), plus the 1-indexed
// cascade step that produced it (0 if none did).
func (s *Supervisor) dequeue(ctx context.Context) (*store.Job, int, error) {
	buckets := store.Cascade(s.cfg.GPUType, s.cfg.DC, s.cfg.Region)

	for i, bucket := range buckets {
		job, err := s.popFitBlocking(ctx, bucket)
		if err != nil {
			return nil, 0, err
		}
		if job != nil {
			return job, i + 1, nil
		}
	}
	return nil, 0, nil
}

// popFitBlocking waits up to BlockingTime for the head of bucket, then
// applies the fit filter. The blocking pop gives the cascade attempt its
// "waits up to blocking_time" behavior (§4.3 step 1); the fit-filter pass
// over the rest of the bucket reuses Broker.PopFit exactly as §4.2
// specifies, pop-many/pick-one/push-back race included.
func (s *Supervisor) popFitBlocking(ctx context.Context, bucket store.Bucket) (*store.Job, error) {
	id, score, ok, err := s.broker.BlockingPopMin(ctx, bucket, int(s.cfg.BlockingTime.Seconds()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	job, err := s.broker.GetJob(ctx, id)
	if err != nil {
		// Stale queue member with no backing record; nothing to do with it.
		return nil, nil
	}

	if job.MemoryRequested <= s.cfg.MemoryGB && job.CPUCoresRequested <= s.cfg.CPUCores {
		return job, nil
	}

	if err := s.broker.Enqueue(ctx, bucket, id, score); err != nil {
		return nil, err
	}
	return s.broker.PopFit(ctx, bucket, fitBatchSize, s.cfg.CPUCores, s.cfg.MemoryGB)
}

// handleOne drives one claimed job through claim-check, dispatch,
// supervise, and finalize (§4.3 steps 2-6). Errors are logged and
// swallowed - the loop always returns to dequeuing the next job.
func (s *Supervisor) handleOne(ctx context.Context, job *store.Job) {
	logger := logging.Log.WithField("job_id", job.ID).WithField("executor", s.cfg.Name)

	// Step 2: claim check.
	current, err := s.broker.GetJob(ctx, job.ID)
	if err != nil {
		logger.WithError(err).Warn("failed to reload job for claim check, dropping claim")
		return
	}
	if current.Status != store.StatusPending {
		logger.WithField("status", current.Status).Info("claimed job is no longer pending, discarding claim")
		return
	}

	// Step 3: transition to running.
	now := time.Now()
	nowUnix := now.Unix()
	current.Status = store.StatusRunning
	current.StartedAt = &nowUnix
	current.Worker = &s.cfg.Name
	if err := s.broker.PutJob(ctx, current); err != nil {
		logger.WithError(err).Error("failed to persist running transition")
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.life.Track(current.ID, cancel)
	defer s.life.Untrack(current.ID)
	metrics.SetWorkerActive(s.cfg.Name, true)
	defer metrics.SetWorkerActive(s.cfg.Name, false)

	// Step 4: dispatch.
	handle, err := s.runner.Run(jobCtx, RunSpec{
		Image:    current.Image,
		Argv:     append(append([]string{}, current.Command...), current.Arguments...),
		JobID:    current.ID,
		CPUCores: current.CPUCoresRequested,
		MemoryGB: current.MemoryRequested,
	})
	if err != nil {
		logger.WithError(err).Error("failed to dispatch container")
		s.finalize(ctx, current, store.StatusFailed, now)
		s.monitor.RecordJobComplete(false)
		return
	}

	// Step 5: supervise.
	outcome := s.supervise(jobCtx, current, handle)

	s.captureLogs(ctx, current, handle)
	if err := handle.Cleanup(ctx); err != nil {
		logger.WithError(err).Warn("failed to clean up container")
	}

	s.finalize(ctx, current, outcome, now)
	s.monitor.RecordJobComplete(outcome == store.StatusSucceeded)
}

// supervise polls the container and the store until the container exits
// or an external abort is observed, per §4.3 step 5.
func (s *Supervisor) supervise(ctx context.Context, job *store.Job, handle Handle) store.Status {
	logger := logging.Log.WithField("job_id", job.ID)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		latest, err := s.broker.GetJob(ctx, job.ID)
		if err == nil && latest.Status == store.StatusAborted {
			logger.Info("abort observed, killing container")
			if err := handle.Kill(ctx); err != nil {
				logger.WithError(err).Warn("failed to kill aborted container")
			}
			return store.StatusAborted
		}

		if err := handle.Reload(ctx); err != nil {
			logger.WithError(err).Warn("failed to reload container state")
		} else if handle.Status() == StatusContainerExited {
			code, _ := handle.ExitCode()
			if code == 0 {
				return store.StatusSucceeded
			}
			return store.StatusFailed
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return store.StatusFailed
		}
	}
}

// captureLogs reads the container's stdout/stderr and writes them to the
// object store, recording the resulting key on the job record. Failure
// here is logged, never fatal to finalize.
func (s *Supervisor) captureLogs(ctx context.Context, job *store.Job, handle Handle) {
	if s.objects == nil {
		return
	}
	stdout, stderr, err := handle.Logs(ctx)
	if err != nil {
		logging.Log.WithField("job_id", job.ID).WithError(err).Warn("failed to fetch container logs")
		return
	}
	defer stdout.Close()
	defer stderr.Close()

	key := objects.JobLogKey(job.ID, objects.LogStreamStdout)
	if err := s.objects.Put(ctx, key, stdout, "text/plain"); err != nil {
		logging.Log.WithField("job_id", job.ID).WithError(err).Warn("failed to store stdout log")
		return
	}

	stderrKey := objects.JobLogKey(job.ID, objects.LogStreamStderr)
	if err := s.objects.Put(ctx, stderrKey, stderr, "text/plain"); err != nil {
		logging.Log.WithField("job_id", job.ID).WithError(err).Warn("failed to store stderr log")
	}

	job.LogsObjectKey = key
}

func (s *Supervisor) finalize(ctx context.Context, job *store.Job, status store.Status, startedAt time.Time) {
	logger := logging.Log.WithField("job_id", job.ID)

	now := time.Now()
	nowUnix := now.Unix()
	job.Status = status
	job.CompletedAt = &nowUnix
	if status == store.StatusAborted {
		job.AbortedAt = &nowUnix
	}

	if err := s.broker.PutJob(ctx, job); err != nil {
		logger.WithError(err).Error("failed to persist final job status")
		return
	}

	metrics.RecordJobProcessed(string(status), s.cfg.Name, now.Sub(startedAt).Seconds())
	logger.WithField("status", status).Info("job reached terminal status")
}
