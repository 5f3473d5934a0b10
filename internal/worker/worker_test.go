package worker

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orenmazor/jobservitor/internal/store"
)

// mockBroker is a minimal in-memory store.Broker stand-in, grounded on the
// teacher's Func-field mock pattern (internal/corndogs/mock.go).
type mockBroker struct {
	jobs    map[string]*store.Job
	buckets map[string][]store.Member
}

func newMockBroker() *mockBroker {
	return &mockBroker{jobs: map[string]*store.Job{}, buckets: map[string][]store.Member{}}
}

func (m *mockBroker) PutJob(ctx context.Context, job *store.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *mockBroker) GetJob(ctx context.Context, id string) (*store.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (m *mockBroker) Enqueue(ctx context.Context, bucket store.Bucket, id string, score int64) error {
	key := bucketKey(bucket)
	m.buckets[key] = append(m.buckets[key], store.Member{ID: id, Score: score})
	return nil
}

func (m *mockBroker) BlockingPopMin(ctx context.Context, bucket store.Bucket, timeout int) (string, int64, bool, error) {
	key := bucketKey(bucket)
	members := m.buckets[key]
	if len(members) == 0 {
		return "", 0, false, nil
	}
	best := 0
	for i, mem := range members {
		if mem.Score < members[best].Score {
			best = i
		}
	}
	popped := members[best]
	m.buckets[key] = append(members[:best], members[best+1:]...)
	return popped.ID, popped.Score, true, nil
}

func (m *mockBroker) PopMinBatch(ctx context.Context, bucket store.Bucket, n int) ([]store.Member, error) {
	key := bucketKey(bucket)
	members := m.buckets[key]
	if len(members) > n {
		members = members[:n]
	}
	m.buckets[key] = m.buckets[key][len(members):]
	return members, nil
}

func (m *mockBroker) Remove(ctx context.Context, bucket store.Bucket, id string) error {
	key := bucketKey(bucket)
	out := m.buckets[key][:0]
	for _, mem := range m.buckets[key] {
		if mem.ID != id {
			out = append(out, mem)
		}
	}
	m.buckets[key] = out
	return nil
}

func (m *mockBroker) PopFit(ctx context.Context, bucket store.Bucket, n, cpuCores, memoryGB int) (*store.Job, error) {
	members, err := m.PopMinBatch(ctx, bucket, n)
	if err != nil {
		return nil, err
	}
	var fit *store.Job
	for _, mem := range members {
		job := m.jobs[mem.ID]
		if fit == nil && job != nil && job.MemoryRequested <= memoryGB && job.CPUCoresRequested <= cpuCores {
			fit = job
			continue
		}
		m.Enqueue(ctx, bucket, mem.ID, mem.Score)
	}
	return fit, nil
}

func (m *mockBroker) ListQueued(ctx context.Context) ([]*store.Job, error) {
	var jobs []*store.Job
	for _, members := range m.buckets {
		for _, mem := range members {
			if job, ok := m.jobs[mem.ID]; ok {
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

func (m *mockBroker) Close() error { return nil }

func bucketKey(b store.Bucket) string {
	return string(b.GPUType) + "|" + b.DC + "|" + b.Region
}

// mockRunner dispatches a mockHandle that exits immediately with a fixed
// code, so Supervisor tests don't need a real container runtime.
type mockRunner struct {
	exitCode int
	runErr   error
}

func (r *mockRunner) Run(ctx context.Context, spec RunSpec) (Handle, error) {
	if r.runErr != nil {
		return nil, r.runErr
	}
	return &mockHandle{exitCode: r.exitCode, exited: true}, nil
}

type mockHandle struct {
	exitCode int
	exited   bool
	killed   bool
}

func (h *mockHandle) Reload(ctx context.Context) error { return nil }
func (h *mockHandle) Status() string {
	if h.exited {
		return StatusContainerExited
	}
	return StatusContainerRunning
}
func (h *mockHandle) ExitCode() (int, bool)     { return h.exitCode, h.exited }
func (h *mockHandle) Kill(ctx context.Context) error { h.killed = true; h.exited = true; return nil }
func (h *mockHandle) Wait(ctx context.Context) (int, error) { return h.exitCode, nil }
func (h *mockHandle) Logs(ctx context.Context) (io.ReadCloser, io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte("out"))), io.NopCloser(bytes.NewReader([]byte("err"))), nil
}
func (h *mockHandle) Cleanup(ctx context.Context) error { return nil }

func testConfig() Config {
	return Config{
		Name:         "executor-test",
		GPUType:      store.GPUAny,
		CPUCores:     4,
		MemoryGB:     8,
		DC:           store.AnyTag,
		Region:       store.AnyTag,
		IdleTime:     10 * time.Millisecond,
		BlockingTime: 0,
	}
}

func TestSupervisor_HandleOne_Succeeds(t *testing.T) {
	broker := newMockBroker()
	job := store.NewJob("job-1", store.Submission{
		Image: "busybox", MemoryRequested: 2, CPUCoresRequested: 1,
		GPUType: store.GPUAny, DC: store.AnyTag, Region: store.AnyTag,
	}, time.Now())
	require.NoError(t, broker.PutJob(context.Background(), job))

	runner := &mockRunner{exitCode: 0}
	life := NewLifecycle(time.Second)
	monitor := NewResourceMonitor("executor-test", time.Minute)

	s := NewSupervisor(testConfig(), broker, runner, nil, life, monitor)
	s.handleOne(context.Background(), job)

	updated, err := broker.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
}

func TestSupervisor_HandleOne_NonZeroExitFails(t *testing.T) {
	broker := newMockBroker()
	job := store.NewJob("job-1", store.Submission{
		Image: "busybox", MemoryRequested: 2, CPUCoresRequested: 1,
		GPUType: store.GPUAny, DC: store.AnyTag, Region: store.AnyTag,
	}, time.Now())
	require.NoError(t, broker.PutJob(context.Background(), job))

	runner := &mockRunner{exitCode: 1}
	life := NewLifecycle(time.Second)
	monitor := NewResourceMonitor("executor-test", time.Minute)

	s := NewSupervisor(testConfig(), broker, runner, nil, life, monitor)
	s.handleOne(context.Background(), job)

	updated, err := broker.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, updated.Status)
}

func TestSupervisor_HandleOne_SkipsAlreadyClaimedJob(t *testing.T) {
	broker := newMockBroker()
	job := store.NewJob("job-1", store.Submission{
		Image: "busybox", MemoryRequested: 2, CPUCoresRequested: 1,
		GPUType: store.GPUAny, DC: store.AnyTag, Region: store.AnyTag,
	}, time.Now())
	job.Status = store.StatusRunning
	require.NoError(t, broker.PutJob(context.Background(), job))

	runner := &mockRunner{exitCode: 0}
	life := NewLifecycle(time.Second)
	monitor := NewResourceMonitor("executor-test", time.Minute)

	s := NewSupervisor(testConfig(), broker, runner, nil, life, monitor)
	s.handleOne(context.Background(), job)

	// handleOne should have bailed at the claim check without dispatching.
	updated, err := broker.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusRunning, updated.Status)
}

func TestSupervisor_Dequeue_CascadesToAnyBucket(t *testing.T) {
	broker := newMockBroker()
	job := store.NewJob("job-1", store.Submission{
		Image: "busybox", MemoryRequested: 2, CPUCoresRequested: 1,
		GPUType: store.GPUAny, DC: store.AnyTag, Region: store.AnyTag,
	}, time.Now())
	require.NoError(t, broker.PutJob(context.Background(), job))
	require.NoError(t, broker.Enqueue(context.Background(), store.Bucket{GPUType: store.GPUAny, DC: store.AnyTag, Region: store.AnyTag}, job.ID, job.SubmittedAt))

	cfg := testConfig()
	cfg.GPUType = store.GPUNvidia
	cfg.DC = "dc1"
	cfg.Region = "us"
	s := NewSupervisor(cfg, broker, &mockRunner{}, nil, NewLifecycle(time.Second), NewResourceMonitor("x", time.Minute))

	found, step, err := s.dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "job-1", found.ID)
	assert.Equal(t, 4, step)
}

func TestSupervisor_Dequeue_EmptyCascadeReturnsNil(t *testing.T) {
	broker := newMockBroker()
	s := NewSupervisor(testConfig(), broker, &mockRunner{}, nil, NewLifecycle(time.Second), NewResourceMonitor("x", time.Minute))

	found, step, err := s.dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, found)
	assert.Equal(t, 0, step)
}
