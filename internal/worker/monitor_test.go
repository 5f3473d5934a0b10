package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectResources(t *testing.T) {
	cpuCores, memoryGB := DetectResources()
	assert.Greater(t, cpuCores, 0)
	assert.Greater(t, memoryGB, 0)
}

func TestResourceMonitor_RecordJobComplete(t *testing.T) {
	rm := NewResourceMonitor("executor-1", time.Second)
	rm.RecordJobComplete(true)
	rm.RecordJobComplete(true)
	rm.RecordJobComplete(false)

	snap := rm.snapshot()
	assert.EqualValues(t, 2, snap.JobsProcessed)
	assert.EqualValues(t, 1, snap.JobsFailed)
}

func TestResourceMonitor_StartStop(t *testing.T) {
	rm := NewResourceMonitor("executor-1", 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rm.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	rm.Stop()
}
