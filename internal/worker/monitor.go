package worker

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// DetectResources auto-detects host CPU core count and total memory in
// GiB, used as the default for EXECUTOR_CPU_CORES / EXECUTOR_MEMORY_GB
// when the operator does not set them explicitly (§6).
func DetectResources() (cpuCores int, memoryGB int) {
	cpuCores = runtime.NumCPU()

	memoryGB = 1
	if vmStat, err := mem.VirtualMemory(); err == nil {
		gb := int(vmStat.Total / 1024 / 1024 / 1024)
		if gb > 0 {
			memoryGB = gb
		}
	} else {
		logging.Log.WithError(err).Warn("failed to detect host memory, defaulting to 1GB")
	}

	return cpuCores, memoryGB
}

// ResourceMetrics is a point-in-time snapshot of host and worker-process
// resource usage, logged periodically by ResourceMonitor.
type ResourceMetrics struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	CPUCores      int       `json:"cpu_cores"`
	MemoryUsedMB  uint64    `json:"memory_used_mb"`
	MemoryTotalMB uint64    `json:"memory_total_mb"`
	MemoryPercent float64   `json:"memory_percent"`
	GoRoutines    int       `json:"go_routines"`
	JobsProcessed int64     `json:"jobs_processed"`
	JobsFailed    int64     `json:"jobs_failed"`
}

// ResourceMonitor periodically logs host resource usage and tracks
// cumulative job counters for the Supervisor. There is no ActiveJobs or
// MaxConcurrency field here - the worker never runs more than one job at
// a time (§5), so that part of the teacher's monitor does not apply.
type ResourceMonitor struct {
	executorName string
	startTime    time.Time
	interval     time.Duration

	mu            sync.RWMutex
	jobsProcessed int64
	jobsFailed    int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewResourceMonitor creates a monitor that logs a summary every interval.
func NewResourceMonitor(executorName string, interval time.Duration) *ResourceMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ResourceMonitor{
		executorName: executorName,
		startTime:    time.Now(),
		interval:     interval,
		stopCh:       make(chan struct{}),
	}
}

func (rm *ResourceMonitor) Start(ctx context.Context) {
	rm.wg.Add(1)
	go rm.loop(ctx)
}

func (rm *ResourceMonitor) Stop() {
	close(rm.stopCh)
	rm.wg.Wait()
}

func (rm *ResourceMonitor) loop(ctx context.Context) {
	defer rm.wg.Done()
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-rm.stopCh:
			return
		case <-ticker.C:
			rm.logSummary()
		}
	}
}

func (rm *ResourceMonitor) logSummary() {
	metrics := rm.snapshot()
	logging.Log.WithFields(map[string]interface{}{
		"executor":       rm.executorName,
		"uptime":         time.Since(rm.startTime).String(),
		"cpu_percent":    metrics.CPUPercent,
		"memory_percent": metrics.MemoryPercent,
		"memory_used_mb": metrics.MemoryUsedMB,
		"go_routines":    metrics.GoRoutines,
		"jobs_processed": metrics.JobsProcessed,
		"jobs_failed":    metrics.JobsFailed,
	}).Info("executor resource summary")
}

func (rm *ResourceMonitor) snapshot() ResourceMetrics {
	rm.mu.RLock()
	processed, failed := rm.jobsProcessed, rm.jobsFailed
	rm.mu.RUnlock()

	metrics := ResourceMetrics{
		Timestamp:     time.Now(),
		CPUCores:      runtime.NumCPU(),
		GoRoutines:    runtime.NumGoroutine(),
		JobsProcessed: processed,
		JobsFailed:    failed,
	}

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		metrics.CPUPercent = cpuPercent[0]
	}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		metrics.MemoryUsedMB = vmStat.Used / 1024 / 1024
		metrics.MemoryTotalMB = vmStat.Total / 1024 / 1024
		metrics.MemoryPercent = vmStat.UsedPercent
	}

	return metrics
}

func (rm *ResourceMonitor) RecordJobComplete(success bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if success {
		rm.jobsProcessed++
	} else {
		rm.jobsFailed++
	}
}
