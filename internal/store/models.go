package store

import (
	"fmt"
	"time"
)

// GPUType is the hardware affinity tag a job or worker declares for its GPU
// vendor requirement. "Any" means no affinity.
type GPUType string

const (
	GPUNvidia GPUType = "NVIDIA"
	GPUAMD    GPUType = "AMD"
	GPUIntel  GPUType = "Intel"
	GPUAny    GPUType = "Any"
)

func validGPUType(g GPUType) bool {
	switch g {
	case GPUNvidia, GPUAMD, GPUIntel, GPUAny:
		return true
	default:
		return false
	}
}

// Status is a Job's position in its state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// IsTerminal reports whether a job in this status will never transition again.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusAborted
}

// AnyTag is the dc/region wildcard value.
const AnyTag = "Any"

// Job is the full record of one submitted unit of container work. Fields
// are tagged for direct JSON marshaling into the store and back out over
// the HTTP API - there is no separate wire type.
type Job struct {
	ID                string     `json:"id"`
	Image             string     `json:"image"`
	Command           []string   `json:"command"`
	Arguments         []string   `json:"arguments"`
	GPUType           GPUType    `json:"gpu_type"`
	MemoryRequested   int        `json:"memory_requested"`
	CPUCoresRequested int        `json:"cpu_cores_requested"`
	DC                string     `json:"dc"`
	Region            string     `json:"region"`
	Status            Status     `json:"status"`
	SubmittedAt       int64      `json:"submitted_at"`
	StartedAt         *int64     `json:"started_at"`
	CompletedAt       *int64     `json:"completed_at"`
	AbortedAt         *int64     `json:"aborted_at"`
	Worker            *string    `json:"worker"`
	LogsObjectKey     string     `json:"logs_object_key,omitempty"`
}

// Submission is the caller-supplied subset of Job fields accepted by
// Submit. Any other field in the request body (id, status, timestamps,
// worker) is parsed into here and simply has no home - it is never copied
// onto a Job.
type Submission struct {
	Image             string   `json:"image"`
	Command           []string `json:"command"`
	Arguments         []string `json:"arguments"`
	GPUType           GPUType  `json:"gpu_type"`
	MemoryRequested   int      `json:"memory_requested"`
	CPUCoresRequested int      `json:"cpu_cores_requested"`
	DC                string   `json:"dc"`
	Region            string   `json:"region"`
}

// Validate checks the submission against §3's field invariants, applying
// defaults for omitted affinity fields before checking bounds.
func (s *Submission) Validate() error {
	if s.Image == "" {
		return fmt.Errorf("%w: image is required", ErrInvalidInput)
	}
	if s.GPUType == "" {
		s.GPUType = GPUAny
	}
	if !validGPUType(s.GPUType) {
		return fmt.Errorf("%w: gpu_type must be one of NVIDIA, AMD, Intel, Any", ErrInvalidInput)
	}
	if s.DC == "" {
		s.DC = AnyTag
	}
	if s.Region == "" {
		s.Region = AnyTag
	}
	if s.MemoryRequested == 0 {
		s.MemoryRequested = 1
	}
	if s.MemoryRequested < 1 {
		return fmt.Errorf("%w: memory_requested must be >= 1", ErrInvalidInput)
	}
	if s.CPUCoresRequested == 0 {
		s.CPUCoresRequested = 1
	}
	if s.CPUCoresRequested < 1 {
		return fmt.Errorf("%w: cpu_cores_requested must be >= 1", ErrInvalidInput)
	}
	return nil
}

// NewJob builds a pending Job from a validated submission, filling in the
// server-authoritative fields (id, status, submitted_at). id is supplied by
// the caller (generated via google/uuid at the call site) so tests can
// assert on the returned value without reaching into package internals.
func NewJob(id string, s Submission, now time.Time) *Job {
	return &Job{
		ID:                id,
		Image:             s.Image,
		Command:           s.Command,
		Arguments:         s.Arguments,
		GPUType:           s.GPUType,
		MemoryRequested:   s.MemoryRequested,
		CPUCoresRequested: s.CPUCoresRequested,
		DC:                s.DC,
		Region:            s.Region,
		Status:            StatusPending,
		SubmittedAt:       now.Unix(),
	}
}
