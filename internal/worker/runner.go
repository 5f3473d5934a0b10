package worker

import (
	"context"
	"io"
)

// RunSpec describes one container dispatch: the image plus the full argv
// (command + arguments, per §4.3 step 4 - the container's own entrypoint is
// always cleared so argv runs directly).
type RunSpec struct {
	Image       string
	Argv        []string
	JobID       string
	CPUCores    int
	MemoryGB    int
}

// Runner is the container runtime capability §6 describes: an opaque
// facility for running a detached container, polling its state, killing
// it, and reading back its exit code and logs. dockerrunner.Runner and
// k8srunner.Runner are the two implementations; both satisfy this same
// interface so the Supervisor in worker.go never branches on backend.
type Runner interface {
	// Run starts the container detached and returns a Handle for it.
	// Failure here is a dispatch failure per §4.3 step 4 (image not found,
	// runtime API error).
	Run(ctx context.Context, spec RunSpec) (Handle, error)
}

// Handle is one running (or exited) container, matching §6's
// run/reload/status/kill/wait/logs capability one for one.
type Handle interface {
	// Reload refreshes the handle's cached state from the runtime.
	Reload(ctx context.Context) error

	// Status reports the last-known state: "running" or "exited".
	Status() string

	// ExitCode returns the container's exit code once Status() == "exited".
	ExitCode() (code int, ok bool)

	// Kill terminates a running container.
	Kill(ctx context.Context) error

	// Wait blocks until the container exits and returns its exit code.
	Wait(ctx context.Context) (int, error)

	// Logs returns the container's captured stdout and stderr streams.
	Logs(ctx context.Context) (stdout io.ReadCloser, stderr io.ReadCloser, err error)

	// Cleanup releases runtime resources associated with the container.
	// Must be safe to call after Kill or after a normal exit.
	Cleanup(ctx context.Context) error
}

const (
	StatusContainerRunning = "running"
	StatusContainerExited  = "exited"
)
