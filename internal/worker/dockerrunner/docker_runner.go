// Package dockerrunner implements worker.Runner over the Docker daemon.
// Adapted from the teacher's DockerRunner: container lifecycle calls are
// unchanged, but the interface shape moves from a single
// spawn/stream/wait/cleanup surface to an explicit Handle that can be
// polled (Reload/Status), which §4.3's supervise-and-check-abort loop
// requires.
package dockerrunner

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/orenmazor/jobservitor/internal/worker"
)

// Runner runs jobs as Docker containers on the local daemon.
type Runner struct {
	client *client.Client
}

// New creates a Docker-backed Runner using the default Docker socket
// (unix:///var/run/docker.sock, or the equivalent named pipe on Windows).
func New() (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &Runner{client: cli}, nil
}

// NewWithClient wraps an existing Docker client, for tests.
func NewWithClient(cli *client.Client) *Runner {
	return &Runner{client: cli}
}

func (r *Runner) Run(ctx context.Context, spec worker.RunSpec) (worker.Handle, error) {
	logger := logging.Log.WithField("job_id", spec.JobID)

	if spec.Image == "" {
		return nil, fmt.Errorf("container image is required")
	}
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("argv is required")
	}

	logger.WithField("image", spec.Image).Info("ensuring docker image is available")
	if err := r.ensureImage(ctx, spec.Image); err != nil {
		return nil, fmt.Errorf("failed to ensure image: %w", err)
	}

	containerConfig := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Argv,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
		Labels: map[string]string{
			"jobservitor.job_id": spec.JobID,
		},
		// The container's own entrypoint is always cleared; Argv is the
		// full command to run, per §4.3 step 4.
		Entrypoint: []string{},
	}

	hostConfig := &container.HostConfig{
		AutoRemove: false,
	}
	if spec.CPUCores > 0 {
		hostConfig.NanoCPUs = int64(spec.CPUCores) * 1e9
	}
	if spec.MemoryGB > 0 {
		hostConfig.Memory = int64(spec.MemoryGB) * 1024 * 1024 * 1024
	}

	containerName := fmt.Sprintf("jobservitor-job-%s", spec.JobID)
	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	if len(resp.Warnings) > 0 {
		logger.WithField("warnings", resp.Warnings).Warn("container creation warnings")
	}

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		r.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	logger.WithField("container_id", resp.ID).Info("docker container started")
	return &handle{client: r.client, containerID: resp.ID, status: worker.StatusContainerRunning}, nil
}

func (r *Runner) ensureImage(ctx context.Context, imageName string) error {
	logger := logging.Log.WithField("image", imageName)

	if _, _, err := r.client.ImageInspectWithRaw(ctx, imageName); err == nil {
		logger.Debug("image found locally")
		return nil
	}

	logger.Info("pulling docker image")
	pullResp, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer pullResp.Close()

	if _, err := io.Copy(io.Discard, pullResp); err != nil {
		return fmt.Errorf("error reading pull response: %w", err)
	}
	return nil
}

// handle tracks one Docker container.
type handle struct {
	client      *client.Client
	containerID string
	status      string
	exitCode    int
	hasExit     bool
}

func (h *handle) Reload(ctx context.Context) error {
	info, err := h.client.ContainerInspect(ctx, h.containerID)
	if err != nil {
		return fmt.Errorf("failed to inspect container: %w", err)
	}
	if info.State.Running {
		h.status = worker.StatusContainerRunning
		return nil
	}
	h.status = worker.StatusContainerExited
	h.exitCode = info.State.ExitCode
	h.hasExit = true
	return nil
}

func (h *handle) Status() string {
	return h.status
}

func (h *handle) ExitCode() (int, bool) {
	return h.exitCode, h.hasExit
}

func (h *handle) Kill(ctx context.Context) error {
	if err := h.client.ContainerKill(ctx, h.containerID, "SIGKILL"); err != nil {
		return fmt.Errorf("failed to kill container: %w", err)
	}
	return nil
}

func (h *handle) Wait(ctx context.Context) (int, error) {
	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return -1, fmt.Errorf("error waiting for container: %w", err)
		}
		return -1, fmt.Errorf("unexpected empty wait error")
	case status := <-statusCh:
		h.status = worker.StatusContainerExited
		h.exitCode = int(status.StatusCode)
		h.hasExit = true
		return h.exitCode, nil
	}
}

func (h *handle) Logs(ctx context.Context) (io.ReadCloser, io.ReadCloser, error) {
	logs, err := h.client.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get container logs: %w", err)
	}

	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()
	go func() {
		defer logs.Close()
		defer stdoutWriter.Close()
		defer stderrWriter.Close()
		if _, err := stdcopy.StdCopy(stdoutWriter, stderrWriter, logs); err != nil && !strings.Contains(err.Error(), "EOF") {
			logging.Log.WithField("container_id", h.containerID).WithError(err).Error("error demultiplexing container logs")
		}
	}()
	return stdoutReader, stderrReader, nil
}

func (h *handle) Cleanup(ctx context.Context) error {
	if err := h.client.ContainerRemove(ctx, h.containerID, container.RemoveOptions{RemoveVolumes: true, Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

var (
	_ worker.Runner = (*Runner)(nil)
	_ worker.Handle = (*handle)(nil)
)
