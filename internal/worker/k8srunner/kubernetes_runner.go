// Package k8srunner implements worker.Runner by creating a Kubernetes Job
// per dispatched container, mirroring the teacher's KubernetesRunner but
// adapted to the poll-based Handle contract instead of a blocking wait.
package k8srunner

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/catalystcommunity/app-utils-go/logging"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	resourceapi "k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/orenmazor/jobservitor/internal/worker"
)

// Runner dispatches containers as Kubernetes Jobs in a fixed namespace.
type Runner struct {
	clientset kubernetes.Interface
	namespace string
}

// New wraps an existing clientset. Construction of the clientset itself
// (in-cluster config vs kubeconfig) is left to the caller, matching the
// teacher's NewKubernetesRunnerWithConfig split.
func New(clientset kubernetes.Interface, namespace string) *Runner {
	if namespace == "" {
		namespace = "default"
	}
	return &Runner{clientset: clientset, namespace: namespace}
}

func (r *Runner) Run(ctx context.Context, spec worker.RunSpec) (worker.Handle, error) {
	logger := logging.Log.WithField("job_id", spec.JobID)

	if spec.Image == "" {
		return nil, fmt.Errorf("container image is required")
	}

	name := fmt.Sprintf("jobservitor-job-%s", spec.JobID)
	backoffLimit := int32(0)

	resources := corev1.ResourceRequirements{
		Requests: corev1.ResourceList{},
		Limits:   corev1.ResourceList{},
	}
	if spec.CPUCores > 0 {
		q := resourceapi.MustParse(fmt.Sprintf("%d", spec.CPUCores))
		resources.Requests[corev1.ResourceCPU] = q
		resources.Limits[corev1.ResourceCPU] = q
	}
	if spec.MemoryGB > 0 {
		q := resourceapi.MustParse(fmt.Sprintf("%dGi", spec.MemoryGB))
		resources.Requests[corev1.ResourceMemory] = q
		resources.Limits[corev1.ResourceMemory] = q
	}

	jobSpec := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: r.namespace,
			Labels: map[string]string{
				"jobservitor.job_id": spec.JobID,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"jobservitor.job_id": spec.JobID,
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:      "job",
							Image:     spec.Image,
							Command:   spec.Argv,
							Resources: resources,
						},
					},
				},
			},
		},
	}

	created, err := r.clientset.BatchV1().Jobs(r.namespace).Create(ctx, jobSpec, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes job: %w", err)
	}

	logger.WithField("k8s_job", created.Name).Info("kubernetes job created")
	return &handle{
		clientset: r.clientset,
		namespace: r.namespace,
		name:      created.Name,
		status:    worker.StatusContainerRunning,
	}, nil
}

// handle tracks one Kubernetes Job and its (at most one, given
// backoffLimit=0) pod.
type handle struct {
	clientset kubernetes.Interface
	namespace string
	name      string
	status    string
	exitCode  int
	hasExit   bool
	podName   string
}

func (h *handle) Reload(ctx context.Context) error {
	job, err := h.clientset.BatchV1().Jobs(h.namespace).Get(ctx, h.name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get kubernetes job: %w", err)
	}

	if job.Status.Active > 0 {
		h.status = worker.StatusContainerRunning
		return nil
	}
	if job.Status.Succeeded == 0 && job.Status.Failed == 0 {
		h.status = worker.StatusContainerRunning
		return nil
	}

	h.status = worker.StatusContainerExited
	h.hasExit = true
	if job.Status.Succeeded > 0 {
		h.exitCode = 0
	} else {
		h.exitCode = 1
	}
	if err := h.resolvePodName(ctx); err == nil {
		if code, ok := h.podExitCode(ctx); ok {
			h.exitCode = code
		}
	}
	return nil
}

func (h *handle) resolvePodName(ctx context.Context) error {
	if h.podName != "" {
		return nil
	}
	pods, err := h.clientset.CoreV1().Pods(h.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", h.name),
	})
	if err != nil || len(pods.Items) == 0 {
		return fmt.Errorf("no pod found for job %s", h.name)
	}
	h.podName = pods.Items[0].Name
	return nil
}

func (h *handle) podExitCode(ctx context.Context) (int, bool) {
	pod, err := h.clientset.CoreV1().Pods(h.namespace).Get(ctx, h.podName, metav1.GetOptions{})
	if err != nil {
		return 0, false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Name == "job" && cs.State.Terminated != nil {
			return int(cs.State.Terminated.ExitCode), true
		}
	}
	return 0, false
}

func (h *handle) Status() string {
	return h.status
}

func (h *handle) ExitCode() (int, bool) {
	return h.exitCode, h.hasExit
}

func (h *handle) Kill(ctx context.Context) error {
	propagation := metav1.DeletePropagationForeground
	err := h.clientset.BatchV1().Jobs(h.namespace).Delete(ctx, h.name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete kubernetes job: %w", err)
	}
	h.status = worker.StatusContainerExited
	return nil
}

func (h *handle) Wait(ctx context.Context) (int, error) {
	for {
		if err := h.Reload(ctx); err != nil {
			return -1, err
		}
		if h.status == worker.StatusContainerExited {
			return h.exitCode, nil
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		default:
		}
	}
}

func (h *handle) Logs(ctx context.Context) (io.ReadCloser, io.ReadCloser, error) {
	if err := h.resolvePodName(ctx); err != nil {
		return nil, nil, err
	}
	req := h.clientset.CoreV1().Pods(h.namespace).GetLogs(h.podName, &corev1.PodLogOptions{
		Container: "job",
		Follow:    true,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stream pod logs: %w", err)
	}
	// Kubernetes pod logs interleave stdout/stderr into one stream; there is
	// no per-container demux equivalent to Docker's stdcopy, so stderr is
	// returned empty and all output arrives on stdout.
	return stream, io.NopCloser(strings.NewReader("")), nil
}

func (h *handle) Cleanup(ctx context.Context) error {
	propagation := metav1.DeletePropagationForeground
	err := h.clientset.BatchV1().Jobs(h.namespace).Delete(ctx, h.name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete kubernetes job: %w", err)
	}
	return nil
}

var (
	_ worker.Runner = (*Runner)(nil)
	_ worker.Handle = (*handle)(nil)
)
