package k8srunner

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/orenmazor/jobservitor/internal/worker"
)

func TestNew_DefaultsNamespace(t *testing.T) {
	r := New(fake.NewSimpleClientset(), "")
	assert.Equal(t, "default", r.namespace)
}

func TestRunner_Run_RejectsMissingImage(t *testing.T) {
	r := New(fake.NewSimpleClientset(), "jobs")
	_, err := r.Run(context.Background(), worker.RunSpec{JobID: "job-1", Argv: []string{"echo"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image is required")
}

func TestRunner_Run_CreatesKubernetesJob(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	r := New(clientset, "jobs")

	h, err := r.Run(context.Background(), worker.RunSpec{
		JobID: "job-1", Image: "busybox", Argv: []string{"echo", "hi"}, CPUCores: 2, MemoryGB: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, worker.StatusContainerRunning, h.Status())

	created, err := clientset.BatchV1().Jobs("jobs").Get(context.Background(), "jobservitor-job-job-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "job-1", created.Labels["jobservitor.job_id"])
}

func TestHandle_Reload_ReflectsSucceededJob(t *testing.T) {
	clientset := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "jobservitor-job-job-1", Namespace: "jobs"},
		Status:     batchv1.JobStatus{Succeeded: 1},
	})
	h := &handle{clientset: clientset, namespace: "jobs", name: "jobservitor-job-job-1", status: worker.StatusContainerRunning}

	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, worker.StatusContainerExited, h.Status())
	exitCode, hasExit := h.ExitCode()
	assert.True(t, hasExit)
	assert.Equal(t, 0, exitCode)
}

func TestHandle_Reload_ReflectsFailedJob(t *testing.T) {
	clientset := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "jobservitor-job-job-1", Namespace: "jobs"},
		Status:     batchv1.JobStatus{Failed: 1},
	})
	h := &handle{clientset: clientset, namespace: "jobs", name: "jobservitor-job-job-1", status: worker.StatusContainerRunning}

	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, worker.StatusContainerExited, h.Status())
	exitCode, hasExit := h.ExitCode()
	assert.True(t, hasExit)
	assert.Equal(t, 1, exitCode)
}

func TestHandle_Reload_StillActiveStaysRunning(t *testing.T) {
	clientset := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "jobservitor-job-job-1", Namespace: "jobs"},
		Status:     batchv1.JobStatus{Active: 1},
	})
	h := &handle{clientset: clientset, namespace: "jobs", name: "jobservitor-job-job-1", status: worker.StatusContainerRunning}

	require.NoError(t, h.Reload(context.Background()))
	assert.Equal(t, worker.StatusContainerRunning, h.Status())
	_, hasExit := h.ExitCode()
	assert.False(t, hasExit)
}

func TestHandle_Kill_DeletesJob(t *testing.T) {
	clientset := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "jobservitor-job-job-1", Namespace: "jobs"},
	})
	h := &handle{clientset: clientset, namespace: "jobs", name: "jobservitor-job-job-1", status: worker.StatusContainerRunning}

	require.NoError(t, h.Kill(context.Background()))
	assert.Equal(t, worker.StatusContainerExited, h.Status())

	_, err := clientset.BatchV1().Jobs("jobs").Get(context.Background(), "jobservitor-job-job-1", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestHandle_Kill_NotFoundIsNotAnError(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	h := &handle{clientset: clientset, namespace: "jobs", name: "missing-job", status: worker.StatusContainerRunning}
	require.NoError(t, h.Kill(context.Background()))
}

func TestHandle_Logs_StderrIsAlwaysEmpty(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "jobservitor-job-job-1-abcde",
			Namespace: "jobs",
			Labels:    map[string]string{"job-name": "jobservitor-job-job-1"},
		},
	})
	h := &handle{clientset: clientset, namespace: "jobs", name: "jobservitor-job-job-1"}

	stdout, stderr, err := h.Logs(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stdout)
	require.NotNil(t, stderr)

	stderrData, err := io.ReadAll(stderr)
	require.NoError(t, err)
	assert.Empty(t, stderrData)
}

func TestImplementsWorkerInterfaces(t *testing.T) {
	var _ worker.Handle = (*handle)(nil)
	var _ worker.Runner = (*Runner)(nil)
}
