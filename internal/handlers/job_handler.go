package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orenmazor/jobservitor/internal/metrics"
	"github.com/orenmazor/jobservitor/internal/objects"
	"github.com/orenmazor/jobservitor/internal/store"
)

// JobHandler serves the Scheduler API operations of §4.1.
type JobHandler struct {
	BaseHandler
	broker      store.Broker
	objectStore objects.ObjectStore
	upgrader    websocket.Upgrader
}

func NewJobHandler(broker store.Broker, objectStore objects.ObjectStore) *JobHandler {
	return &JobHandler{
		broker:      broker,
		objectStore: objectStore,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// CreateJobResponse is the body returned on a successful submission.
type CreateJobResponse struct {
	ID string `json:"id"`
}

// CreateJob handles POST /jobs (§4.1 Submit).
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var sub store.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		h.respondWithError(w, store.ErrInvalidInput, "malformed request body")
		return
	}

	// Extra/unknown fields in the body decode into nothing - Submission
	// has no id/status/timestamp/worker fields to receive them.
	if err := sub.Validate(); err != nil {
		h.respondWithError(w, err, "")
		return
	}

	job := store.NewJob(uuid.NewString(), sub, time.Now())

	// Record must be written before the queue entry, so a worker popping
	// the id never observes a missing record (§4.1).
	if err := h.broker.PutJob(r.Context(), job); err != nil {
		h.respondWithError(w, err, "")
		return
	}

	bucket := store.Bucket{GPUType: job.GPUType, DC: job.DC, Region: job.Region}
	if err := h.broker.Enqueue(r.Context(), bucket, job.ID, job.SubmittedAt); err != nil {
		// The record exists but is undispatchable; accepted per §4.1.
		h.respondWithError(w, err, "")
		return
	}

	metrics.RecordJobSubmission(string(job.GPUType), job.DC, job.Region)
	h.respondWithJSON(w, http.StatusOK, CreateJobResponse{ID: job.ID})
}

// GetJob handles GET /jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := h.getID(r, "id")
	job, err := h.broker.GetJob(r.Context(), id)
	if err != nil {
		h.respondWithError(w, err, "")
		return
	}
	h.respondWithJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /jobs: every job currently queued in any affinity
// bucket (§4.1 List - the queued-only behavior §9 resolves to keep).
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.broker.ListQueued(r.Context())
	if err != nil {
		h.respondWithError(w, err, "")
		return
	}
	if jobs == nil {
		jobs = []*store.Job{}
	}
	h.respondWithJSON(w, http.StatusOK, jobs)
}

// DeleteJob handles DELETE /jobs/{id} (§4.1 Abort).
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := h.getID(r, "id")
	job, err := h.broker.GetJob(r.Context(), id)
	if err != nil {
		h.respondWithError(w, err, "")
		return
	}

	if job.Status.IsTerminal() {
		h.respondWithError(w, store.ErrConflict, "Job already completed, cannot abort. sorry!")
		return
	}

	now := time.Now().Unix()
	wasPending := job.Status == store.StatusPending
	job.Status = store.StatusAborted
	job.AbortedAt = &now
	job.CompletedAt = &now

	if wasPending {
		bucket := store.Bucket{GPUType: job.GPUType, DC: job.DC, Region: job.Region}
		if err := h.broker.Remove(r.Context(), bucket, job.ID); err != nil {
			h.respondWithError(w, err, "")
			return
		}
	}
	// If running, the owning worker observes status=aborted on its next
	// supervision poll and kills the container itself (§4.3 step 5).

	if err := h.broker.PutJob(r.Context(), job); err != nil {
		h.respondWithError(w, err, "")
		return
	}

	h.respondWithJSON(w, http.StatusOK, job)
}

// GetJobLogs handles GET /api/v1/jobs/{id}/logs - a SPEC_FULL.md
// enrichment, not named in spec.md §6. Returns captured stdout+stderr
// concatenated, once the worker has written them to the object store.
func (h *JobHandler) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	id := h.getID(r, "id")
	if h.objectStore == nil {
		h.respondWithError(w, store.ErrServiceUnavailable, "log storage not configured")
		return
	}

	stdout, stdoutErr := h.readLog(r, objects.JobLogKey(id, objects.LogStreamStdout))
	stderr, stderrErr := h.readLog(r, objects.JobLogKey(id, objects.LogStreamStderr))
	if stdoutErr != nil && stderrErr != nil {
		h.respondWithError(w, store.ErrNotFound, "logs not available for this job")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write(stdout)
	w.Write(stderr)
}

func (h *JobHandler) readLog(r *http.Request, key string) ([]byte, error) {
	reader, err := h.objectStore.Get(r.Context(), key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

// StreamJobLogs handles GET /api/v1/jobs/{id}/logs/stream: upgrades to a
// websocket and, every 2 seconds, sends the job's full stored stdout log
// (if any is stored yet) as one message, until the job reaches a terminal
// status or the client disconnects. stderr is not streamed.
func (h *JobHandler) StreamJobLogs(w http.ResponseWriter, r *http.Request) {
	id := h.getID(r, "id")
	if h.objectStore == nil {
		http.Error(w, "log storage not configured", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	key := objects.JobLogKey(id, objects.LogStreamStdout)
	for {
		job, err := h.broker.GetJob(r.Context(), id)
		if err == nil {
			if content, logErr := h.readLog(r, key); logErr == nil {
				if werr := conn.WriteMessage(websocket.TextMessage, content); werr != nil {
					return
				}
			}
			if job.Status.IsTerminal() {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				return
			}
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}
