package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/orenmazor/jobservitor/internal/config"
	"github.com/orenmazor/jobservitor/internal/metrics"
	"github.com/orenmazor/jobservitor/internal/objects"
	"github.com/orenmazor/jobservitor/internal/store"
)

var (
	// Singleton instance of the app's ServeMux, so tests and the running
	// process share one router configuration.
	appMux *http.ServeMux
	// Object store for captured job logs (singleton).
	singletonObjectStore objects.ObjectStore
)

// GetAppMux returns the application's HTTP ServeMux for both the running
// process and tests, built against the given broker.
func GetAppMux(broker store.Broker) *http.ServeMux {
	if appMux == nil {
		appMux = createAppMux(broker)
	}
	return appMux
}

// SetObjectStore sets the singleton object store. Exposed for tests that
// want a deterministic objects.ObjectStore without touching env vars.
func SetObjectStore(store objects.ObjectStore) {
	singletonObjectStore = store
}

// ResetAppMux resets the app mux singleton. Exposed for tests that need a
// fresh router wired against a fresh broker.
func ResetAppMux() {
	appMux = nil
	singletonObjectStore = nil
}

// createAppMux builds the jobservitor API's route table (§4.1, §6).
func createAppMux(broker store.Broker) *http.ServeMux {
	mux := http.NewServeMux()

	if singletonObjectStore == nil {
		objectStoreConfig := objects.ObjectStoreConfig{
			Type: config.ObjectStoreType,
			Config: map[string]string{
				"base_path": config.ObjectStoreBasePath,
				"bucket":    config.ObjectStoreBucket,
				"prefix":    config.ObjectStorePrefix,
			},
		}
		var err error
		singletonObjectStore, err = objects.NewObjectStore(objectStoreConfig)
		if err != nil {
			log.Printf("WARNING: failed to initialize object store: %v - log retrieval will be unavailable", err)
		}
	}

	jobHandler := NewJobHandler(broker, singletonObjectStore)

	mux.HandleFunc("/health", instrumented("GET", "/health", healthHandler))

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.Handler().ServeHTTP(w, r)
	})

	// POST /jobs, GET /jobs (§4.1 Submit, List)
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			instrumented("POST", "/jobs", jobHandler.CreateJob)(w, r)
		case http.MethodGet:
			instrumented("GET", "/jobs", jobHandler.ListJobs)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// GET /jobs/{id}, DELETE /jobs/{id} (§4.1 Get, Abort)
	mux.HandleFunc("/jobs/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/jobs/")
		if path == "" {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}

		r = r.WithContext(setIDContext(r.Context(), "id", path))
		switch r.Method {
		case http.MethodGet:
			instrumented("GET", "/jobs/{id}", jobHandler.GetJob)(w, r)
		case http.MethodDelete:
			instrumented("DELETE", "/jobs/{id}", jobHandler.DeleteJob)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// GET /api/v1/jobs/{id}/logs and its websocket tail, a SPEC_FULL.md
	// enrichment over spec.md §6's five core endpoints.
	mux.HandleFunc("/api/v1/jobs/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")

		switch {
		case strings.HasSuffix(path, "/logs/stream"):
			id := strings.TrimSuffix(path, "/logs/stream")
			r = r.WithContext(setIDContext(r.Context(), "id", id))
			jobHandler.StreamJobLogs(w, r)
		case strings.HasSuffix(path, "/logs"):
			id := strings.TrimSuffix(path, "/logs")
			r = r.WithContext(setIDContext(r.Context(), "id", id))
			if r.Method != http.MethodGet {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			instrumented("GET", "/api/v1/jobs/{id}/logs", jobHandler.GetJobLogs)(w, r)
		default:
			http.Error(w, "Invalid path", http.StatusBadRequest)
		}
	})

	return mux
}

// instrumented wraps a handler with the API request counters of §8's
// ambient metrics surface.
func instrumented(method, endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.RecordAPIRequest(method, endpoint, statusText(rec.status))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func statusText(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// contextKey namespaces path-parameter values stashed on the request
// context, replacing the gorilla/mux Vars functionality.
type contextKey string

func setIDContext(ctx context.Context, key, value string) context.Context {
	return context.WithValue(ctx, contextKey(key), value)
}

// GetIDFromContext reads a path parameter set by setIDContext.
func GetIDFromContext(r *http.Request, key string) string {
	if value, ok := r.Context().Value(contextKey(key)).(string); ok {
		return value
	}
	return ""
}

// NewRouter wraps the app mux with CORS handling, for use by cmd/serve.go.
func NewRouter(broker store.Broker) http.Handler {
	mux := GetAppMux(broker)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	return c.Handler(mux)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
}
