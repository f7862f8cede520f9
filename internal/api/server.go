// Package api exposes the producer HTTP surface: starting imports, polling
// their status, and inspecting queues and jobs.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"artist-sync/internal/config"
	"artist-sync/internal/importer"
	"artist-sync/internal/jobs"
	"artist-sync/internal/models"
	"artist-sync/internal/pipeline"
	"artist-sync/internal/queue"
	"artist-sync/internal/ratelimit"
	"artist-sync/internal/store"
	"artist-sync/internal/telemetry"
)

// Server wires HTTP handlers over the import orchestrator and job store.
type Server struct {
	cfg      config.Config
	store    *store.Store
	registry *queue.Registry
	imp      *importer.Importer
	progress *importer.Tracker
	jobs     *jobs.Service
	limiter  *ratelimit.TokenBucket
}

// New constructs the API server. The limiter, when non-nil, caps import
// submissions per client IP.
func New(cfg config.Config, st *store.Store, registry *queue.Registry, imp *importer.Importer, progress *importer.Tracker, jobSvc *jobs.Service, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		registry: registry,
		imp:      imp,
		progress: progress,
		jobs:     jobSvc,
		limiter:  limiter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/imports", s.handleStartImport)
		r.Get("/imports/{key}", s.handleImportStatus)
		r.Get("/queues", s.handleQueues)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/requeue", s.handleRequeue)
	})
	return r
}

func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	var req importer.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), "rl:imports:"+clientIP(r))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	receipt, err := s.imp.ImportArtist(r.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrValidation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, receipt)
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	status, err := s.progress.Status(r.Context(), key)
	if err != nil {
		http.Error(w, "import not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// queueInfo merges durable state counts with live Redis depth for one queue.
type queueInfo struct {
	Queue      string           `json:"queue"`
	ReadyDepth int64            `json:"ready_depth"`
	States     map[string]int64 `json:"states"`
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountJobsByState(r.Context())
	if err != nil {
		http.Error(w, "failed to count jobs", http.StatusInternalServerError)
		return
	}

	byQueue := make(map[string]*queueInfo)
	info := func(name string) *queueInfo {
		qi, ok := byQueue[name]
		if !ok {
			qi = &queueInfo{Queue: name, States: map[string]int64{}}
			byQueue[name] = qi
		}
		return qi
	}
	for _, c := range counts {
		info(c.Queue).States[c.Status] = c.Count
	}

	knownQueues := []string{
		models.QueueProfileSync,
		models.QueueCatalogSync,
		models.QueueCatalogDeep,
		models.QueueEventSync,
		models.QueueSetlistSync,
		models.QueueArtwork,
	}
	out := make([]queueInfo, 0, len(knownQueues))
	for _, name := range knownQueues {
		qi := info(name)
		if depth, err := s.registry.Queue(name).ReadyDepth(r.Context()); err == nil {
			qi.ReadyDepth = depth
		}
		out = append(out, *qi)
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": out})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.jobs.Requeue(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func clientIP(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		return v
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
