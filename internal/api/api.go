// Package api provides the HTTP request/response layer over the tracker.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/antigravity-dev/tracker/internal/apperr"
	"github.com/antigravity-dev/tracker/internal/config"
	"github.com/antigravity-dev/tracker/internal/sprint"
	"github.com/antigravity-dev/tracker/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg        config.ConfigManager
	store      *store.Store
	sprints    *sprint.Manager
	updater    sprint.ItemUpdater
	logger     *slog.Logger
	startTime  time.Time
	now        func() time.Time
	httpServer *http.Server
}

// NewServer creates a new API server. Item batches (reorders) go through
// updater so they follow the configured batch mode.
func NewServer(cfg config.ConfigManager, st *store.Store, sprints *sprint.Manager, updater sprint.ItemUpdater, logger *slog.Logger) *Server {
	if updater == nil {
		updater = st
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		store:     st,
		sprints:   sprints,
		updater:   updater,
		logger:    logger,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/status", s.handleStatus)
	r.Get("/projects", s.handleProjects)

	r.Route("/projects/{project}", func(r chi.Router) {
		r.Use(s.requireProject)

		r.Get("/backlog", s.handleBacklog)
		r.Post("/backlog/reorder", s.handleReorder)
		r.Post("/selection/toggle", s.handleToggleSelection)
		r.Post("/items", s.handleCreateItem)

		r.Get("/sprints", s.handleListSprints)
		r.Post("/sprints", s.handleCreateSprint)
		r.Get("/sprints/active", s.handleActiveSprint)
		r.Get("/velocity", s.handleVelocity)

		r.Get("/risks", s.handleListRisks)
		r.Post("/risks", s.handleCreateRisk)
	})

	r.Route("/items/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetItem)
		r.Patch("/", s.handleUpdateItem)
		r.Delete("/", s.handleDeleteItem)
	})

	r.Route("/sprints/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSprint)
		r.Delete("/", s.handleDeleteSprint)
		r.Post("/activate", s.handleActivateSprint)
		r.Post("/items", s.handleAddSprintItems)
		r.Delete("/items", s.handleRemoveSprintItems)
		r.Post("/complete", s.handleCompleteSprint)
		r.Post("/cancel", s.handleCancelSprint)
		r.Get("/burndown", s.handleBurndown)
	})

	r.Route("/risks/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetRisk)
		r.Patch("/", s.handleUpdateRisk)
		r.Delete("/", s.handleDeleteRisk)
	})

	return r
}

// Start begins listening on the configured bind address. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	bind := s.cfg.Get().API.Bind
	s.httpServer = &http.Server{
		Addr:              bind,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "bind", bind)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// requireProject rejects project routes for projects that are not
// configured and enabled.
func (s *Server) requireProject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		project := chi.URLParam(r, "project")
		if !s.cfg.Get().ProjectEnabled(project) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid json request body: %v", err)
	}
	return nil
}

// fail maps err onto a response. A partially applied batch answers 207 with
// the failed item ids next to data, the result of the parts that did apply.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, data any) {
	if be, ok := apperr.IsBatch(err); ok {
		writeJSONStatus(w, http.StatusMultiStatus, map[string]any{
			"data":       data,
			"applied":    be.Applied,
			"failed_ids": be.FailedIDs(),
			"failures":   be.Failures,
			"warning":    "some items were not updated; refresh before continuing",
		})
		return
	}

	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	dbOK := s.store.Ping(r.Context()) == nil
	writeJSON(w, map[string]any{
		"uptime_s":   time.Since(s.startTime).Seconds(),
		"db_ok":      dbOK,
		"batch_mode": cfg.Batch.Mode,
	})
}

// GET /projects
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	type projectInfo struct {
		Key             string `json:"key"`
		Name            string `json:"name"`
		Enabled         bool   `json:"enabled"`
		DefaultAssignee string `json:"default_assignee,omitempty"`
	}
	cfg := s.cfg.Get()
	projects := make([]projectInfo, 0, len(cfg.Projects))
	for key, p := range cfg.Projects {
		projects = append(projects, projectInfo{
			Key:             key,
			Name:            p.Name,
			Enabled:         p.Enabled,
			DefaultAssignee: p.DefaultAssignee,
		})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Key < projects[j].Key })
	writeJSON(w, projects)
}

func projectParam(r *http.Request) string {
	return chi.URLParam(r, "project")
}

func idParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
