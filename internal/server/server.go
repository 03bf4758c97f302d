// Package server exposes the manual trigger and status endpoints. Every
// mutating endpoint goes through the dispatcher; nothing here touches a
// pipeline directly.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/agent"
	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/scheduler"
	"github.com/sells-group/prospector/internal/store"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Dispatcher is the slice of the agent the server needs.
type Dispatcher interface {
	Enqueue(task model.Task) string
	Submit(ctx context.Context, task model.Task) (model.RunSummary, error)
	Status() agent.Status
}

// TriggerSource reports the scheduler's trigger table.
type TriggerSource interface {
	Snapshot() []scheduler.TriggerInfo
}

// Server is the HTTP surface.
type Server struct {
	cfg        config.ServerConfig
	dispatcher Dispatcher
	store      store.Store
	triggers   TriggerSource
	router     chi.Router
}

// New builds the router. triggers may be nil.
func New(cfg config.ServerConfig, d Dispatcher, st store.Store, triggers TriggerSource) *Server {
	s := &Server{cfg: cfg, dispatcher: d, store: st, triggers: triggers}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/collect/daily", s.handleCollectDaily)
		r.Get("/records", s.handleRecords)
		r.Get("/status", s.handleStatus)
		r.Post("/tasks", s.handleEnqueue)
	})
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured port until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCollectDaily runs the daily collection through the dispatcher and
// waits for it.
func (s *Server) handleCollectDaily(w http.ResponseWriter, r *http.Request) {
	sum, err := s.dispatcher.Submit(r.Context(), model.Task{
		Type:     model.TaskCollection,
		Priority: model.TaskPriorityHigh,
		Params:   map[string]any{"mode": "daily"},
		Source:   model.SourceOperator,
	})
	if err != nil {
		zap.L().Error("server: manual collection failed", zap.String("task_id", sum.TaskID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	resp := map[string]any{"success": true, "task_id": sum.TaskID}
	if sum.Result != nil {
		resp["summary"] = sum.Result.Summary
		resp["result"] = sum.Result
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultPageLimit)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	limit = min(limit, maxPageLimit)
	offset, err := intParam(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	records, err := s.store.SelectPage(r.Context(), store.RecordFilter{}, store.OrderNewestFirst, limit, offset)
	if err != nil {
		zap.L().Error("server: list records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	total, err := s.store.Count(r.Context(), store.RecordFilter{})
	if err != nil {
		zap.L().Error("server: count records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to count records")
		return
	}
	if records == nil {
		records = []model.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"agent": s.dispatcher.Status()}
	if s.triggers != nil {
		resp["triggers"] = s.triggers.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var task model.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := model.Validate(task); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	task.ID = ""
	task.ScheduledTime = time.Time{}
	task.Source = model.SourceOperator

	id := s.dispatcher.Enqueue(task)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "id": id})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
