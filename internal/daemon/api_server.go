package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"cadence/internal/config"
	"cadence/internal/jobs"
	"cadence/internal/logging"
	"cadence/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

type submitRequest struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	router := mux.NewRouter()
	router.Use(srv.withRequestID)
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", srv.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/logs", srv.handleGlobalLogs).Methods(http.MethodGet)
	api.HandleFunc("/jobs", srv.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/jobs", srv.handleList).Methods(http.MethodGet)
	api.HandleFunc("/jobs/clear-completed", srv.handleClearCompleted).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}", srv.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", srv.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/jobs/{id}/logs", srv.handleJobLogs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/cancel", srv.handleCancel).Methods(http.MethodPost)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// withRequestID tags every request with a correlation id so handler log lines
// from the same call can be grouped.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithRequestID(r.Context(), uuid.NewString())
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		s.writeError(w, http.StatusBadRequest, "url must be http or https")
		return
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format != "" && !config.IsSupportedFormat(format) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("format %q is not supported (mp3, m4a, flac, opus, ogg, wav)", format))
		return
	}

	job, err := s.daemon.SubmitJob(req.URL, format)
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			s.writeError(w, http.StatusServiceUnavailable, "job queue is full")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	list := s.daemon.store.List()
	// Keep the payload a JSON array even when empty.
	if list == nil {
		list = []*jobs.Job{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *apiServer) handleGet(w http.ResponseWriter, r *http.Request) {
	job := s.daemon.store.Get(mux.Vars(r)["id"])
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job := s.daemon.store.Get(id)
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !s.daemon.CancelJob(id) {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("job is already %s", job.Status))
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.store.Get(id))
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job := s.daemon.store.Get(id)
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if !s.daemon.store.Delete(id) {
		s.writeError(w, http.StatusConflict, "job is still running; cancel it first")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *apiServer) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	removed := s.daemon.store.ClearCompleted()
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *apiServer) handleJobLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.daemon.store.Get(id) == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	entries := s.daemon.store.Logs(id)
	if entries == nil {
		entries = []jobs.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *apiServer) handleGlobalLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.daemon.store.GlobalLogs()
	if entries == nil {
		entries = []jobs.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
