// Package api is the thin HTTP surface over the job queue and the partial
// transfer registry.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ytget/ytq/internal/model"
	"github.com/ytget/ytq/internal/resume"
)

// Request limits
const (
	MaxBodyBytes       = 1 << 20
	DefaultReadTimeout = 15 * time.Second
)

// ErrJobNotFound is reported for unknown job ids
var ErrJobNotFound = errors.New("job not found")

// Queue is the slice of download.Service the API needs
type Queue interface {
	Enqueue(req model.JobRequest) (string, error)
	GetStatus(id string) (model.JobStatus, bool)
	ListAll() []model.JobStatus
	Stats() model.QueueStats
}

// Partials is the slice of resume.Registry the API needs
type Partials interface {
	ListAll(dir string) ([]resume.Summary, error)
	BestToResume(dir string) (resume.Summary, bool, error)
}

// Options configures a Server
type Options struct {
	Addr        string
	DownloadDir string
	Metrics     http.Handler // served on /metrics when set
	Logger      *slog.Logger
}

// Server routes HTTP requests to the queue and registry
type Server struct {
	queue    Queue
	partials Partials
	opts     Options
	mux      *http.ServeMux
	server   *http.Server
}

// SubmitRequest is the body of POST /jobs
type SubmitRequest struct {
	SourceID string `json:"source_id"`
	Title    string `json:"title,omitempty"`
	Quality  string `json:"quality,omitempty"`
}

// SubmitResponse is returned by POST /jobs
type SubmitResponse struct {
	ID string `json:"id"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// PartialsResponse is returned by GET /partials
type PartialsResponse struct {
	Dir      string           `json:"dir"`
	Partials []resume.Summary `json:"partials"`
}

// NewServer creates a server. partials may be nil to disable the /partials routes.
func NewServer(queue Queue, partials Partials, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		queue:    queue,
		partials: partials,
		opts:     opts,
		mux:      http.NewServeMux(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s,
		ReadHeaderTimeout: DefaultReadTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /jobs", s.handleSubmit)
	s.mux.HandleFunc("GET /jobs", s.handleList)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleStatus)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.partials != nil {
		s.mux.HandleFunc("GET /partials", s.handlePartials)
		s.mux.HandleFunc("GET /partials/best", s.handleBestPartial)
	}
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start listens on Options.Addr until Stop is called
func (s *Server) Start() error {
	s.opts.Logger.Info("http server listening", "addr", s.opts.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server. Start returns nil once Stop has
// been called, even if Stop ran first.
func (s *Server) Stop(ctx context.Context) error {
	s.opts.Logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	defer r.Body.Close()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read request body: %w", err))
		return
	}

	var req SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	req.SourceID = strings.TrimSpace(req.SourceID)
	if req.SourceID == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("source_id is required"))
		return
	}

	id, err := s.queue.Enqueue(model.JobRequest{
		SourceID: req.SourceID,
		Title:    req.Title,
		Quality:  req.Quality,
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	w.Header().Set("Location", "/jobs/"+id)
	s.writeJSON(w, http.StatusAccepted, SubmitResponse{ID: id})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.queue.ListAll())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.queue.GetStatus(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", ErrJobNotFound, id))
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.queue.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePartials(w http.ResponseWriter, _ *http.Request) {
	summaries, err := s.partials.ListAll(s.opts.DownloadDir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if summaries == nil {
		summaries = []resume.Summary{}
	}
	s.writeJSON(w, http.StatusOK, PartialsResponse{Dir: s.opts.DownloadDir, Partials: summaries})
}

func (s *Server) handleBestPartial(w http.ResponseWriter, _ *http.Request) {
	best, ok, err := s.partials.BestToResume(s.opts.DownloadDir)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, best)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.opts.Logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.opts.Logger.Warn("request failed", "status", status, "error", err)
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
