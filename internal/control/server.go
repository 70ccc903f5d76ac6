// Package control exposes the shell's loopback HTTP API: lifecycle
// commands, status, diagnostics and the workspace registry. The desktop
// UI and the CLI subcommands are both clients of this surface.
package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openwork/workshell/internal/config"
	"github.com/openwork/workshell/internal/doctor"
	"github.com/openwork/workshell/internal/persistence"
	"github.com/openwork/workshell/internal/supervisor"
	"github.com/openwork/workshell/internal/workspace"
)

type Config struct {
	Orchestrator *supervisor.Orchestrator
	Workspaces   *workspace.Store
	Journal      *persistence.Store // nil disables /api/events
	Cfg          *config.Config
	Version      string

	AuthToken string
	// AllowOrigins controls accepted Origin headers for browser clients.
	AllowOrigins []string

	Logger *slog.Logger
}

type Server struct {
	cfg Config
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg}
}

// Handler builds the route table wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/doctor", s.handleDoctor)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/workspaces", s.handleWorkspaces)
	mux.HandleFunc("/api/workspaces/", s.handleWorkspaceByID)
	mux.HandleFunc("/ws", s.handleWS)

	return NewCORSMiddleware(s.cfg.AllowOrigins)(mux)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.cfg.Logger.Debug("response write failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"healthy": true,
		"version": s.cfg.Version,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorize(r) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.writeJSON(w, http.StatusOK, s.cfg.Orchestrator.Status())
}

type startRequest struct {
	ProjectDir    string   `json:"projectDir"`
	Mode          string   `json:"mode,omitempty"`
	Workspaces    []string `json:"workspaces,omitempty"`
	PreferSidecar bool     `json:"preferSidecar,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorize(r) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	projectDir := strings.TrimSpace(req.ProjectDir)
	if projectDir == "" && s.cfg.Workspaces != nil {
		// Fall back to the active workspace.
		if active, ok, err := s.cfg.Workspaces.Active(); err == nil && ok {
			projectDir = active.Path
		}
	}
	if projectDir == "" {
		s.writeError(w, http.StatusBadRequest, "projectDir is required (no active workspace)")
		return
	}

	status, err := s.cfg.Orchestrator.Start(r.Context(), supervisor.StartOptions{
		ProjectDir:     projectDir,
		Mode:           supervisor.Mode(req.Mode),
		WorkspacePaths: req.Workspaces,
		PreferSidecar:  req.PreferSidecar,
	})
	if err != nil {
		s.cfg.Logger.Error("start failed", "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorize(r) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.cfg.Orchestrator.StopAll(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) handleDoctor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorize(r) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s.writeJSON(w, http.StatusOK, doctor.Run(r.Context(), s.cfg.Cfg, s.cfg.Version))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorize(r) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.cfg.Journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := s.cfg.Journal.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []persistence.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type addWorkspaceRequest struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Preset string `json:"preset,omitempty"`
}

func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	switch r.Method {
	case http.MethodGet:
		state, err := s.cfg.Workspaces.Load()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, state)
	case http.MethodPost:
		var req addWorkspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		ws, err := s.cfg.Workspaces.Add(req.Name, req.Path, req.Preset)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJSON(w, http.StatusCreated, ws)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type renameWorkspaceRequest struct {
	Name string `json:"name"`
}

// handleWorkspaceByID serves /api/workspaces/{id} and
// /api/workspaces/{id}/activate.
func (s *Server) handleWorkspaceByID(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rest := trimPathPrefix(r.URL.Path, "/api/workspaces/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "workspace id is required")
		return
	}

	switch {
	case action == "activate" && r.Method == http.MethodPost:
		if err := s.cfg.Workspaces.SetActive(id); err != nil {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"activeId": id})
	case action == "" && r.Method == http.MethodDelete:
		if err := s.cfg.Workspaces.Remove(id); err != nil {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
	case action == "" && r.Method == http.MethodPatch:
		var req renameWorkspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if err := s.cfg.Workspaces.Rename(id, req.Name); err != nil {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"renamed": true})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// Serve runs the API on addr until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.cfg.Logger.Info("control API listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
