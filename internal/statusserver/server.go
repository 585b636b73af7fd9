// Package statusserver exposes the passive, read-only progress surface
// spec §9 calls for ("a passive progress table polled by any UI"): JSON
// endpoints over RefreshSession and DataStatus rows plus a disk-health
// check, built the way the teacher's internal/server wires chi and
// go-chi/cors, adapted from its SystemHandlers.HandleDiskUsage
// (gopsutil-based host stats) down to a single status surface instead of
// the teacher's full portfolio-management API.
package statusserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/equityrefresh/internal/freshness"
	"github.com/aristath/equityrefresh/internal/store"
)

// Server serves the engine's status endpoints over HTTP.
type Server struct {
	router  *chi.Mux
	store   *store.Store
	dataDir string
	log     zerolog.Logger
}

// New builds a Server. addr is carried by the caller (cmd/equityrefresh),
// not Server itself, so the same Server can be mounted under test with
// httptest.
func New(s *store.Store, dataDir string, log zerolog.Logger) *Server {
	srv := &Server{store: s, dataDir: dataDir, log: log.With().Str("component", "statusserver").Logger()}
	srv.router = chi.NewRouter()
	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

// Handler returns the server's http.Handler for use with http.ListenAndServe.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(10 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/sessions/{sessionID}", s.handleSession)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	usage, err := disk.Usage(s.dataDir)
	resp := map[string]any{"status": "ok"}
	if err != nil {
		s.log.Warn().Err(err).Msg("disk usage check failed")
	} else {
		resp["disk_free"] = humanize.Bytes(usage.Free)
		resp["disk_used_percent"] = usage.UsedPercent
	}
	writeJSON(w, resp)
}

// statusResponse is the read model polled by any UI (spec §9): per-source
// freshness plus readiness flags, no write path.
type statusResponse struct {
	Sources               []freshness.SourceReport `json:"sources"`
	ValueScreeningReady   bool                      `json:"value_screening_ready"`
	PERatioScreeningReady bool                      `json:"pe_ratio_screening_ready"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := freshness.Check(r.Context(), s.store, time.Now().UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build freshness report")
		http.Error(w, "failed to build status", http.StatusInternalServerError)
		return
	}
	resp := statusResponse{
		ValueScreeningReady:   report.ValueScreeningReady,
		PERatioScreeningReady: report.PERatioScreeningReady,
	}
	for _, sr := range report.Sources {
		resp.Sources = append(resp.Sources, sr)
	}
	writeJSON(w, resp)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.store.GetRefreshSession(r.Context(), sessionID)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session")
		http.Error(w, "failed to load session", http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, sess)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
