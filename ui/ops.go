package ui

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gofactor/ports"
)

// OpsServer is the diagnostics sidecar: liveness, recent run summaries and
// the pprof handlers, served on a port that stays off the public surface.
type OpsServer struct {
	router *chi.Mux
	store  ports.ResultStore
}

// NewOpsServer creates the ops server around the shared result store.
func NewOpsServer(store ports.ResultStore) *OpsServer {
	s := &OpsServer{
		router: chi.NewRouter(),
		store:  store,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures HTTP middleware
func (s *OpsServer) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures the diagnostics routes
func (s *OpsServer) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/runs", s.handleRuns)
	s.router.Mount("/debug", middleware.Profiler())
}

// Start starts the ops server.
func (s *OpsServer) Start(addr string) error {
	log.Printf("[Ops] Diagnostics on http://%s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Router exposes the underlying handler for tests.
func (s *OpsServer) Router() http.Handler {
	return s.router
}

func (s *OpsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleRuns lists the most recent runs so an operator can eyeball progress
// without touching the main API.
func (s *OpsServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List(r.Context(), 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summaries)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[Ops] Failed to encode response: %v", err)
	}
}
