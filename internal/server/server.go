package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"engram/internal/engine"
	"engram/internal/store"
)

// Server is the engram HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server with the given database, engine and version.
func New(db *store.DB, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/messages", s.handleIngest)
		r.Post("/retrieve", s.handleRetrieve)

		r.Get("/memories", s.handleListMemories)
		r.Delete("/memories/{memoryID}", s.handleDeleteMemory)
		r.Post("/memories/undo", s.handleUndoDelete)
		r.Post("/summarize", s.handleSummarizeNow)

		r.Get("/profile", s.handleProfile)
		r.Delete("/profile", s.handleClearProfile)

		r.Post("/maintenance/run", s.handleMaintenance)
		r.Get("/export", s.handleExport)
		r.Delete("/users/{userID}", s.handleForgetUser)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	indexed := -1
	if s.engine != nil && s.engine.Index != nil {
		indexed = s.engine.Index.Count()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"indexed": indexed,
	})
}
