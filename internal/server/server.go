package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/contentmill/contentmill/internal/engine"
	"github.com/contentmill/contentmill/internal/experiment"
	"github.com/contentmill/contentmill/internal/store"
)

type Server struct {
	store      *store.SQLiteStore
	controller *experiment.Controller
	engine     *engine.Engine
	port       int
	token      string
	tokenFile  string
	router     *http.ServeMux
	startTime  time.Time
}

func New(s *store.SQLiteStore, ctrl *experiment.Controller, eng *engine.Engine, port int, tokenFile string) *Server {
	srv := &Server{
		store:      s,
		controller: ctrl,
		engine:     eng,
		port:       port,
		token:      generateToken(),
		tokenFile:  tokenFile,
		router:     http.NewServeMux(),
		startTime:  time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /api/experiments", s.handleListExperiments)
	s.router.HandleFunc("GET /api/experiments/{id}", s.handleGetExperiment)
	s.router.HandleFunc("GET /api/experiments/{id}/results", s.handleResults)
	s.router.HandleFunc("GET /api/versions/compare", s.handleCompareVersions)
	s.router.HandleFunc("GET /api/versions/{id}", s.handleGetVersion)
	s.router.HandleFunc("GET /api/content/{id}/history", s.handleHistory)

	// Mutating endpoints (protected)
	s.protect("POST /api/experiments", s.handleCreateExperiment)
	s.protect("POST /api/experiments/{id}/start", s.handleStartExperiment)
	s.protect("POST /api/experiments/{id}/stop", s.handleStopExperiment)
	s.protect("POST /api/experiments/{id}/metrics", s.handleRecordMetric)
	s.protect("POST /api/experiments/{id}/generate", s.handleGenerate)
	s.protect("POST /api/content/{id}/versions", s.handleCreateVersion)
	s.protect("POST /api/content/{id}/archive", s.handleArchive)
	s.protect("POST /api/versions/{id}/restore", s.handleRestoreVersion)
	s.protect("POST /api/versions/{id}/branch", s.handleBranchVersion)
}

func (s *Server) protect(pattern string, handler http.HandlerFunc) {
	s.router.Handle(pattern, s.authMiddleware(handler))
}

func (s *Server) Start() error {
	// Write token to file for the CLI token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			fmt.Printf("Warning: failed to write token file: %v\n", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.port)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
