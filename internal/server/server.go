// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/docstore"
	"github.com/hyperjump/kotae/internal/jobs"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/store"
)

// JobStarter spawns background indexing work. jobs.Runner satisfies it.
type JobStarter interface {
	StartIndexJob(docID string) (*jobs.Job, error)
	StartDeleteJob(docID string, vectorIDs []string) (*jobs.Job, error)
	StartFileJob(docID, source string) (*jobs.Job, error)
}

// Server is the HTTP server for the Kotae API.
type Server struct {
	vectorEngine *rag.VectorEngine
	naiveEngine  *rag.NaiveEngine
	docs         docstore.Store
	vectors      *store.Store
	jobs         JobStarter
	config       *config.Config
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	vectorEngine *rag.VectorEngine,
	naiveEngine *rag.NaiveEngine,
	docs docstore.Store,
	vectors *store.Store,
	runner JobStarter,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		vectorEngine: vectorEngine,
		naiveEngine:  naiveEngine,
		docs:         docs,
		vectors:      vectors,
		jobs:         runner,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/ask", s.handleAsk)
	r.Post("/api/v1/documents", s.handleCreateDocument)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Post("/api/v1/documents/{id}/file", s.handleAttachFile)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops. The retrieval index
// build kicks off immediately so early queries have a chance of hitting the
// vector engine instead of the fallback.
func (s *Server) Start() error {
	s.vectorEngine.EnsureBuilt()

	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
