package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/n0madic/go-appforge/internal/config"
	"github.com/n0madic/go-appforge/internal/github"
	"github.com/n0madic/go-appforge/internal/pipeline"
	"github.com/n0madic/go-appforge/internal/store"
)

// maxBodyBytes limits the size of incoming request bodies.
const maxBodyBytes = 10 * 1024 * 1024 // 10 MB

// BundleStore reads stored generations.
type BundleStore interface {
	Get(ctx context.Context, id string) (*store.Record, error)
	List(ctx context.Context, limit int) ([]store.Record, error)
}

// Publisher creates repositories and commits files to them.
type Publisher interface {
	CreateRepository(ctx context.Context, name string, private bool) (*github.Repository, error)
	PushFiles(ctx context.Context, fullName string, files []github.File, message string) (string, error)
}

// Server is the main HTTP server.
type Server struct {
	Config   *config.ServerConfig
	Pipeline *pipeline.Pipeline
	Bundles  BundleStore
	// Publisher is nil when no GitHub token is configured.
	Publisher Publisher

	handler    http.Handler
	httpServer *http.Server
}

// New creates a new server with all routes registered.
func New(cfg *config.ServerConfig, p *pipeline.Pipeline, bundles BundleStore, pub Publisher) *Server {
	s := &Server{
		Config:    cfg,
		Pipeline:  p,
		Bundles:   bundles,
		Publisher: pub,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /v1/generate", s.handleGenerate)
	mux.HandleFunc("POST /v1/normalize", s.handleNormalize)
	mux.HandleFunc("GET /v1/bundles", s.handleListBundles)
	mux.HandleFunc("GET /v1/bundles/{id}", s.handleGetBundle)
	mux.HandleFunc("GET /v1/bundles/{id}/view", s.handleViewBundle)
	mux.HandleFunc("POST /v1/repositories", s.handleCreateRepository)

	s.handler = corsMiddleware(requestIDMiddleware(authMiddleware(cfg, verboseMiddleware(cfg, debugMiddleware(cfg, mux)))))

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		// A generation waits for the full provider response.
		WriteTimeout: cfg.ProviderTimeout() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}
