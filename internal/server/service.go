// Package server exposes the discovery pipeline's review and data surface
// over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/domainforge/internal/capture"
	"github.com/thebtf/domainforge/internal/cluster"
	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/deploy"
	"github.com/thebtf/domainforge/internal/record"
	"github.com/thebtf/domainforge/internal/registry"
	"github.com/thebtf/domainforge/internal/reprocess"
	"github.com/thebtf/domainforge/internal/synth"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Listen      string
	Captures    *db.CaptureStore
	Proposals   *db.ProposalStore
	Embeddings  *db.EmbeddingStore
	Registry    *registry.Registry
	Capture     *capture.Service
	Clusters    *cluster.Engine
	Synthesizer *synth.Synthesizer
	Deployer    *deploy.Deployer
	Records     *record.Service
	Reprocessor *reprocess.Reprocessor
}

// Service is the HTTP front of the pipeline. All state lives in the injected
// components; the service only routes, decodes, and maps errors to statuses.
type Service struct {
	deps      Deps
	router    chi.Router
	server    *http.Server
	startTime time.Time
}

// NewService creates the HTTP service and wires its routes.
func NewService(deps Deps) *Service {
	svc := &Service{
		deps:      deps,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}
	svc.setupRoutes()
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)

		r.Route("/turns", func(r chi.Router) {
			r.Post("/", s.handleCaptureTurn)
			r.Get("/", s.handleListTurns)
			r.Delete("/{id}", s.handleDeleteTurn)
			r.Post("/embed-all", s.handleEmbedAll)
		})

		r.Post("/clusters/detect", s.handleDetectClusters)

		r.Route("/proposals", func(r chi.Router) {
			r.Post("/", s.handleCreateProposal)
			r.Get("/", s.handleListProposals)
			r.Get("/{id}", s.handleGetProposal)
			r.Get("/{id}/turns", s.handlePreviewTurns)
			r.Post("/{id}/approve", s.handleApproveProposal)
			r.Post("/{id}/reject", s.handleRejectProposal)
			r.Post("/{id}/deploy", s.handleDeployProposal)
			r.Post("/{id}/reprocess", s.handleReprocess)
		})

		r.Route("/domains", func(r chi.Router) {
			r.Get("/", s.handleListDomains)
			r.Route("/{name}/records", func(r chi.Router) {
				r.Post("/", s.handleCreateRecord)
				r.Get("/", s.handleListRecords)
				r.Get("/{id}", s.handleGetRecord)
				r.Patch("/{id}", s.handleUpdateRecord)
				r.Delete("/{id}", s.handleDeleteRecord)
			})
		})
	})
}

// Router returns the configured handler, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              s.deps.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("listen", s.deps.Listen).Msg("HTTP server starting")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and waits for background embeds.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.deps.Capture.Flush()
	return err
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("Request")
	})
}
