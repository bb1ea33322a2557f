// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/rssdash/internal/database"
	"github.com/bryan-buckman/rssdash/internal/model"
	"github.com/bryan-buckman/rssdash/internal/rss"
)

// refreshTimeout bounds a sync started through the API.
const refreshTimeout = 5 * time.Minute

// SourceList is where the subscription list lives.
type SourceList interface {
	Load() ([]model.FeedSource, error)
	Save(sources []model.FeedSource) error
}

// Server is the main HTTP server.
type Server struct {
	store   database.Store
	syncer  *rss.Syncer
	sources SourceList
	poller  *rss.Poller
	router  chi.Router
	http    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithPoller runs p for as long as the server is started.
func WithPoller(p *rss.Poller) Option {
	return func(s *Server) {
		s.poller = p
	}
}

// New creates a new server.
func New(store database.Store, syncer *rss.Syncer, sources SourceList, opts ...Option) *Server {
	s := &Server{
		store:   store,
		syncer:  syncer,
		sources: sources,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.StandardLogger(), NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Route("/articles", func(r chi.Router) {
			r.Get("/", s.handleListArticles)
			r.Get("/random", s.handleRandomArticle)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetArticle)
				r.Get("/next", s.handleNextArticle)
				r.Get("/prev", s.handlePrevArticle)
				r.Get("/blocks", s.handleArticleBlocks)
				r.Post("/read", s.handleSetRead)
				r.Post("/favorite", s.handleToggleFavorite)
			})
		})
		r.Post("/mark-read", s.handleMarkRead)
		r.Get("/favorites", s.handleFavorites)
		r.Get("/feeds", s.handleFeeds)
		r.Get("/stats/folders", s.handleFolderStats)
		r.Get("/sidebar", s.handleSidebar)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/cleanup", s.handleCleanup)
		r.Post("/import-opml", s.handleImportOPML)
		r.Get("/export-opml", s.handleExportOPML)
	})

	s.router = r
}

// Start starts the poller and serves HTTP until Shutdown is called.
func (s *Server) Start(addr string) error {
	if s.poller != nil {
		s.poller.Start()
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Server starting on %s", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the poller and drains open connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.poller != nil {
		s.poller.Stop()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
