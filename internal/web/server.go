// Package web exposes the import service as a JSON API with a
// Server-Sent Events progress stream.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/pharmaimport/internal/config"
	"github.com/JonMunkholm/pharmaimport/internal/core"
	mw "github.com/JonMunkholm/pharmaimport/internal/web/middleware"
)

// Server is the HTTP server of the import service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer wires routes and middleware around service.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(mw.RateLimit(s.cfg.Rate.RequestsPerMinute, rateLimited))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		// Progress streams are long-lived and stay outside the request timeout.
		r.Get("/imports/{id}/progress", s.handleProgress)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/kinds", s.handleListKinds)
			r.Get("/template/{kind}", s.handleTemplate)
			r.Get("/status", s.handleStatus)
			r.Get("/history/{kind}", s.handleHistory)

			r.Post("/imports", s.handleCreateImport)
			r.Get("/imports/{id}", s.handleGetImport)
			r.Delete("/imports/{id}", s.handleCloseImport)
			r.Put("/imports/{id}/params", s.handleSetParams)
			r.Get("/imports/{id}/preview", s.handlePreview)
			r.Post("/imports/{id}/restart", s.handleRestart)

			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					r.Use(mw.RateLimit(s.cfg.Rate.UploadLimit, rateLimited))
				}
				r.Post("/imports/{id}/file", s.handleFile)
				r.Post("/imports/{id}/upload", s.handleStartUpload)
			})
		})
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the handler tree, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
