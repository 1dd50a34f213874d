package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/moguedu/accredit/pkg/config"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Get("/healthz", s.handleHealth)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Public registry endpoints.
		r.Group(func(r chi.Router) {
			s.limit(r, s.cfg.Server.RateLimit.Public)

			r.Post("/verify", s.handleVerify)
			r.Get("/certificates/search", s.handlePublicSearch)
			r.Get("/centers", s.handleCenters)
			r.Get("/standards", s.handleStandards)
			r.Get("/stats", s.handleStats)
		})

		r.Route("/admin", func(r chi.Router) {
			// Session endpoints.
			r.Group(func(r chi.Router) {
				s.limit(r, s.cfg.Server.RateLimit.Auth)

				r.Post("/login", s.handleLogin)
				r.Post("/logout", s.handleLogout)
				r.Post("/change-password", s.handleChangePassword)
			})

			// Back office endpoints.
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				s.limit(r, s.cfg.Server.RateLimit.Authenticated)

				r.Get("/me", s.handleMe)

				r.Get("/certificates", s.handleListCertificates)
				r.Post("/certificates", s.handleCreateCertificate)
				r.Get("/certificates/search", s.handleAdminSearch)
				r.Get("/certificates/{id}", s.handleGetCertificate)
				r.Put("/certificates/{id}", s.handleUpdateCertificate)
				r.Delete("/certificates/{id}", s.handleDeleteCertificate)

				r.Get("/centers", s.handleListCenters)
				r.Post("/centers", s.handleCreateCenter)
				r.Get("/centers/list", s.handleListCenterOptions)
				r.Put("/centers/{id}", s.handleUpdateCenter)
				r.Delete("/centers/{id}", s.handleDeleteCenter)

				r.Get("/programs", s.handleListPrograms)
				r.Post("/programs", s.handleCreateProgram)
				r.Put("/programs/{id}", s.handleUpdateProgram)
				r.Delete("/programs/{id}", s.handleDeleteProgram)
			})
		})
	})

	if s.cfg.Server.StaticDir != "" {
		pages := newStaticHandler(s.cfg.Server.StaticDir)

		r.Get("/admin/login", pages.ServeHTTP)
		r.With(s.requireAdminPage).Get("/admin", pages.ServeHTTP)
		r.With(s.requireAdminPage).Get("/admin/*", pages.ServeHTTP)
		r.Get("/*", pages.ServeHTTP)
	}

	return r
}

// limit applies a per-IP rate limit tier to the router when enabled.
func (s *server) limit(r chi.Router, tier config.RateLimitTier) {
	if !s.cfg.Server.RateLimit.Enabled {
		return
	}

	r.Use(s.rateLimitMiddleware(tier))
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
