package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/moguedu/accredit/pkg/auth"
)

type contextKey string

const adminContextKey contextKey = "admin"

const adminLoginPath = "/admin/login"

// requestLogger logs incoming HTTP requests and records request metrics.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		duration := time.Since(start)

		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}

		s.metrics.observeRequest(r.Method, route, status, duration)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", status).
			WithField("remote", r.RemoteAddr).
			WithField("duration", duration).
			Debug("Request handled")
	})
}

// authenticate resolves the session cookie to an admin identity.
func (s *server) authenticate(r *http.Request) (*auth.Identity, error) {
	cookie, err := r.Cookie(s.cfg.Auth.CookieName)
	if err != nil {
		return nil, auth.ErrUnauthorized
	}

	return s.auth.Authenticate(r.Context(), cookie.Value)
}

// requireAdmin rejects API requests without a live session with 401 and
// injects the admin into the request context otherwise.
func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, err := s.authenticate(r)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				s.log.WithError(err).Error("Failed to authenticate session")
			}

			writeError(w, http.StatusUnauthorized, "Unauthorized")

			return
		}

		next.ServeHTTP(w, r.WithContext(withAdmin(r.Context(), admin)))
	})
}

// requireAdminPage is requireAdmin for browser pages: unauthenticated
// visitors are redirected to the login page.
func (s *server) requireAdminPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, err := s.authenticate(r)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				s.log.WithError(err).Error("Failed to authenticate session")
			}

			http.Redirect(w, r, adminLoginPath, http.StatusFound)

			return
		}

		next.ServeHTTP(w, r.WithContext(withAdmin(r.Context(), admin)))
	})
}

func withAdmin(ctx context.Context, admin *auth.Identity) context.Context {
	return context.WithValue(ctx, adminContextKey, admin)
}

// adminFromContext extracts the authenticated admin from the request context.
func adminFromContext(ctx context.Context) *auth.Identity {
	admin, _ := ctx.Value(adminContextKey).(*auth.Identity)

	return admin
}
