package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/moguedu/accredit/pkg/api/store"
	"github.com/moguedu/accredit/pkg/auth"
	"github.com/moguedu/accredit/pkg/registry"
)

const maxBodyBytes = 1 << 20

// errorResponse is the standard error payload.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Message: message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	return nil
}

// bodyMessage is the client-facing text for a body decode failure. Only the
// date format hint is surfaced; decoder detail stays on the server.
func bodyMessage(err error) string {
	if errors.Is(err, store.ErrInvalidDate) {
		return "Invalid date, use YYYY-MM-DD"
	}

	return "Invalid request body"
}

// inputMessage strips the sentinel prefix from a validation error so only
// the field detail reaches the client.
func inputMessage(err error, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return "Invalid input"
	}

	return msg
}

// writeRegistryError maps registry errors to a status code. Storage causes
// are already logged by the registry and never leave the server.
func (s *server) writeRegistryError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, registry.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, inputMessage(err, registry.ErrInvalidInput))
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// --- Public handlers ---

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleVerify looks up a single certificate by number, holder and provider.
func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var q registry.VerifyQuery
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, http.StatusBadRequest, bodyMessage(err))

		return
	}

	rec, err := s.registry.Verify(r.Context(), q)

	switch {
	case err == nil:
		s.metrics.observeVerification("found")
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"certificate": rec,
		})
	case errors.Is(err, registry.ErrNotFound):
		s.metrics.observeVerification("not_found")
		writeError(w, http.StatusNotFound, "Certificate not found in our records")
	case errors.Is(err, registry.ErrInvalidInput):
		s.metrics.observeVerification("invalid")
		writeError(w, http.StatusBadRequest, inputMessage(err, registry.ErrInvalidInput))
	default:
		s.metrics.observeVerification("error")
		writeError(w, http.StatusInternalServerError, "Error verifying certificate")
	}
}

// handlePublicSearch never returns more than the default page size.
func (s *server) handlePublicSearch(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, store.DefaultSearchLimit)
}

func (s *server) handleAdminSearch(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, store.MaxSearchLimit)
}

func (s *server) search(w http.ResponseWriter, r *http.Request, maxLimit int) {
	query := r.URL.Query()

	var limit int

	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")

			return
		}

		limit = min(n, maxLimit)
	}

	results, err := s.registry.Search(r.Context(), query.Get("q"), limit)
	if err != nil {
		s.writeRegistryError(w, err, "Error searching certificates")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": results,
	})
}

// handleCenters lists actively accredited centers.
func (s *server) handleCenters(w http.ResponseWriter, r *http.Request) {
	centers, err := s.registry.ListActiveCenters(r.Context())
	if err != nil {
		s.writeRegistryError(w, err, "Error fetching centers")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"centers": centers,
	})
}

func (s *server) handleStandards(w http.ResponseWriter, r *http.Request) {
	standards, err := s.registry.ListStandards(r.Context())
	if err != nil {
		s.writeRegistryError(w, err, "Error fetching standards")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"standards": standards,
	})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.Stats(r.Context())
	if err != nil {
		s.writeRegistryError(w, err, "Error fetching statistics")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   stats,
	})
}

// --- Auth handlers ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success      bool          `json:"success"`
	SessionToken string        `json:"sessionToken"`
	User         auth.Identity `json:"user"`
}

// handleLogin authenticates an admin and sets the session cookie.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, bodyMessage(err))

		return
	}

	res, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.metrics.observeLogin("invalid")
			writeError(w, http.StatusUnauthorized, "Invalid credentials")

			return
		}

		s.metrics.observeLogin("error")
		s.log.WithError(err).Error("Login failed")
		writeError(w, http.StatusInternalServerError, "Login failed")

		return
	}

	s.metrics.observeLogin("success")

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.cfg.Auth.CookieSecure || r.TLS != nil,
		MaxAge:   int(s.cfg.Auth.SessionTTL.Seconds()),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Success:      true,
		SessionToken: res.Token,
		User:         res.Admin,
	})
}

// handleLogout destroys the current session. It always succeeds.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.cfg.Auth.CookieName); err == nil {
		if err := s.auth.Logout(r.Context(), cookie.Value); err != nil {
			s.log.WithError(err).Warn("Failed to delete session")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.Auth.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// handleChangePassword changes the password of the session's admin. A
// missing cookie is rejected up front; the remaining checks run in the
// auth service in input, session, password order.
func (s *server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(s.cfg.Auth.CookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")

		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, bodyMessage(err))

		return
	}

	err = s.auth.ChangePassword(
		r.Context(), cookie.Value, req.CurrentPassword, req.NewPassword,
	)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Password changed successfully",
		})
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, inputMessage(err, auth.ErrInvalidInput))
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Invalid session")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
	default:
		s.log.WithError(err).Error("Failed to change password")
		writeError(w, http.StatusInternalServerError, "Failed to change password")
	}
}

// handleMe returns the currently authenticated admin.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	admin := adminFromContext(r.Context())
	if admin == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    admin,
	})
}
