package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/moguedu/accredit/pkg/registry"
)

type createdResponse struct {
	Success bool `json:"success"`
	ID      uint `json:"id"`
}

var okResponse = map[string]bool{"success": true}

// --- Certificates ---

func (s *server) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := s.registry.ListCertificates(r.Context())
	if err != nil {
		s.writeRegistryError(w, err, "Error fetching certificates")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"certificates": certs,
	})
}

func (s *server) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")

		return
	}

	cert, err := s.registry.GetCertificate(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, err, "Error fetching certificate")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"certificate": cert,
	})
}

func (s *server) handleCreateCertificate(w http.ResponseWriter, r *http.Request) {
	var in registry.CertificateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, bodyMessage(err))

		return
	}

	id, err := s.registry.CreateCertificate(r.Context(), in)
	if err != nil {
		s.writeRegistryError(w, err, "Error adding certificate")

		return
	}

	s.logAdminAction(r, "create", "certificate", id)
	writeJSON(w, http.StatusOK, createdResponse{Success: true, ID: id})
}

func (s *server) handleUpdateCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")

		return
	}

	var in registry.CertificateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, bodyMessage(err))

		return
	}

	if err := s.registry.UpdateCertificate(r.Context(), id, in); err != nil {
		s.writeRegistryError(w, err, "Error updating certificate")

		return
	}

	s.logAdminAction(r, "update", "certificate", id)
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *server) handleDeleteCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")

		return
	}

	if err := s.registry.DeleteCertificate(r.Context(), id); err != nil {
		s.writeRegistryError(w, err, "Error deleting certificate")

		return
	}

	s.logAdminAction(r, "delete", "certificate", id)
	writeJSON(w, http.StatusOK, okResponse)
}

// --- Centers ---

func (s *server) handleListCenters(w http.ResponseWriter, r *http.Request) {
	centers, err := s.registry.ListCenters(r.Context())
	if err != nil {
		s.writeRegistryError(w, err, "Error fetching centers")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"centers": centers,
	})
}

// handleListCenterOptions returns active centers as id/name pairs for
// selection lists.
func (s *server) handleListCenterOptions(w http.ResponseWriter, r *http.Request) {
	options, err := s.registry.ListCenterOptions(r.Context())
	if err != nil {
		s.writeRegistryError(w, err, "Error fetching centers")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"centers": options,
	})
}

func (s *server) handleCreateCenter(w http.ResponseWriter, r *http.Request) {
	var in registry.CenterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, bodyMessage(err))

		return
	}

	id, err := s.registry.CreateCenter(r.Context(), in)
	if err != nil {
		s.writeRegistryError(w, err, "Error adding center")

		return
	}

	s.logAdminAction(r, "create", "center", id)
	writeJSON(w, http.StatusOK, createdResponse{Success: true, ID: id})
}

func (s *server) handleUpdateCenter(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")

		return
	}

	var in registry.CenterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, bodyMessage(err))

		return
	}

	if err := s.registry.UpdateCenter(r.Context(), id, in); err != nil {
		s.writeRegistryError(w, err, "Error updating center")

		return
	}

	s.logAdminAction(r, "update", "center", id)
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *server) handleDeleteCenter(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")

		return
	}

	if err := s.registry.DeleteCenter(r.Context(), id); err != nil {
		s.writeRegistryError(w, err, "Error deleting center")

		return
	}

	s.logAdminAction(r, "delete", "center", id)
	writeJSON(w, http.StatusOK, okResponse)
}

// --- Programs ---

func (s *server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := s.registry.ListPrograms(r.Context())
	if err != nil {
		s.writeRegistryError(w, err, "Error fetching programs")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"programs": programs,
	})
}

func (s *server) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var in registry.ProgramInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, bodyMessage(err))

		return
	}

	id, err := s.registry.CreateProgram(r.Context(), in)
	if err != nil {
		s.writeRegistryError(w, err, "Error adding program")

		return
	}

	s.logAdminAction(r, "create", "program", id)
	writeJSON(w, http.StatusOK, createdResponse{Success: true, ID: id})
}

func (s *server) handleUpdateProgram(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")

		return
	}

	var in registry.ProgramInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, bodyMessage(err))

		return
	}

	if err := s.registry.UpdateProgram(r.Context(), id, in); err != nil {
		s.writeRegistryError(w, err, "Error updating program")

		return
	}

	s.logAdminAction(r, "update", "program", id)
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *server) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id")

		return
	}

	if err := s.registry.DeleteProgram(r.Context(), id); err != nil {
		s.writeRegistryError(w, err, "Error deleting program")

		return
	}

	s.logAdminAction(r, "delete", "program", id)
	writeJSON(w, http.StatusOK, okResponse)
}

// --- Helpers ---

func (s *server) logAdminAction(r *http.Request, action, kind string, id uint) {
	entry := s.log.WithField("action", action).
		WithField("kind", kind).
		WithField("id", id)

	if admin := adminFromContext(r.Context()); admin != nil {
		entry = entry.WithField("admin", admin.Username)
	}

	entry.Info("Admin change applied")
}

// parseIDParam extracts and parses the {id} URL parameter.
func parseIDParam(r *http.Request) (uint, error) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		return 0, fmt.Errorf("id parameter is required")
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id: %s", idStr)
	}

	return uint(id), nil
}
