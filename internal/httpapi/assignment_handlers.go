package httpapi

import (
	"net/http"
	"strings"

	"staffgate.org/internal/auth"
	"staffgate.org/internal/workflow"
)

func (a *API) handleStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	staff, err := a.flows.ListStaff(r.Context(), caller)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": staff})
}

func (a *API) handleProjects(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	projects, err := a.flows.ListProjects(r.Context(), caller)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": projects})
}

func (a *API) handleAssignments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	views, err := a.flows.ListAssignments(r.Context(), caller)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

func (a *API) handleMyAssignments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	caller, _ := auth.IdentityFromContext(r.Context())
	views, err := a.flows.MyAssignments(r.Context(), caller)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

type assignProjectRequest struct {
	StaffID         string `json:"staff_id"`
	ProjectID       string `json:"project_id"`
	ProjectPassword string `json:"project_password"`
	Notes           string `json:"notes"`
}

func (a *API) handleAssignProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req assignProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.StaffID) == "" || strings.TrimSpace(req.ProjectID) == "" {
		writeError(w, r, http.StatusBadRequest, "staff_id and project_id are required")
		return
	}
	if req.ProjectPassword == "" {
		writeError(w, r, http.StatusBadRequest, "project_password is required")
		return
	}
	if len(req.Notes) > 2000 {
		writeError(w, r, http.StatusBadRequest, "notes too long")
		return
	}

	caller, _ := auth.IdentityFromContext(r.Context())
	view, err := a.flows.AssignProject(r.Context(), caller, workflow.AssignProjectInput{
		StaffID:         req.StaffID,
		ProjectID:       req.ProjectID,
		ProjectPassword: req.ProjectPassword,
		Notes:           req.Notes,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

type unlockProjectRequest struct {
	AssignmentID    string `json:"assignment_id"`
	ProjectPassword string `json:"project_password"`
}

func (a *API) handleUnlockProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req unlockProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.AssignmentID) == "" {
		writeError(w, r, http.StatusBadRequest, "assignment_id is required")
		return
	}
	if req.ProjectPassword == "" {
		writeError(w, r, http.StatusBadRequest, "project_password is required")
		return
	}

	caller, _ := auth.IdentityFromContext(r.Context())

	// Slow down per-assignment password guessing regardless of source IP.
	if !a.unlockThrottle.Allow(req.AssignmentID + "/" + caller.UserID) {
		writeError(w, r, http.StatusTooManyRequests, "too many unlock attempts")
		return
	}

	view, err := a.flows.UnlockProject(r.Context(), caller, req.AssignmentID, req.ProjectPassword)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
