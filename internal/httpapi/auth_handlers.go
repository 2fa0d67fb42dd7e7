package httpapi

import (
	"net/http"
	"strings"
	"time"

	"staffgate.org/internal/audit"
	"staffgate.org/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type sessionResponse struct {
	Access           string      `json:"access"`
	Refresh          string      `json:"refresh"`
	AccessExpiresAt  time.Time   `json:"access_expires_at"`
	RefreshExpiresAt time.Time   `json:"refresh_expires_at"`
	User             userPayload `json:"user"`
}

func sessionPayload(sess auth.Session, user *auth.User) sessionResponse {
	return sessionResponse{
		Access:           sess.AccessToken,
		Refresh:          sess.RefreshToken,
		AccessExpiresAt:  sess.AccessExpiresAt,
		RefreshExpiresAt: sess.RefreshExpiresAt,
		User: userPayload{
			ID:       user.ID,
			Username: user.Username,
			Role:     string(user.Role),
		},
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	// Per-credential throttle on top of the per-IP limit.
	if !a.loginThrottle.Allow(strings.ToLower(username)) {
		writeError(w, r, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	sess, user, err := a.sessions.Authenticate(r.Context(), username, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.denied", map[string]any{"username": username})
		unauthorized(w, r, "invalid credentials")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     string(user.Role),
	})
	writeJSON(w, http.StatusOK, sessionPayload(sess, user))
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Refresh) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh token is required")
		return
	}

	sess, user, err := a.sessions.Refresh(r.Context(), req.Refresh)
	if err != nil {
		unauthorized(w, r, "invalid or expired refresh token")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, sessionPayload(sess, user))
}

type logoutRequest struct {
	Refresh string `json:"refresh"`
}

// handleLogout revokes the caller's session. Idempotent: logging out a
// dead session is still a 204.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req logoutRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	access, _ := auth.TokenFromContext(r.Context())
	if err := a.sessions.Invalidate(r.Context(), access, req.Refresh); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}
