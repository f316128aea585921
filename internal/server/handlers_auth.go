package server

import (
	"net/http"

	"github.com/bobmcallan/gatehouse/internal/common"
)

// loginRequest is the POST /api/auth/login body.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data": map[string]interface{}{
			"version": common.GetVersion(),
		},
	})
}

// handleAuthLogin handles POST /api/auth/login — authenticate and open a
// portal session. Unknown usernames and wrong passwords produce the same
// response.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if !s.loginLimiter.Allow(r) {
		WriteError(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
		return
	}

	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	session, user, err := s.app.Access.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data": map[string]interface{}{
			"token":      session.Token,
			"expires_at": session.ExpiresAt,
			"user": map[string]interface{}{
				"username":             user.Username,
				"display_name":         user.DisplayName,
				"role":                 user.Role,
				"groups":               user.Groups,
				"must_change_password": user.MustChange,
			},
		},
	})
}

// handleAuthLogout handles POST /api/auth/logout — revoke the current
// session. Access tokens issued against it die on their next validation.
func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	sc := s.requireSession(w, r)
	if sc == nil {
		return
	}

	if err := s.app.Access.Logout(r.Context(), sc.Session.Token); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to log out: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// handleAuthSession handles GET /api/auth/session — describe the current
// session.
func (s *Server) handleAuthSession(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	sc := s.requireSession(w, r)
	if sc == nil {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data": map[string]interface{}{
			"session_id": sc.Session.ID,
			"expires_at": sc.Session.ExpiresAt,
			"user": map[string]interface{}{
				"username":             sc.User.Username,
				"display_name":         sc.User.DisplayName,
				"role":                 sc.User.Role,
				"groups":               sc.User.Groups,
				"must_change_password": sc.User.MustChange,
			},
		},
	})
}

// requireSession returns the authenticated session context or writes 401.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) *common.SessionContext {
	sc := common.SessionFromContext(r.Context())
	if sc == nil || sc.Session == nil || sc.User == nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return nil
	}
	return sc
}

// requireAdmin checks that the request carries an admin session.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	sc := common.SessionFromContext(r.Context())
	if sc == nil || sc.User == nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return false
	}
	if !sc.User.IsAdmin() {
		WriteError(w, http.StatusForbidden, "Admin access required")
		return false
	}
	return true
}
