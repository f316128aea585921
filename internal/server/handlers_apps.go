package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobmcallan/gatehouse/internal/services/access"
)

// handleAppsList handles GET /api/apps — the apps the current user may
// launch. Admins get the same filtered view here; the full catalog lives
// under /api/admin/apps.
func (s *Server) handleAppsList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	sc := s.requireSession(w, r)
	if sc == nil {
		return
	}

	apps, err := s.app.Directory.AuthorizedApps(r.Context(), sc.User)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list apps: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data":   map[string]interface{}{"apps": apps},
	})
}

// routeApps dispatches /api/apps/{id}/launch.
func (s *Server) routeApps(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/apps/")

	if strings.HasSuffix(rest, "/launch") {
		idStr := strings.TrimSuffix(rest, "/launch")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid app id")
			return
		}
		s.handleAppLaunch(w, r, id)
		return
	}

	WriteError(w, http.StatusNotFound, "Not found")
}

// handleAppLaunch handles POST /api/apps/{id}/launch — issue a single-use
// access token and return the gateway entry URL.
func (s *Server) handleAppLaunch(w http.ResponseWriter, r *http.Request, appID int64) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	sc := s.requireSession(w, r)
	if sc == nil {
		return
	}

	token, err := s.app.Access.Issue(r.Context(), sc.Session.Token, appID)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrNotFound):
			WriteError(w, http.StatusNotFound, "App not found")
		case errors.Is(err, access.ErrUnauthorized):
			WriteError(w, http.StatusForbidden, "App not available")
		default:
			WriteError(w, http.StatusInternalServerError, "Failed to issue token: "+err.Error())
		}
		return
	}

	launchURL := fmt.Sprintf("%s/app/%d/?auth_token=%s",
		strings.TrimSuffix(s.app.Config.Gateway.PublicURL, "/"), appID, token.Token)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data": map[string]interface{}{
			"token":      token.Token,
			"expires_at": token.ExpiresAt,
			"launch_url": launchURL,
		},
	})
}
