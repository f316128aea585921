package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
)

// appRequest is the create/update body for admin app management.
type appRequest struct {
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Port        int       `json:"port"`
	AccessMode  *string   `json:"access_mode"`
	Groups      *[]string `json:"groups"`
	Active      *bool     `json:"active"`
}

// handleAdminApps handles GET (catalog) and POST (register) /api/admin/apps.
func (s *Server) handleAdminApps(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		entries, err := s.app.Directory.Catalog(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to build catalog: "+err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"data":   map[string]interface{}{"apps": entries},
		})

	case http.MethodPost:
		var req appRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		if req.Name == "" {
			WriteError(w, http.StatusBadRequest, "App name is required")
			return
		}
		if req.Port < 1 || req.Port > 65535 {
			WriteError(w, http.StatusBadRequest, "Port must be between 1 and 65535")
			return
		}

		mode := models.AccessNone
		if req.AccessMode != nil {
			if !models.ValidAccessMode(*req.AccessMode) {
				WriteError(w, http.StatusBadRequest, "Access mode must be 'public', 'groups', or 'none'")
				return
			}
			mode = *req.AccessMode
		}

		var groups []string
		if req.Groups != nil {
			groups = *req.Groups
			if err := s.groupsExist(r, groups); err != nil {
				WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		if mode == models.AccessGroups && len(groups) == 0 {
			WriteError(w, http.StatusBadRequest, "Group-restricted apps need at least one group")
			return
		}

		app := &models.App{
			Name:       req.Name,
			Port:       req.Port,
			AccessMode: mode,
			Groups:     groups,
			Active:     true,
		}
		if req.Description != nil {
			app.Description = *req.Description
		}
		if req.Category != nil {
			app.Category = *req.Category
		}
		if req.Active != nil {
			app.Active = *req.Active
		}

		if err := s.app.Storage.AppStore().CreateApp(r.Context(), app); err != nil {
			if errors.Is(err, interfaces.ErrPortInUse) {
				WriteError(w, http.StatusConflict, "Port already registered")
				return
			}
			WriteError(w, http.StatusInternalServerError, "Failed to register app: "+err.Error())
			return
		}
		WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"status": "ok",
			"data":   map[string]interface{}{"app": app},
		})
	}
}

// routeAdminApps dispatches /api/admin/apps/{id}.
func (s *Server) routeAdminApps(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/admin/apps/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid app id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		app, err := s.app.Storage.AppStore().GetApp(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusNotFound, "App not found")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"data":   map[string]interface{}{"app": app},
		})

	case http.MethodPut:
		s.handleAdminAppUpdate(w, r, id)

	case http.MethodDelete:
		if _, err := s.app.Storage.AppStore().GetApp(r.Context(), id); err != nil {
			WriteError(w, http.StatusNotFound, "App not found")
			return
		}
		if err := s.app.Storage.AppStore().DeleteApp(r.Context(), id); err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to delete app: "+err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleAdminAppUpdate applies a partial update to an app registration.
func (s *Server) handleAdminAppUpdate(w http.ResponseWriter, r *http.Request, id int64) {
	app, err := s.app.Storage.AppStore().GetApp(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, "App not found")
		return
	}

	var req appRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if req.Name != "" {
		app.Name = req.Name
	}
	if req.Description != nil {
		app.Description = *req.Description
	}
	if req.Category != nil {
		app.Category = *req.Category
	}
	if req.Port != 0 {
		if req.Port < 1 || req.Port > 65535 {
			WriteError(w, http.StatusBadRequest, "Port must be between 1 and 65535")
			return
		}
		app.Port = req.Port
	}
	if req.AccessMode != nil {
		if !models.ValidAccessMode(*req.AccessMode) {
			WriteError(w, http.StatusBadRequest, "Access mode must be 'public', 'groups', or 'none'")
			return
		}
		app.AccessMode = *req.AccessMode
	}
	if req.Groups != nil {
		if err := s.groupsExist(r, *req.Groups); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		app.Groups = *req.Groups
	}
	if req.Active != nil {
		app.Active = *req.Active
	}
	if app.AccessMode == models.AccessGroups && len(app.Groups) == 0 {
		WriteError(w, http.StatusBadRequest, "Group-restricted apps need at least one group")
		return
	}

	if err := s.app.Storage.AppStore().SaveApp(r.Context(), app); err != nil {
		if errors.Is(err, interfaces.ErrPortInUse) {
			WriteError(w, http.StatusConflict, "Port already registered")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to update app: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data":   map[string]interface{}{"app": app},
	})
}
