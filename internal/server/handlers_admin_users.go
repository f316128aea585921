package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
	"github.com/bobmcallan/gatehouse/internal/services/access"
)

// validateUsername rejects empty, oversized, or control-character names.
func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) > 128 {
		return fmt.Errorf("username exceeds 128 characters")
	}
	for _, c := range username {
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("username contains control characters")
		}
	}
	return nil
}

// groupsExist verifies every named group is registered.
func (s *Server) groupsExist(r *http.Request, names []string) error {
	for _, name := range names {
		if _, err := s.app.Storage.GroupStore().GetGroup(r.Context(), name); err != nil {
			return fmt.Errorf("unknown group '%s'", name)
		}
	}
	return nil
}

// userRequest is the create/update body for admin user management.
type userRequest struct {
	Username    string    `json:"username"`
	DisplayName *string   `json:"display_name"`
	Email       *string   `json:"email"`
	Password    *string   `json:"password"`
	Role        *string   `json:"role"`
	Groups      *[]string `json:"groups"`
	Disabled    *bool     `json:"disabled"`
}

// handleAdminUsers handles GET (list) and POST (create) /api/admin/users.
func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		users, err := s.app.Storage.UserStore().ListUsers(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to list users: "+err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"data":   map[string]interface{}{"users": users},
		})

	case http.MethodPost:
		var req userRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		if err := validateUsername(req.Username); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Password == nil || *req.Password == "" {
			WriteError(w, http.StatusBadRequest, "Password is required")
			return
		}
		if _, err := s.app.Storage.UserStore().GetUser(r.Context(), req.Username); err == nil {
			WriteError(w, http.StatusConflict, "User already exists")
			return
		}

		role := models.RoleUser
		if req.Role != nil {
			if *req.Role != models.RoleUser && *req.Role != models.RoleAdmin {
				WriteError(w, http.StatusBadRequest, "Role must be 'user' or 'admin'")
				return
			}
			role = *req.Role
		}

		var groups []string
		if req.Groups != nil {
			groups = *req.Groups
			if err := s.groupsExist(r, groups); err != nil {
				WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		hash, err := access.HashPassword(*req.Password)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}

		user := &models.User{
			Username:     req.Username,
			PasswordHash: hash,
			Role:         role,
			Groups:       groups,
		}
		if req.DisplayName != nil {
			user.DisplayName = *req.DisplayName
		}
		if req.Email != nil {
			user.Email = *req.Email
		}

		if err := s.app.Storage.UserStore().SaveUser(r.Context(), user); err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to create user: "+err.Error())
			return
		}
		WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"status": "ok",
			"data":   map[string]interface{}{"user": user},
		})
	}
}

// routeAdminUsers dispatches /api/admin/users/{username} and
// /api/admin/users/{username}/sessions.
func (s *Server) routeAdminUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/users/")

	if strings.HasSuffix(rest, "/sessions") {
		username := strings.TrimSuffix(rest, "/sessions")
		s.handleAdminUserSessions(w, r, username)
		return
	}

	username := rest
	if username == "" || strings.Contains(username, "/") {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := s.app.Storage.UserStore().GetUser(r.Context(), username)
		if err != nil {
			WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"data":   map[string]interface{}{"user": user},
		})

	case http.MethodPut:
		s.handleAdminUserUpdate(w, r, username)

	case http.MethodDelete:
		if _, err := s.app.Storage.UserStore().GetUser(r.Context(), username); err != nil {
			WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		// Kill live sessions first so the account can't be used mid-delete.
		if _, err := s.app.Access.RevokeUserSessions(r.Context(), username); err != nil {
			s.logger.Warn().Err(err).Str("username", username).Msg("Failed to revoke sessions on delete")
		}
		if err := s.app.Storage.UserStore().DeleteUser(r.Context(), username); err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to delete user: "+err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// handleAdminUserUpdate applies a partial update. Group membership is
// set-replacement: the submitted list becomes the whole membership.
func (s *Server) handleAdminUserUpdate(w http.ResponseWriter, r *http.Request, username string) {
	user, err := s.app.Storage.UserStore().GetUser(r.Context(), username)
	if err != nil {
		WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	var req userRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Role != nil {
		if *req.Role != models.RoleUser && *req.Role != models.RoleAdmin {
			WriteError(w, http.StatusBadRequest, "Role must be 'user' or 'admin'")
			return
		}
		user.Role = *req.Role
	}
	if req.Groups != nil {
		if err := s.groupsExist(r, *req.Groups); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		user.Groups = *req.Groups
	}
	if req.Password != nil && *req.Password != "" {
		hash, err := access.HashPassword(*req.Password)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}
		user.PasswordHash = hash
		user.MustChange = false
	}

	revoke := false
	if req.Disabled != nil {
		if !user.Disabled && *req.Disabled {
			revoke = true
		}
		user.Disabled = *req.Disabled
	}

	if err := s.app.Storage.UserStore().SaveUser(r.Context(), user); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to update user: "+err.Error())
		return
	}

	if revoke {
		if _, err := s.app.Access.RevokeUserSessions(r.Context(), username); err != nil {
			s.logger.Warn().Err(err).Str("username", username).Msg("Failed to revoke sessions on disable")
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data":   map[string]interface{}{"user": user},
	})
}

// handleAdminUserSessions handles DELETE /api/admin/users/{username}/sessions
// — revoke every active session for the user. Outstanding access tokens
// fail on their next validation.
func (s *Server) handleAdminUserSessions(w http.ResponseWriter, r *http.Request, username string) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	if _, err := s.app.Storage.UserStore().GetUser(r.Context(), username); err != nil {
		WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	count, err := s.app.Access.RevokeUserSessions(r.Context(), username)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to revoke sessions: "+err.Error())
		return
	}

	sc := common.SessionFromContext(r.Context())
	s.logger.Info().
		Str("username", username).
		Str("revoked_by", sc.User.Username).
		Int("count", count).
		Msg("User sessions revoked")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data":   map[string]interface{}{"revoked": count},
	})
}

// groupRequest is the create body for group management.
type groupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleAdminGroups handles GET (list) and POST (create) /api/admin/groups.
func (s *Server) handleAdminGroups(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		groups, err := s.app.Storage.GroupStore().ListGroups(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to list groups: "+err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"data":   map[string]interface{}{"groups": groups},
		})

	case http.MethodPost:
		var req groupRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		if req.Name == "" {
			WriteError(w, http.StatusBadRequest, "Group name is required")
			return
		}
		if _, err := s.app.Storage.GroupStore().GetGroup(r.Context(), req.Name); err == nil {
			WriteError(w, http.StatusConflict, "Group already exists")
			return
		}
		group := &models.Group{Name: req.Name, Description: req.Description, CreatedAt: time.Now()}
		if err := s.app.Storage.GroupStore().SaveGroup(r.Context(), group); err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to create group: "+err.Error())
			return
		}
		WriteJSON(w, http.StatusCreated, map[string]interface{}{
			"status": "ok",
			"data":   map[string]interface{}{"group": group},
		})
	}
}

// routeAdminGroups dispatches /api/admin/groups/{name}.
func (s *Server) routeAdminGroups(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/admin/groups/")
	if name == "" || strings.Contains(name, "/") {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		group, err := s.app.Storage.GroupStore().GetGroup(r.Context(), name)
		if err != nil {
			WriteError(w, http.StatusNotFound, "Group not found")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"data":   map[string]interface{}{"group": group},
		})

	case http.MethodDelete:
		if _, err := s.app.Storage.GroupStore().GetGroup(r.Context(), name); err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "Group not found")
				return
			}
			WriteError(w, http.StatusInternalServerError, "Failed to load group: "+err.Error())
			return
		}
		if err := s.deleteGroupEverywhere(r, name); err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to delete group: "+err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodDelete)
	}
}

// deleteGroupEverywhere removes the group and strips it from every user and
// app that references it.
func (s *Server) deleteGroupEverywhere(r *http.Request, name string) error {
	ctx := r.Context()

	users, err := s.app.Storage.UserStore().ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if !user.InGroup(name) {
			continue
		}
		user.Groups = removeString(user.Groups, name)
		if err := s.app.Storage.UserStore().SaveUser(ctx, user); err != nil {
			return err
		}
	}

	apps, err := s.app.Storage.AppStore().ListApps(ctx)
	if err != nil {
		return err
	}
	for _, app := range apps {
		stripped := removeString(app.Groups, name)
		if len(stripped) == len(app.Groups) {
			continue
		}
		app.Groups = stripped
		if err := s.app.Storage.AppStore().SaveApp(ctx, app); err != nil {
			return err
		}
	}

	return s.app.Storage.GroupStore().DeleteGroup(ctx, name)
}

func removeString(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}
