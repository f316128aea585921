package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatehouse/internal/models"
)

func adminToken(t *testing.T, srv *Server) string {
	t.Helper()
	seedUser(t, srv, "root", "rootpass", models.RoleAdmin)
	return login(t, srv, "root", "rootpass")
}

func TestAdminEndpoints_RequireAdminRole(t *testing.T) {
	srv := newTestServer(t)
	seedUser(t, srv, "alice", "secret", models.RoleUser)
	token := login(t, srv, "alice", "secret")

	paths := []string{"/api/admin/users", "/api/admin/groups", "/api/admin/apps"}
	for _, path := range paths {
		rec := do(t, srv, http.MethodGet, path, token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)

		anon := do(t, srv, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, anon.Code, path)
	}
}

func TestAdminUserCreate_Success(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)
	seedGroup(t, srv, "finance")

	body := jsonBody(t, map[string]interface{}{
		"username": "alice",
		"password": "secret",
		"role":     "user",
		"groups":   []string{"finance"},
	})
	rec := do(t, srv, http.MethodPost, "/api/admin/users", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	user := resp["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
	// The hash never leaves the server.
	assert.NotContains(t, rec.Body.String(), "password_hash")

	// The new account can log in.
	login(t, srv, "alice", "secret")
}

func TestAdminUserCreate_Validation(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)

	cases := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"missing username", map[string]interface{}{"password": "x"}, http.StatusBadRequest},
		{"missing password", map[string]interface{}{"username": "alice"}, http.StatusBadRequest},
		{"bad role", map[string]interface{}{"username": "alice", "password": "x", "role": "superuser"}, http.StatusBadRequest},
		{"unknown group", map[string]interface{}{"username": "alice", "password": "x", "groups": []string{"ghost"}}, http.StatusBadRequest},
		{"control chars", map[string]interface{}{"username": "ali\x00ce", "password": "x"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := do(t, srv, http.MethodPost, "/api/admin/users", token, jsonBody(t, tc.body))
		assert.Equal(t, tc.want, rec.Code, tc.name)
	}

	// Duplicates conflict.
	seedUser(t, srv, "bob", "x", models.RoleUser)
	rec := do(t, srv, http.MethodPost, "/api/admin/users", token,
		jsonBody(t, map[string]interface{}{"username": "bob", "password": "x"}))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminUserUpdate_GroupsAreSetReplacement(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)
	seedGroup(t, srv, "finance")
	seedGroup(t, srv, "ops")
	seedUser(t, srv, "alice", "secret", models.RoleUser, "finance")

	rec := do(t, srv, http.MethodPut, "/api/admin/users/alice", token,
		jsonBody(t, map[string]interface{}{"groups": []string{"ops"}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	user, err := srv.app.Storage.UserStore().GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"ops"}, user.Groups)
}

func TestAdminUserDisable_RevokesSessions(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)
	seedUser(t, srv, "alice", "secret", models.RoleUser)
	aliceToken := login(t, srv, "alice", "secret")

	rec := do(t, srv, http.MethodPut, "/api/admin/users/alice", token,
		jsonBody(t, map[string]interface{}{"disabled": true}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	after := do(t, srv, http.MethodGet, "/api/auth/session", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, after.Code)

	// And the disabled account cannot log back in.
	body := jsonBody(t, map[string]string{"username": "alice", "password": "secret"})
	relogin := do(t, srv, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusUnauthorized, relogin.Code)
}

func TestAdminUserSessions_Revoke(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)
	seedUser(t, srv, "alice", "secret", models.RoleUser)
	aliceToken := login(t, srv, "alice", "secret")

	rec := do(t, srv, http.MethodDelete, "/api/admin/users/alice/sessions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, float64(1), resp["data"].(map[string]interface{})["revoked"])

	after := do(t, srv, http.MethodGet, "/api/auth/session", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, after.Code)
}

func TestAdminUserDelete_RemovesAccountAndSessions(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)
	seedUser(t, srv, "alice", "secret", models.RoleUser)
	aliceToken := login(t, srv, "alice", "secret")

	rec := do(t, srv, http.MethodDelete, "/api/admin/users/alice", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	after := do(t, srv, http.MethodGet, "/api/auth/session", aliceToken, nil)
	assert.Equal(t, http.StatusUnauthorized, after.Code)

	missing := do(t, srv, http.MethodGet, "/api/admin/users/alice", token, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestAdminGroups_CreateAndDeleteCascades(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/admin/groups", token,
		jsonBody(t, map[string]string{"name": "finance", "description": "Finance team"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	dup := do(t, srv, http.MethodPost, "/api/admin/groups", token,
		jsonBody(t, map[string]string{"name": "finance"}))
	assert.Equal(t, http.StatusConflict, dup.Code)

	seedUser(t, srv, "alice", "secret", models.RoleUser, "finance")
	seedApp(t, srv, "finance-app", 8502, models.AccessGroups, "finance")

	del := do(t, srv, http.MethodDelete, "/api/admin/groups/finance", token, nil)
	require.Equal(t, http.StatusOK, del.Code, del.Body.String())

	// Deleting the group strips it from users and apps.
	user, err := srv.app.Storage.UserStore().GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, user.Groups)

	app, err := srv.app.Storage.AppStore().GetApp(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, app.Groups)
}

func TestAdminApps_CreateValidation(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)
	seedGroup(t, srv, "finance")

	cases := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"missing name", map[string]interface{}{"port": 8502}, http.StatusBadRequest},
		{"bad port", map[string]interface{}{"name": "x", "port": 99999}, http.StatusBadRequest},
		{"bad mode", map[string]interface{}{"name": "x", "port": 8502, "access_mode": "open"}, http.StatusBadRequest},
		{"unknown group", map[string]interface{}{"name": "x", "port": 8502, "access_mode": "groups", "groups": []string{"ghost"}}, http.StatusBadRequest},
		{"groups mode without groups", map[string]interface{}{"name": "x", "port": 8502, "access_mode": "groups"}, http.StatusBadRequest},
		{"valid", map[string]interface{}{"name": "reports", "port": 8502, "access_mode": "groups", "groups": []string{"finance"}}, http.StatusCreated},
	}
	for _, tc := range cases {
		rec := do(t, srv, http.MethodPost, "/api/admin/apps", token, jsonBody(t, tc.body))
		assert.Equal(t, tc.want, rec.Code, "%s: %s", tc.name, rec.Body.String())
	}

	// Port conflict with the app registered above.
	rec := do(t, srv, http.MethodPost, "/api/admin/apps", token,
		jsonBody(t, map[string]interface{}{"name": "clash", "port": 8502, "access_mode": "public"}))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminApps_DefaultsToModeNone(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/admin/apps", token,
		jsonBody(t, map[string]interface{}{"name": "new-app", "port": 8502}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	app, err := srv.app.Storage.AppStore().GetApp(context.Background(), 1)
	require.NoError(t, err)
	// Unreachable until an admin explicitly opens it up.
	assert.Equal(t, models.AccessNone, app.AccessMode)
}

func TestAdminApps_CatalogShowsEverything(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)
	seedApp(t, srv, "public-app", 18502, models.AccessPublic)
	seedApp(t, srv, "locked-app", 18503, models.AccessNone)

	rec := do(t, srv, http.MethodGet, "/api/admin/apps", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	apps := resp["data"].(map[string]interface{})["apps"].([]interface{})
	assert.Len(t, apps, 2)
	for _, a := range apps {
		entry := a.(map[string]interface{})
		assert.Equal(t, false, entry["running"])
	}
}

func TestAdminApps_UpdateAndDelete(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)
	seedApp(t, srv, "reports", 8502, models.AccessPublic)

	rec := do(t, srv, http.MethodPut, "/api/admin/apps/1", token,
		jsonBody(t, map[string]interface{}{"active": false, "description": "parked"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	app, err := srv.app.Storage.AppStore().GetApp(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, app.Active)
	assert.Equal(t, "parked", app.Description)

	del := do(t, srv, http.MethodDelete, "/api/admin/apps/1", token, nil)
	require.Equal(t, http.StatusOK, del.Code)

	missing := do(t, srv, http.MethodGet, "/api/admin/apps/1", token, nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}
