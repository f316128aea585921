package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatehouse/internal/models"
)

func TestHandleAdminScan_FindsAppOnOverriddenRange(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<title>Streamlit</title>")
	}))
	t.Cleanup(upstream.Close)
	_, portStr, _ := net.SplitHostPort(upstream.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	srv := newTestServer(t)
	token := adminToken(t, srv)

	path := fmt.Sprintf("/api/admin/scan?start=%d&end=%d", port, port)
	rec := do(t, srv, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	data := resp["data"].(map[string]interface{})
	ports := data["ports"].([]interface{})
	require.Len(t, ports, 1)
	entry := ports[0].(map[string]interface{})
	assert.Equal(t, float64(port), entry["port"])
	assert.Equal(t, true, entry["verified"])
}

func TestHandleAdminScan_ExcludesRegisteredApps(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "streamlit")
	}))
	t.Cleanup(upstream.Close)
	_, portStr, _ := net.SplitHostPort(upstream.Listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	srv := newTestServer(t)
	token := adminToken(t, srv)
	seedApp(t, srv, "registered", port, models.AccessPublic)

	path := fmt.Sprintf("/api/admin/scan?start=%d&end=%d", port, port)
	rec := do(t, srv, http.MethodPost, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	ports, _ := resp["data"].(map[string]interface{})["ports"].([]interface{})
	// The registered app's port is not a discovery.
	assert.Empty(t, ports)
}

func TestHandleAdminScan_InvalidRangeAndAuth(t *testing.T) {
	srv := newTestServer(t)
	token := adminToken(t, srv)

	bad := do(t, srv, http.MethodPost, "/api/admin/scan?start=9000&end=8000", token, nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	seedUser(t, srv, "alice", "secret", models.RoleUser)
	userToken := login(t, srv, "alice", "secret")
	denied := do(t, srv, http.MethodPost, "/api/admin/scan", userToken, nil)
	assert.Equal(t, http.StatusForbidden, denied.Code)
}

func TestHandleAdminScanEvents_AuthGates(t *testing.T) {
	srv := newTestServer(t)
	seedUser(t, srv, "alice", "secret", models.RoleUser)
	userToken := login(t, srv, "alice", "secret")

	anon := do(t, srv, http.MethodGet, "/api/admin/scan/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, anon.Code)

	// Browsers can't set headers on a websocket dial, so ?token= works too —
	// but only for admins.
	nonAdmin := do(t, srv, http.MethodGet, "/api/admin/scan/events?token="+userToken, "", nil)
	assert.Equal(t, http.StatusForbidden, nonAdmin.Code)
}
