package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/models"
	"github.com/bobmcallan/gatehouse/internal/services/scanner"
)

// handleAdminScan handles POST /api/admin/scan — sweep the configured port
// range for running, unregistered apps. ?refresh=true drops the cache
// first; ?start= and ?end= narrow the range.
func (s *Server) handleAdminScan(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !s.requireAdmin(w, r) {
		return
	}

	req := models.ScanRequest{
		PortStart: s.app.Config.Scanner.PortStart,
		PortEnd:   s.app.Config.Scanner.PortEnd,
	}
	if v := r.URL.Query().Get("start"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			req.PortStart = p
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			req.PortEnd = p
		}
	}
	if req.PortStart < 1 || req.PortEnd > 65535 || req.PortStart > req.PortEnd {
		WriteError(w, http.StatusBadRequest, "Invalid scan range")
		return
	}

	// Registered ports are not discoveries; leave them out of the sweep.
	apps, err := s.app.Storage.AppStore().ListApps(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list apps: "+err.Error())
		return
	}
	for _, app := range apps {
		req.Exclude = append(req.Exclude, app.Port)
	}

	if strings.EqualFold(r.URL.Query().Get("refresh"), "true") {
		s.app.Scanner.ClearCache()
	}

	result, err := s.app.Scanner.Scan(r.Context(), req)
	if err != nil {
		if errors.Is(err, scanner.ErrScanTimeout) {
			WriteErrorWithCode(w, http.StatusGatewayTimeout, "Scan timed out", "scan_timeout")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Scan failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"data":   result,
	})
}

// handleAdminScanEvents handles GET /api/admin/scan/events — websocket
// stream of scan lifecycle events. Browsers can't set an Authorization
// header on a websocket dial, so a ?token= query parameter is accepted too.
func (s *Server) handleAdminScanEvents(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sc := common.SessionFromContext(r.Context())
	if sc == nil {
		token := r.URL.Query().Get("token")
		if token != "" {
			if session, user, err := s.app.Access.Authenticate(r.Context(), token); err == nil {
				sc = &common.SessionContext{Session: session, User: user}
			}
		}
	}
	if sc == nil || sc.User == nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if !sc.User.IsAdmin() {
		WriteError(w, http.StatusForbidden, "Admin access required")
		return
	}

	s.app.ScanHub.ServeWS(w, r)
}
