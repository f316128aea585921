package server

import "net/http"

// registerRoutes wires all portal API endpoints.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health
	mux.HandleFunc("/api/health", s.handleHealth)

	// Authentication
	mux.HandleFunc("/api/auth/login", s.handleAuthLogin)
	mux.HandleFunc("/api/auth/logout", s.handleAuthLogout)
	mux.HandleFunc("/api/auth/session", s.handleAuthSession)

	// App directory and launch
	mux.HandleFunc("/api/apps", s.handleAppsList)
	mux.HandleFunc("/api/apps/", s.routeApps)

	// Admin management
	mux.HandleFunc("/api/admin/users", s.handleAdminUsers)
	mux.HandleFunc("/api/admin/users/", s.routeAdminUsers)
	mux.HandleFunc("/api/admin/groups", s.handleAdminGroups)
	mux.HandleFunc("/api/admin/groups/", s.routeAdminGroups)
	mux.HandleFunc("/api/admin/apps", s.handleAdminApps)
	mux.HandleFunc("/api/admin/apps/", s.routeAdminApps)
	mux.HandleFunc("/api/admin/scan", s.handleAdminScan)
	mux.HandleFunc("/api/admin/scan/events", s.handleAdminScanEvents)
}
