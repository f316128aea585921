// Package gateway implements the token-validating reverse proxy that sits
// in front of the protected apps. Every entry token is consumed exactly
// once; follow-up traffic rides a short-lived signed cookie that is
// re-checked against the portal session on each request.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/gatehouse/internal/app"
	"github.com/bobmcallan/gatehouse/internal/common"
)

// Gateway wraps the HTTP reverse proxy server and application reference.
type Gateway struct {
	app    *app.App
	server *http.Server
	logger *common.Logger

	jwtSecret []byte
	cookieTTL time.Duration
}

// NewGateway creates the gateway server.
func NewGateway(a *app.App) *Gateway {
	g := &Gateway{
		app:       a,
		logger:    a.Logger,
		jwtSecret: []byte(a.Config.Security.JWTSecret),
		cookieTTL: a.Config.Security.GetAppSessionExpiry(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/app/", g.handleApp)
	mux.HandleFunc("/refresh-session/", g.handleRefresh)
	mux.HandleFunc("/validate-session/", g.handleValidate)

	handler := g.applyMiddleware(mux)

	g.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.Config.Gateway.Host, a.Config.Gateway.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return g
}

// Handler returns the HTTP handler for testing.
func (g *Gateway) Handler() http.Handler {
	return g.server.Handler
}

// Start starts the gateway server (blocking).
func (g *Gateway) Start() error {
	g.logger.Info().
		Str("addr", g.server.Addr).
		Msg("Starting gateway server")
	return g.server.ListenAndServe()
}

// Shutdown gracefully shuts down the gateway.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","version":%q}`, common.GetVersion())
}

// applyMiddleware wraps the mux with recovery and request logging.
func (g *Gateway) applyMiddleware(handler http.Handler) http.Handler {
	logger := g.logger
	wrapped := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().
					Str("panic", fmt.Sprintf("%v", rec)).
					Str("path", r.URL.Path).
					Msg("Panic recovered in gateway handler")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(rw, r)

		event := logger.Trace()
		if rw.status >= 500 {
			event = logger.Error()
		} else if rw.status >= 400 {
			event = logger.Info()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Msg("Gateway request")
	})
	return wrapped
}

// statusWriter captures the response status for logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the reverse proxy needs to hijack connections for websocket upgrades.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
