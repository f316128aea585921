package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/gatehouse/internal/models"
	"github.com/bobmcallan/gatehouse/internal/services/access"
)

// parseAppPath splits /app/{id}/rest into the app ID and remaining path.
func parseAppPath(path string) (int64, string, bool) {
	rest := strings.TrimPrefix(path, "/app/")
	if rest == path {
		return 0, "", false
	}
	idStr := rest
	tail := "/"
	if idx := strings.Index(rest, "/"); idx >= 0 {
		idStr = rest[:idx]
		tail = rest[idx:]
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id < 1 {
		return 0, "", false
	}
	return id, tail, true
}

// handleApp is the gateway entry point for all /app/{id}/... traffic.
// A request carrying an auth_token goes through the consume-and-redirect
// dance; everything else must present a valid app-session cookie.
func (g *Gateway) handleApp(w http.ResponseWriter, r *http.Request) {
	appID, _, ok := parseAppPath(r.URL.Path)
	if !ok {
		g.writeDenied(w, r, "malformed app path")
		return
	}

	if token := r.URL.Query().Get("auth_token"); token != "" {
		g.handleEntry(w, r, appID, token)
		return
	}

	session, ok := g.authorizeCookie(w, r, appID)
	if !ok {
		return
	}
	g.proxy(w, r, appID, session)
}

// handleEntry consumes the single-use token and, on success, trades it for
// an app-session cookie and a redirect to the clean URL. Exactly one of N
// concurrent presentations of the same token gets here; the rest see the
// same generic denial as every other failure.
func (g *Gateway) handleEntry(w http.ResponseWriter, r *http.Request, appID int64, token string) {
	at, err := g.app.Access.Consume(r.Context(), token, appID)
	if err != nil {
		if reason, ok := access.ReasonOf(err); ok {
			g.writeDenied(w, r, string(reason))
			return
		}
		g.logger.Error().Err(err).Int64("app_id", appID).Msg("Token consumption failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	signed, expires, err := g.signAppSession(at.SessionID, at.UserID, appID)
	if err != nil {
		g.logger.Error().Err(err).Msg("Failed to sign app session cookie")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	g.setAppSessionCookie(w, signed, appID, expires)

	// Redirect to the same URL without the credential in the query string.
	clean := *r.URL
	q := clean.Query()
	q.Del("auth_token")
	clean.RawQuery = q.Encode()
	g.logger.Info().
		Str("username", at.UserID).
		Int64("app_id", appID).
		Msg("App session opened")
	http.Redirect(w, r, clean.String(), http.StatusFound)
}

// authorizeCookie validates the app-session cookie and re-checks the
// backing portal session, so a portal logout or admin revocation cuts app
// access on the next request. On failure it writes the generic denial.
func (g *Gateway) authorizeCookie(w http.ResponseWriter, r *http.Request, appID int64) (*models.Session, bool) {
	cookie, err := r.Cookie(cookieName(appID))
	if err != nil {
		g.writeDenied(w, r, "missing app session cookie")
		return nil, false
	}

	as, err := g.parseAppSession(cookie.Value)
	if err != nil {
		g.writeDenied(w, r, "invalid app session cookie")
		return nil, false
	}
	if as.AppID != appID {
		g.writeDenied(w, r, string(access.DenyAppMismatch))
		return nil, false
	}

	session, err := g.app.Storage.SessionStore().GetSessionByID(r.Context(), as.SessionID)
	if err != nil || !session.Valid(time.Now()) {
		g.writeDenied(w, r, string(access.DenySessionRevoked))
		return nil, false
	}
	return session, true
}

// proxy forwards the request to the app's upstream with the /app/{id}
// prefix stripped and a fresh single-use proof token injected for the
// upstream's own verification.
func (g *Gateway) proxy(w http.ResponseWriter, r *http.Request, appID int64, session *models.Session) {
	app, err := g.app.Storage.AppStore().GetApp(r.Context(), appID)
	if err != nil || !app.Active {
		g.writeDenied(w, r, "app missing or inactive")
		return
	}

	target := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%d", g.app.Config.Gateway.UpstreamHost, app.Port),
	}
	prefix := fmt.Sprintf("/app/%d", appID)

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.URL.Path = strings.TrimPrefix(req.URL.Path, prefix)
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
		req.Host = target.Host

		req.Header.Del("Authorization")
		req.Header.Set("X-Gatehouse-User", session.UserID)
		if proof, err := g.app.Access.Issue(req.Context(), session.Token, appID); err == nil {
			req.Header.Set("X-Gatehouse-Token", proof.Token)
		}
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.logger.Warn().
			Err(err).
			Int64("app_id", appID).
			Int("port", app.Port).
			Msg("Upstream unavailable")
		g.writeOffline(w, app.Name)
	}

	proxy.ServeHTTP(w, r)
}

// handleRefresh handles POST /refresh-session/{id} — slide the app-session
// window while the portal session is still alive.
func (g *Gateway) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/refresh-session/")
	appID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || appID < 1 {
		g.writeDenied(w, r, "malformed refresh path")
		return
	}

	session, ok := g.authorizeCookie(w, r, appID)
	if !ok {
		return
	}

	signed, expires, err := g.signAppSession(session.ID, session.UserID, appID)
	if err != nil {
		g.logger.Error().Err(err).Msg("Failed to sign app session cookie")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	g.setAppSessionCookie(w, signed, appID, expires)

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","expires_at":%q}`, expires.Format(time.RFC3339))
}

// handleValidate handles GET /validate-session/{id}/{token} — the
// single-use proof check protected apps call to verify the token the
// gateway injected. The response never says why a token was bad.
func (g *Gateway) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/validate-session/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		g.writeValidation(w, http.StatusForbidden, nil)
		return
	}
	appID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || appID < 1 {
		g.writeValidation(w, http.StatusForbidden, nil)
		return
	}

	at, err := g.app.Access.Consume(r.Context(), parts[1], appID)
	if err != nil {
		if reason, ok := access.ReasonOf(err); ok {
			g.logger.Warn().
				Str("reason", string(reason)).
				Int64("app_id", appID).
				Msg("Proof token rejected")
			g.writeValidation(w, http.StatusForbidden, nil)
			return
		}
		g.logger.Error().Err(err).Msg("Proof token validation failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	g.writeValidation(w, http.StatusOK, at)
}

func (g *Gateway) writeValidation(w http.ResponseWriter, status int, at *models.AccessToken) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if at == nil {
		fmt.Fprint(w, `{"valid":false}`)
		return
	}
	fmt.Fprintf(w, `{"valid":true,"user_id":%q,"session_id":%q}`, at.UserID, at.SessionID)
}
