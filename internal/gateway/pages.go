package gateway

import (
	"fmt"
	"net/http"
)

// deniedPage is served for every access failure. The body is identical
// regardless of the cause; the real reason only appears in the server log.
const deniedPage = `<!DOCTYPE html>
<html>
<head>
<title>Access Denied</title>
<style>
body { font-family: sans-serif; background: #1a1a2e; color: #eee; display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; }
.card { text-align: center; padding: 2.5rem 3rem; background: #16213e; border-radius: 8px; }
h1 { margin: 0 0 0.5rem; font-size: 1.4rem; }
p { margin: 0.25rem 0; color: #aab; }
a { color: #6fa8dc; }
</style>
</head>
<body>
<div class="card">
<h1>Access denied</h1>
<p>You are not able to access this application.</p>
<p><a href="/">Return to the portal</a> and launch the app again.</p>
</div>
</body>
</html>
`

const offlinePage = `<!DOCTYPE html>
<html>
<head>
<title>Application Unavailable</title>
<style>
body { font-family: sans-serif; background: #1a1a2e; color: #eee; display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; }
.card { text-align: center; padding: 2.5rem 3rem; background: #16213e; border-radius: 8px; }
h1 { margin: 0 0 0.5rem; font-size: 1.4rem; }
p { margin: 0.25rem 0; color: #aab; }
a { color: #6fa8dc; }
</style>
</head>
<body>
<div class="card">
<h1>%s is not responding</h1>
<p>The application appears to be offline. Try again shortly.</p>
<p><a href="/">Return to the portal</a></p>
</div>
</body>
</html>
`

// writeDenied logs the specific denial reason and serves the generic
// denial page. Callers must never leak the reason to the client.
func (g *Gateway) writeDenied(w http.ResponseWriter, r *http.Request, reason string) {
	g.logger.Warn().
		Str("reason", reason).
		Str("path", r.URL.Path).
		Str("remote", r.RemoteAddr).
		Msg("Access denied")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprint(w, deniedPage)
}

// writeOffline serves the upstream-unavailable page.
func (g *Gateway) writeOffline(w http.ResponseWriter, appName string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusBadGateway)
	fmt.Fprintf(w, offlinePage, appName)
}
