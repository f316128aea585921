package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// appSession is the decoded app-session cookie: which portal session it
// came from, who it belongs to, and which app it is scoped to.
type appSession struct {
	SessionID string
	UserID    string
	AppID     int64
}

// cookieName returns the per-app session cookie name.
func cookieName(appID int64) string {
	return fmt.Sprintf("gatehouse_app_%d", appID)
}

// signAppSession creates the signed app-session cookie value.
func (g *Gateway) signAppSession(sessionID, userID string, appID int64) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(g.cookieTTL)
	claims := jwt.MapClaims{
		"sid": sessionID,
		"sub": userID,
		"app": appID,
		"iss": "gatehouse-gateway",
		"iat": now.Unix(),
		"exp": expires.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign app session: %w", err)
	}
	return signed, expires, nil
}

// parseAppSession validates the cookie value and returns its claims.
func (g *Gateway) parseAppSession(value string) (*appSession, error) {
	token, err := jwt.Parse(value, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid app session: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid app session claims")
	}

	sid, _ := claims["sid"].(string)
	sub, _ := claims["sub"].(string)
	appFloat, _ := claims["app"].(float64)
	if sid == "" || sub == "" || appFloat == 0 {
		return nil, fmt.Errorf("incomplete app session claims")
	}
	return &appSession{SessionID: sid, UserID: sub, AppID: int64(appFloat)}, nil
}

// setAppSessionCookie writes the app-session cookie scoped to the app's
// path prefix.
func (g *Gateway) setAppSessionCookie(w http.ResponseWriter, value string, appID int64, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName(appID),
		Value:    value,
		Path:     fmt.Sprintf("/app/%d", appID),
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
