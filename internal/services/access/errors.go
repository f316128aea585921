// Package access owns portal sessions and single-use access tokens: login,
// token issuance, and the validate-and-consume path the gateway runs on
// every entry request.
package access

import "errors"

// Sentinel errors returned by the access service.
var (
	// ErrUnauthorized covers dead sessions and apps the user may not reach.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound covers unknown or inactive apps at issue time.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials is returned for both unknown users and wrong
	// passwords so login failures don't leak which usernames exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// DeniedReason identifies why token validation failed. Reasons are logged
// server-side only; every reason collapses to the same client response.
type DeniedReason string

const (
	DenyInvalidToken   DeniedReason = "invalid_token"
	DenyReplay         DeniedReason = "replay"
	DenyExpired        DeniedReason = "expired"
	DenyAppMismatch    DeniedReason = "app_mismatch"
	DenySessionRevoked DeniedReason = "session_revoked"
)

// DeniedError is a token validation failure with its server-side reason.
type DeniedError struct {
	Reason DeniedReason
}

func (e *DeniedError) Error() string {
	return "access denied: " + string(e.Reason)
}

// Denied builds a DeniedError for the given reason.
func Denied(reason DeniedReason) *DeniedError {
	return &DeniedError{Reason: reason}
}

// ReasonOf extracts the denial reason from an error chain, if any.
func ReasonOf(err error) (DeniedReason, bool) {
	var de *DeniedError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return "", false
}
