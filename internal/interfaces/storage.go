// Package interfaces defines service contracts for Gatehouse
package interfaces

import (
	"context"
	"errors"

	"github.com/bobmcallan/gatehouse/internal/models"
)

// Storage sentinel errors. Backends translate their native not-found and
// conflict conditions to these so callers can branch without knowing the
// backend.
var (
	ErrNotFound        = errors.New("record not found")
	ErrAlreadyConsumed = errors.New("token already consumed")
	ErrPortInUse       = errors.New("port already registered")
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	// Storage accessors
	UserStore() UserStore
	GroupStore() GroupStore
	AppStore() AppStore
	SessionStore() SessionStore
	TokenStore() TokenStore

	// System key-value (non-user-scoped)
	GetSystemKV(ctx context.Context, key string) (string, error)
	SetSystemKV(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// UserStore manages portal user accounts, keyed by username.
type UserStore interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	SaveUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, username string) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	CountUsers(ctx context.Context) (int, error)
}

// GroupStore manages named user groups.
type GroupStore interface {
	GetGroup(ctx context.Context, name string) (*models.Group, error)
	SaveGroup(ctx context.Context, group *models.Group) error
	DeleteGroup(ctx context.Context, name string) error
	ListGroups(ctx context.Context) ([]*models.Group, error)
}

// AppStore manages registered applications. CreateApp assigns the numeric ID
// and enforces port uniqueness.
type AppStore interface {
	CreateApp(ctx context.Context, app *models.App) error
	GetApp(ctx context.Context, id int64) (*models.App, error)
	GetAppByPort(ctx context.Context, port int) (*models.App, error)
	SaveApp(ctx context.Context, app *models.App) error
	DeleteApp(ctx context.Context, id int64) error
	ListApps(ctx context.Context) ([]*models.App, error)
}

// SessionStore manages portal sessions, keyed by their opaque token.
type SessionStore interface {
	SaveSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, token string) (*models.Session, error)
	GetSessionByID(ctx context.Context, id string) (*models.Session, error)
	// RevokeSession marks the session revoked. Idempotent: revoking an
	// already-revoked session is not an error.
	RevokeSession(ctx context.Context, token string) error
	// RevokeUserSessions revokes every active session belonging to the user.
	RevokeUserSessions(ctx context.Context, userID string) (int, error)
	PurgeExpiredSessions(ctx context.Context) (int, error)
}

// TokenStore manages single-use access tokens.
type TokenStore interface {
	SaveToken(ctx context.Context, token *models.AccessToken) error
	GetToken(ctx context.Context, token string) (*models.AccessToken, error)
	// ConsumeToken atomically marks the token consumed and returns its
	// record. Exactly one caller wins under concurrent presentation; the
	// rest receive ErrAlreadyConsumed. Unknown tokens return ErrNotFound.
	ConsumeToken(ctx context.Context, token string) (*models.AccessToken, error)
	PurgeExpiredTokens(ctx context.Context) (int, error)
}
