package interfaces

import (
	"context"

	"github.com/bobmcallan/gatehouse/internal/models"
)

// DirectoryService resolves which apps a user may reach and provides the
// admin management view. Request-time authorization always goes through
// AuthorizedApps; Catalog is visibility only.
type DirectoryService interface {
	AuthorizedApps(ctx context.Context, user *models.User) ([]*models.App, error)
	IsAuthorized(ctx context.Context, user *models.User, app *models.App) bool
	Catalog(ctx context.Context) ([]*models.CatalogEntry, error)
}

// AccessService owns portal sessions and single-use access tokens.
type AccessService interface {
	Login(ctx context.Context, username, password string) (*models.Session, *models.User, error)
	Logout(ctx context.Context, sessionToken string) error
	Authenticate(ctx context.Context, sessionToken string) (*models.Session, *models.User, error)
	RevokeUserSessions(ctx context.Context, userID string) (int, error)

	Issue(ctx context.Context, sessionToken string, appID int64) (*models.AccessToken, error)
	// Consume validates and atomically consumes a single-use token for the
	// given app. Rejections carry a denial reason for server-side logging;
	// callers must never expose the reason to the client.
	Consume(ctx context.Context, token string, appID int64) (*models.AccessToken, error)
}

// ScannerService sweeps a port range for running unregistered apps.
type ScannerService interface {
	Scan(ctx context.Context, req models.ScanRequest) (*models.ScanResult, error)
	ClearCache()
}
