// Package directory resolves which apps a user may reach and builds the
// admin catalog view. Request-time authorization and admin visibility are
// deliberately separate paths: an admin sees everything in the catalog but
// gets no extra reach at the gateway.
package directory

import (
	"context"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
)

// Service implements interfaces.DirectoryService.
type Service struct {
	storage interfaces.StorageManager
	prober  *Prober
	logger  *common.Logger
}

// NewService creates the directory service.
func NewService(storage interfaces.StorageManager, logger *common.Logger, config *common.Config) *Service {
	return &Service{
		storage: storage,
		prober:  NewProber(config.Gateway.UpstreamHost, config.Scanner.GetConnectTimeout()),
		logger:  logger,
	}
}

// AuthorizedApps returns the active apps the user may launch: public apps
// plus group-restricted apps sharing at least one group with the user.
// Mode "none" is reachable by nobody.
func (s *Service) AuthorizedApps(ctx context.Context, user *models.User) ([]*models.App, error) {
	apps, err := s.storage.AppStore().ListApps(ctx)
	if err != nil {
		return nil, err
	}
	var authorized []*models.App
	for _, app := range apps {
		if s.IsAuthorized(ctx, user, app) {
			authorized = append(authorized, app)
		}
	}
	return authorized, nil
}

// IsAuthorized reports whether the user may launch the app right now.
func (s *Service) IsAuthorized(_ context.Context, user *models.User, app *models.App) bool {
	if user == nil || app == nil || !app.Active {
		return false
	}
	switch app.AccessMode {
	case models.AccessPublic:
		return true
	case models.AccessGroups:
		for _, g := range app.Groups {
			if user.InGroup(g) {
				return true
			}
		}
	}
	return false
}

// Catalog returns every registered app with its probed running state. This
// is the admin management view; it never feeds authorization decisions.
func (s *Service) Catalog(ctx context.Context) ([]*models.CatalogEntry, error) {
	apps, err := s.storage.AppStore().ListApps(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]*models.CatalogEntry, 0, len(apps))
	for _, app := range apps {
		entries = append(entries, &models.CatalogEntry{
			App:     *app,
			Running: s.prober.Running(app.Port),
		})
	}
	return entries, nil
}

// Compile-time check
var _ interfaces.DirectoryService = (*Service)(nil)
