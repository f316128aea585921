package portaldb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
)

// --- Apps ---

func (s *Store) CreateApp(ctx context.Context, app *models.App) error {
	s.appMu.Lock()
	defer s.appMu.Unlock()

	var clash []models.App
	if err := s.db.Find(&clash, badgerhold.Where("Port").Eq(app.Port)); err != nil {
		return fmt.Errorf("failed to check port %d: %w", app.Port, err)
	}
	if len(clash) > 0 {
		return fmt.Errorf("port %d: %w", app.Port, interfaces.ErrPortInUse)
	}

	id, err := s.nextAppID(ctx)
	if err != nil {
		return fmt.Errorf("failed to allocate app id: %w", err)
	}
	app.ID = id
	now := time.Now()
	app.CreatedAt = now
	app.UpdatedAt = now

	if err := s.db.Upsert(app.ID, app); err != nil {
		return fmt.Errorf("failed to create app '%s': %w", app.Name, err)
	}
	s.logger.Debug().Int64("app_id", app.ID).Str("name", app.Name).Int("port", app.Port).Msg("App created")
	return nil
}

func (s *Store) GetApp(_ context.Context, id int64) (*models.App, error) {
	var app models.App
	if err := s.db.Get(id, &app); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("app %d: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get app %d: %w", id, err)
	}
	return &app, nil
}

func (s *Store) GetAppByPort(_ context.Context, port int) (*models.App, error) {
	var apps []models.App
	if err := s.db.Find(&apps, badgerhold.Where("Port").Eq(port)); err != nil {
		return nil, fmt.Errorf("failed to find app on port %d: %w", port, err)
	}
	if len(apps) == 0 {
		return nil, fmt.Errorf("app on port %d: %w", port, interfaces.ErrNotFound)
	}
	return &apps[0], nil
}

func (s *Store) SaveApp(_ context.Context, app *models.App) error {
	s.appMu.Lock()
	defer s.appMu.Unlock()

	var clash []models.App
	if err := s.db.Find(&clash, badgerhold.Where("Port").Eq(app.Port)); err != nil {
		return fmt.Errorf("failed to check port %d: %w", app.Port, err)
	}
	for _, other := range clash {
		if other.ID != app.ID {
			return fmt.Errorf("port %d: %w", app.Port, interfaces.ErrPortInUse)
		}
	}

	app.UpdatedAt = time.Now()
	if err := s.db.Upsert(app.ID, app); err != nil {
		return fmt.Errorf("failed to save app %d: %w", app.ID, err)
	}
	return nil
}

func (s *Store) DeleteApp(_ context.Context, id int64) error {
	if err := s.db.Delete(id, models.App{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete app %d: %w", id, err)
	}
	return nil
}

func (s *Store) ListApps(_ context.Context) ([]*models.App, error) {
	var apps []models.App
	if err := s.db.Find(&apps, nil); err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	result := make([]*models.App, len(apps))
	for i := range apps {
		result[i] = &apps[i]
	}
	return result, nil
}
