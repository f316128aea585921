package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
)

// appRow is the DB-level representation of a registered app.
type appRow struct {
	AppID       int64     `json:"app_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Port        int       `json:"port"`
	AccessMode  string    `json:"access_mode"`
	Groups      []string  `json:"groups"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *appRow) toModel() *models.App {
	return &models.App{
		ID:          r.AppID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Port:        r.Port,
		AccessMode:  r.AccessMode,
		Groups:      r.Groups,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// counterRow carries the incremented app ID counter back from UPSERT.
type counterRow struct {
	Value int64 `json:"value"`
}

// AppStore implements interfaces.AppStore using SurrealDB.
type AppStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewAppStore creates a new AppStore.
func NewAppStore(db *surrealdb.DB, logger *common.Logger) *AppStore {
	return &AppStore{db: db, logger: logger}
}

func (s *AppStore) CreateApp(ctx context.Context, app *models.App) error {
	if existing, err := s.GetAppByPort(ctx, app.Port); err == nil && existing != nil {
		return fmt.Errorf("port %d: %w", app.Port, interfaces.ErrPortInUse)
	}

	// Server-side increment keeps ID allocation atomic across processes.
	idSQL := "UPSERT system_kv:app_id_counter SET value += 1 RETURN AFTER"
	results, err := surrealdb.Query[[]counterRow](ctx, s.db, idSQL, nil)
	if err != nil {
		return fmt.Errorf("failed to allocate app id: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("failed to allocate app id: empty counter result")
	}
	app.ID = (*results)[0].Result[0].Value
	now := time.Now()
	app.CreatedAt = now
	app.UpdatedAt = now

	if err := s.saveApp(ctx, app); err != nil {
		return err
	}
	s.logger.Debug().Int64("app_id", app.ID).Str("name", app.Name).Int("port", app.Port).Msg("App created")
	return nil
}

func (s *AppStore) GetApp(ctx context.Context, id int64) (*models.App, error) {
	sql := "SELECT app_id, name, description, category, port, access_mode, groups, active, created_at, updated_at FROM $rid"
	vars := map[string]any{"rid": recordID("app", id)}
	results, err := surrealdb.Query[[]appRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("app %d: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get app %d: %w", id, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("app %d: %w", id, interfaces.ErrNotFound)
	}
	row := (*results)[0].Result[0]
	return row.toModel(), nil
}

func (s *AppStore) GetAppByPort(ctx context.Context, port int) (*models.App, error) {
	sql := "SELECT app_id, name, description, category, port, access_mode, groups, active, created_at, updated_at FROM app WHERE port = $port"
	vars := map[string]any{"port": port}
	results, err := surrealdb.Query[[]appRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to find app on port %d: %w", port, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("app on port %d: %w", port, interfaces.ErrNotFound)
	}
	row := (*results)[0].Result[0]
	return row.toModel(), nil
}

func (s *AppStore) SaveApp(ctx context.Context, app *models.App) error {
	if other, err := s.GetAppByPort(ctx, app.Port); err == nil && other.ID != app.ID {
		return fmt.Errorf("port %d: %w", app.Port, interfaces.ErrPortInUse)
	}
	app.UpdatedAt = time.Now()
	return s.saveApp(ctx, app)
}

func (s *AppStore) saveApp(ctx context.Context, app *models.App) error {
	sql := `UPSERT $rid SET
		app_id = $app_id, name = $name, description = $description,
		category = $category, port = $port, access_mode = $access_mode,
		groups = $groups, active = $active,
		created_at = $created_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":         recordID("app", app.ID),
		"app_id":      app.ID,
		"name":        app.Name,
		"description": app.Description,
		"category":    app.Category,
		"port":        app.Port,
		"access_mode": app.AccessMode,
		"groups":      app.Groups,
		"active":      app.Active,
		"created_at":  app.CreatedAt,
		"updated_at":  app.UpdatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save app %d: %w", app.ID, err)
	}
	return nil
}

func (s *AppStore) DeleteApp(ctx context.Context, id int64) error {
	rid := recordID("app", id)
	if _, err := surrealdb.Delete[appRow](ctx, s.db, rid); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete app %d: %w", id, err)
	}
	return nil
}

func (s *AppStore) ListApps(ctx context.Context) ([]*models.App, error) {
	sql := "SELECT app_id, name, description, category, port, access_mode, groups, active, created_at, updated_at FROM app ORDER BY name"
	results, err := surrealdb.Query[[]appRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	var apps []*models.App
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			apps = append(apps, (*results)[0].Result[i].toModel())
		}
	}
	return apps, nil
}

// Compile-time check
var _ interfaces.AppStore = (*AppStore)(nil)
