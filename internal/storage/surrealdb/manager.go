// Package surrealdb implements the Gatehouse stores on SurrealDB, for
// deployments that want the portal and gateway processes sharing one
// database instead of an embedded store.
package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	userStore   *UserStore
	appStore    *AppStore
	accessStore *AccessStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	// Define tables to ensure they exist (SurrealDB v3 errors on querying non-existent tables)
	tables := []string{"user", "user_group", "app", "session", "access_token", "system_kv"}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	m := &Manager{
		db:     db,
		logger: logger,
	}
	m.userStore = NewUserStore(db, logger)
	m.appStore = NewAppStore(db, logger)
	m.accessStore = NewAccessStore(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func (m *Manager) UserStore() interfaces.UserStore {
	return m.userStore
}

func (m *Manager) GroupStore() interfaces.GroupStore {
	return m.userStore
}

func (m *Manager) AppStore() interfaces.AppStore {
	return m.appStore
}

func (m *Manager) SessionStore() interfaces.SessionStore {
	return m.accessStore
}

func (m *Manager) TokenStore() interfaces.TokenStore {
	return m.accessStore
}

// --- System key-value ---

type systemKVRow struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (m *Manager) GetSystemKV(ctx context.Context, key string) (string, error) {
	sql := "SELECT key, value FROM $rid"
	vars := map[string]any{"rid": recordID("system_kv", key)}
	results, err := surrealdb.Query[[]systemKVRow](ctx, m.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get system kv '%s': %w", key, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return "", nil
	}
	return (*results)[0].Result[0].Value, nil
}

func (m *Manager) SetSystemKV(ctx context.Context, key, value string) error {
	sql := "UPSERT $rid SET key = $key, value = $value"
	vars := map[string]any{
		"rid":   recordID("system_kv", key),
		"key":   key,
		"value": value,
	}
	if _, err := surrealdb.Query[any](ctx, m.db, sql, vars); err != nil {
		return fmt.Errorf("failed to set system kv '%s': %w", key, err)
	}
	return nil
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// isNotFoundError reports whether the SurrealDB error indicates a missing
// record rather than a real failure.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no record")
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
