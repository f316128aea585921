// Package storage selects and wires the configured storage backend.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/storage/portaldb"
	"github.com/bobmcallan/gatehouse/internal/storage/surrealdb"
)

// NewStorageManager creates the storage manager for the configured backend.
// "badger" (default) runs embedded; "surrealdb" shares a database between
// the portal and gateway processes.
func NewStorageManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	backend := strings.ToLower(strings.TrimSpace(config.Storage.Backend))
	switch backend {
	case "", "badger":
		store, err := portaldb.NewStore(logger, config.Storage.Path)
		if err != nil {
			return nil, err
		}
		return &badgerManager{store: store}, nil
	case "surrealdb", "surreal":
		return surrealdb.NewManager(logger, config)
	default:
		return nil, fmt.Errorf("unknown storage backend '%s'", config.Storage.Backend)
	}
}

// badgerManager adapts the embedded portaldb.Store to the StorageManager
// interface. All store accessors share the one BadgerHold database.
type badgerManager struct {
	store *portaldb.Store
}

func (m *badgerManager) UserStore() interfaces.UserStore       { return m.store }
func (m *badgerManager) GroupStore() interfaces.GroupStore     { return m.store }
func (m *badgerManager) AppStore() interfaces.AppStore         { return m.store }
func (m *badgerManager) SessionStore() interfaces.SessionStore { return m.store }
func (m *badgerManager) TokenStore() interfaces.TokenStore     { return m.store }

func (m *badgerManager) GetSystemKV(ctx context.Context, key string) (string, error) {
	return m.store.GetSystemKV(ctx, key)
}

func (m *badgerManager) SetSystemKV(ctx context.Context, key, value string) error {
	return m.store.SetSystemKV(ctx, key, value)
}

func (m *badgerManager) Close() error {
	return m.store.Close()
}

// Compile-time check
var _ interfaces.StorageManager = (*badgerManager)(nil)
