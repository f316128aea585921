// Package portaldb implements the Gatehouse stores using BadgerHold.
// It manages users, groups, apps, sessions, access tokens, and system KV
// in a single embedded database.
package portaldb

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
)

// Store implements the Gatehouse store interfaces using BadgerHold.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger

	// tokenMu serializes ConsumeToken's read-check-write so that exactly
	// one concurrent presenter of the same token wins.
	tokenMu sync.Mutex

	// appMu serializes app ID allocation and the port-uniqueness check.
	appMu sync.Mutex
}

// SystemKeyValue is a system-scoped configuration entry.
type SystemKeyValue struct {
	Key      string
	Value    string
	Version  int
	DateTime time.Time
}

// appIDCounterKey is the system KV slot holding the last assigned app ID.
const appIDCounterKey = "app_id_counter"

// NewStore creates a new Store backed by BadgerHold.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db path %s: %w", path, err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil
	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}
	logger.Info().Str("path", path).Msg("PortalDB opened")
	return &Store{db: db, logger: logger}, nil
}

// --- System key-value ---

func (s *Store) GetSystemKV(_ context.Context, key string) (string, error) {
	var kv SystemKeyValue
	if err := s.db.Get(key, &kv); err != nil {
		if err == badgerhold.ErrNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to get system kv '%s': %w", key, err)
	}
	return kv.Value, nil
}

func (s *Store) SetSystemKV(_ context.Context, key, value string) error {
	version := 1
	var existing SystemKeyValue
	if err := s.db.Get(key, &existing); err == nil {
		version = existing.Version + 1
	}
	kv := &SystemKeyValue{Key: key, Value: value, Version: version, DateTime: time.Now()}
	if err := s.db.Upsert(key, kv); err != nil {
		return fmt.Errorf("failed to set system kv '%s': %w", key, err)
	}
	return nil
}

// nextAppID allocates the next numeric app ID. Callers hold appMu.
func (s *Store) nextAppID(ctx context.Context) (int64, error) {
	raw, err := s.GetSystemKV(ctx, appIDCounterKey)
	if err != nil {
		return 0, err
	}
	last := int64(0)
	if raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			last = v
		}
	}
	next := last + 1
	if err := s.SetSystemKV(ctx, appIDCounterKey, strconv.FormatInt(next, 10)); err != nil {
		return 0, err
	}
	return next, nil
}

// Close shuts down the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time interface checks.
var (
	_ interfaces.UserStore    = (*Store)(nil)
	_ interfaces.GroupStore   = (*Store)(nil)
	_ interfaces.AppStore     = (*Store)(nil)
	_ interfaces.SessionStore = (*Store)(nil)
	_ interfaces.TokenStore   = (*Store)(nil)
)
