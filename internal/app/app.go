// Package app wires configuration, storage, and services into the shared
// application context used by both the portal and gateway binaries.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
	"github.com/bobmcallan/gatehouse/internal/services/access"
	"github.com/bobmcallan/gatehouse/internal/services/directory"
	"github.com/bobmcallan/gatehouse/internal/services/scanner"
	"github.com/bobmcallan/gatehouse/internal/storage"
)

// App aggregates the shared dependencies of the portal and gateway.
type App struct {
	Config  *common.Config
	Logger  *common.Logger
	Storage interfaces.StorageManager

	Directory interfaces.DirectoryService
	Access    interfaces.AccessService
	Scanner   interfaces.ScannerService
	ScanHub   *scanner.Hub
}

// New builds the application context: storage backend, services, scan event
// hub, and the bootstrap admin account on an empty store.
func New(config *common.Config, logger *common.Logger) (*App, error) {
	store, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	dir := directory.NewService(store, logger, config)
	acc := access.NewService(store, dir, logger, config)
	hub := scanner.NewHub(logger)
	go hub.Run()
	scan := scanner.NewService(logger, config, hub)

	a := &App{
		Config:    config,
		Logger:    logger,
		Storage:   store,
		Directory: dir,
		Access:    acc,
		Scanner:   scan,
		ScanHub:   hub,
	}

	if err := a.bootstrapAdmin(context.Background()); err != nil {
		store.Close()
		hub.Stop()
		return nil, err
	}

	return a, nil
}

// bootstrapAdmin seeds the configured admin account when the user store is
// empty, flagged for a forced password change on first login.
func (a *App) bootstrapAdmin(ctx context.Context) error {
	raw := a.Config.Security.BootstrapAdmin
	if raw == "" {
		return nil
	}

	count, err := a.Storage.UserStore().CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid bootstrap_admin value, want 'username:password'")
	}

	hash, err := access.HashPassword(parts[1])
	if err != nil {
		return err
	}
	admin := &models.User{
		Username:     parts[0],
		DisplayName:  "Administrator",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		MustChange:   true,
	}
	if err := a.Storage.UserStore().SaveUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	a.Logger.Warn().
		Str("username", admin.Username).
		Msg("Bootstrap admin created with default password; change it on first login")
	return nil
}

// Close releases storage and stops the scan event hub.
func (a *App) Close() {
	if a.ScanHub != nil {
		a.ScanHub.Stop()
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
}
