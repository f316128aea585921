package directory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
	"github.com/bobmcallan/gatehouse/internal/storage"
)

func newTestService(t *testing.T) (*Service, interfaces.StorageManager) {
	t.Helper()
	logger := common.NewSilentLogger()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "db")

	mgr, err := storage.NewStorageManager(logger, cfg)
	if err != nil {
		t.Fatalf("NewStorageManager failed: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	return NewService(mgr, logger, cfg), mgr
}

func TestIsAuthorized_AccessModes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	member := &models.User{Username: "alice", Role: models.RoleUser, Groups: []string{"finance", "ops"}}
	outsider := &models.User{Username: "bob", Role: models.RoleUser, Groups: []string{"hr"}}
	admin := &models.User{Username: "root", Role: models.RoleAdmin}

	public := &models.App{ID: 1, AccessMode: models.AccessPublic, Active: true}
	restricted := &models.App{ID: 2, AccessMode: models.AccessGroups, Groups: []string{"finance"}, Active: true}
	locked := &models.App{ID: 3, AccessMode: models.AccessNone, Active: true}
	inactive := &models.App{ID: 4, AccessMode: models.AccessPublic, Active: false}

	cases := []struct {
		name string
		user *models.User
		app  *models.App
		want bool
	}{
		{"public open to member", member, public, true},
		{"public open to outsider", outsider, public, true},
		{"group member allowed", member, restricted, true},
		{"non-member refused", outsider, restricted, false},
		{"mode none refuses member", member, locked, false},
		// Admin role grants catalog visibility, not reach.
		{"mode none refuses admin", admin, locked, false},
		{"admin not in group refused", admin, restricted, false},
		{"inactive refuses everyone", member, inactive, false},
		{"nil user refused", nil, public, false},
	}
	for _, tc := range cases {
		if got := svc.IsAuthorized(ctx, tc.user, tc.app); got != tc.want {
			t.Errorf("%s: IsAuthorized = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAuthorizedApps_FiltersCatalog(t *testing.T) {
	svc, mgr := newTestService(t)
	ctx := context.Background()

	apps := []*models.App{
		{Name: "public-app", Port: 8502, AccessMode: models.AccessPublic, Active: true},
		{Name: "finance-app", Port: 8503, AccessMode: models.AccessGroups, Groups: []string{"finance"}, Active: true},
		{Name: "hr-app", Port: 8504, AccessMode: models.AccessGroups, Groups: []string{"hr"}, Active: true},
		{Name: "locked-app", Port: 8505, AccessMode: models.AccessNone, Active: true},
	}
	for _, app := range apps {
		if err := mgr.AppStore().CreateApp(ctx, app); err != nil {
			t.Fatalf("CreateApp failed: %v", err)
		}
	}

	user := &models.User{Username: "alice", Groups: []string{"finance"}}
	authorized, err := svc.AuthorizedApps(ctx, user)
	if err != nil {
		t.Fatalf("AuthorizedApps failed: %v", err)
	}

	names := map[string]bool{}
	for _, app := range authorized {
		names[app.Name] = true
	}
	if len(authorized) != 2 || !names["public-app"] || !names["finance-app"] {
		t.Errorf("expected public-app and finance-app, got %v", names)
	}
}

func TestCatalog_IncludesEverythingRegardlessOfMode(t *testing.T) {
	svc, mgr := newTestService(t)
	ctx := context.Background()

	apps := []*models.App{
		{Name: "public-app", Port: 18502, AccessMode: models.AccessPublic, Active: true},
		{Name: "locked-app", Port: 18503, AccessMode: models.AccessNone, Active: true},
		{Name: "paused-app", Port: 18504, AccessMode: models.AccessPublic, Active: false},
	}
	for _, app := range apps {
		if err := mgr.AppStore().CreateApp(ctx, app); err != nil {
			t.Fatalf("CreateApp failed: %v", err)
		}
	}

	entries, err := svc.Catalog(ctx)
	if err != nil {
		t.Fatalf("Catalog failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected all 3 apps in catalog, got %d", len(entries))
	}
	// Nothing listens on these ports in the test environment.
	for _, entry := range entries {
		if entry.Running {
			t.Errorf("app %s should not probe as running", entry.Name)
		}
	}
}
