package access

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
	"github.com/bobmcallan/gatehouse/internal/services/directory"
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

	dir := directory.NewService(mgr, logger, cfg)
	return NewService(mgr, dir, logger, cfg), mgr
}

func seedUser(t *testing.T, mgr interfaces.StorageManager, username, password string, groups ...string) {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Groups:       groups,
	}
	if err := mgr.UserStore().SaveUser(context.Background(), user); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
}

func seedApp(t *testing.T, mgr interfaces.StorageManager, name string, port int, mode string, groups ...string) *models.App {
	t.Helper()
	app := &models.App{
		Name:       name,
		Port:       port,
		AccessMode: mode,
		Groups:     groups,
		Active:     true,
	}
	if err := mgr.AppStore().CreateApp(context.Background(), app); err != nil {
		t.Fatalf("CreateApp failed: %v", err)
	}
	return app
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !VerifyPassword(hash, "secret") {
		t.Error("correct password should verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Error("wrong password should not verify")
	}

	// bcrypt only sees the first 72 bytes; anything past that is ignored.
	long := strings.Repeat("x", 80)
	hash, err = HashPassword(long)
	if err != nil {
		t.Fatalf("HashPassword of long input failed: %v", err)
	}
	if !VerifyPassword(hash, strings.Repeat("x", 72)) {
		t.Error("72-byte prefix of long password should verify")
	}
}

func TestLogin_Success(t *testing.T) {
	svc, mgr := newTestService(t)
	seedUser(t, mgr, "alice", "secret")

	session, user, err := svc.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session.Token == "" || session.ID == "" {
		t.Error("expected populated session")
	}
	if user.Username != "alice" {
		t.Errorf("expected alice, got %s", user.Username)
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Error("session should expire in the future")
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	svc, mgr := newTestService(t)
	seedUser(t, mgr, "alice", "secret")

	disabled := &models.User{Username: "mallory", Disabled: true}
	hash, _ := HashPassword("secret")
	disabled.PasswordHash = hash
	if err := mgr.UserStore().SaveUser(context.Background(), disabled); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"unknown user", "nobody", "secret"},
		{"wrong password", "alice", "wrong"},
		{"disabled account", "mallory", "secret"},
	}
	for _, tc := range cases {
		_, _, err := svc.Login(context.Background(), tc.username, tc.password)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: expected ErrInvalidCredentials, got %v", tc.name, err)
		}
	}
}

func TestLogin_RevokesPriorSessions(t *testing.T) {
	svc, mgr := newTestService(t)
	ctx := context.Background()
	seedUser(t, mgr, "alice", "secret")

	first, _, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("first Login failed: %v", err)
	}
	second, _, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}

	if _, _, err := svc.Authenticate(ctx, first.Token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("first session should be revoked by second login, got %v", err)
	}
	if _, _, err := svc.Authenticate(ctx, second.Token); err != nil {
		t.Errorf("second session should be live: %v", err)
	}
}

func TestAuthenticate_LifecycleChecks(t *testing.T) {
	svc, mgr := newTestService(t)
	seedUser(t, mgr, "alice", "secret")

	session, _, err := svc.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, _, err := svc.Authenticate(context.Background(), session.Token); err != nil {
		t.Fatalf("Authenticate failed for live session: %v", err)
	}

	if err := svc.Logout(context.Background(), session.Token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, _, err := svc.Authenticate(context.Background(), session.Token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized after logout, got %v", err)
	}
	if _, _, err := svc.Authenticate(context.Background(), "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for unknown token, got %v", err)
	}
}

func TestIssue_AuthorizationGates(t *testing.T) {
	svc, mgr := newTestService(t)
	ctx := context.Background()
	seedUser(t, mgr, "alice", "secret", "finance")
	public := seedApp(t, mgr, "public-app", 8502, models.AccessPublic)
	restricted := seedApp(t, mgr, "finance-app", 8503, models.AccessGroups, "finance")
	forbidden := seedApp(t, mgr, "hr-app", 8504, models.AccessGroups, "hr")
	hidden := seedApp(t, mgr, "locked-app", 8505, models.AccessNone)

	session, _, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := svc.Issue(ctx, session.Token, public.ID); err != nil {
		t.Errorf("public app should issue: %v", err)
	}
	if _, err := svc.Issue(ctx, session.Token, restricted.ID); err != nil {
		t.Errorf("matching group should issue: %v", err)
	}
	if _, err := svc.Issue(ctx, session.Token, forbidden.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-member group app: expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Issue(ctx, session.Token, hidden.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("mode none: expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Issue(ctx, session.Token, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown app: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Issue(ctx, "dead-token", public.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("dead session: expected ErrUnauthorized, got %v", err)
	}
}

func TestIssue_InactiveAppIsNotFound(t *testing.T) {
	svc, mgr := newTestService(t)
	ctx := context.Background()
	seedUser(t, mgr, "alice", "secret")
	app := seedApp(t, mgr, "paused-app", 8502, models.AccessPublic)

	app.Active = false
	if err := mgr.AppStore().SaveApp(ctx, app); err != nil {
		t.Fatalf("SaveApp failed: %v", err)
	}

	session, _, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := svc.Issue(ctx, session.Token, app.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("inactive app: expected ErrNotFound, got %v", err)
	}
}

func TestConsume_HappyPath(t *testing.T) {
	svc, mgr := newTestService(t)
	ctx := context.Background()
	seedUser(t, mgr, "alice", "secret")
	app := seedApp(t, mgr, "reports", 8502, models.AccessPublic)

	session, _, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	token, err := svc.Issue(ctx, session.Token, app.ID)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	at, err := svc.Consume(ctx, token.Token, app.ID)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if at.UserID != "alice" || at.AppID != app.ID {
		t.Errorf("unexpected token record: %+v", at)
	}
}

func TestConsume_DenialReasons(t *testing.T) {
	svc, mgr := newTestService(t)
	ctx := context.Background()
	seedUser(t, mgr, "alice", "secret")
	reports := seedApp(t, mgr, "reports", 8502, models.AccessPublic)
	forecasts := seedApp(t, mgr, "forecasts", 8503, models.AccessPublic)

	login := func() *models.Session {
		session, _, err := svc.Login(ctx, "alice", "secret")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		return session
	}
	issue := func(session *models.Session, appID int64) *models.AccessToken {
		token, err := svc.Issue(ctx, session.Token, appID)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		return token
	}
	wantReason := func(err error, want DeniedReason) {
		t.Helper()
		reason, ok := ReasonOf(err)
		if !ok {
			t.Fatalf("expected DeniedError, got %v", err)
		}
		if reason != want {
			t.Errorf("expected reason %s, got %s", want, reason)
		}
	}

	// Unknown token.
	_, err := svc.Consume(ctx, "never-issued", reports.ID)
	wantReason(err, DenyInvalidToken)

	// Replay: second presentation of a consumed token.
	session := login()
	token := issue(session, reports.ID)
	if _, err := svc.Consume(ctx, token.Token, reports.ID); err != nil {
		t.Fatalf("first Consume failed: %v", err)
	}
	_, err = svc.Consume(ctx, token.Token, reports.ID)
	wantReason(err, DenyReplay)

	// App mismatch: token for reports presented at forecasts. The token is
	// burned either way.
	token = issue(session, reports.ID)
	_, err = svc.Consume(ctx, token.Token, forecasts.ID)
	wantReason(err, DenyAppMismatch)
	_, err = svc.Consume(ctx, token.Token, reports.ID)
	wantReason(err, DenyReplay)

	// Session revoked after issue: the token dies with it.
	token = issue(session, reports.ID)
	if err := svc.Logout(ctx, session.Token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	_, err = svc.Consume(ctx, token.Token, reports.ID)
	wantReason(err, DenySessionRevoked)
}

func TestConsume_ExpiredToken(t *testing.T) {
	svc, mgr := newTestService(t)
	ctx := context.Background()
	seedUser(t, mgr, "alice", "secret")
	app := seedApp(t, mgr, "reports", 8502, models.AccessPublic)

	session, _, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Plant a token that expired a minute ago, bound to the live session.
	expired := &models.AccessToken{
		Token:     "stale",
		SessionID: session.ID,
		UserID:    "alice",
		AppID:     app.ID,
		IssuedAt:  time.Now().Add(-2 * time.Minute),
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := mgr.TokenStore().SaveToken(ctx, expired); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	_, err = svc.Consume(ctx, "stale", app.ID)
	reason, ok := ReasonOf(err)
	if !ok || reason != DenyExpired {
		t.Errorf("expected expired denial, got %v", err)
	}
}

func TestConsume_ConcurrentSingleWinner(t *testing.T) {
	svc, mgr := newTestService(t)
	ctx := context.Background()
	seedUser(t, mgr, "alice", "secret")
	app := seedApp(t, mgr, "reports", 8502, models.AccessPublic)

	session, _, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	token, err := svc.Issue(ctx, session.Token, app.ID)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	const presenters = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < presenters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Consume(ctx, token.Token, app.ID); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
}
