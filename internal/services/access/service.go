package access

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
)

// Service implements interfaces.AccessService.
type Service struct {
	storage   interfaces.StorageManager
	directory interfaces.DirectoryService
	logger    *common.Logger

	sessionTTL time.Duration
	tokenTTL   time.Duration
}

// NewService creates the access service.
func NewService(storage interfaces.StorageManager, directory interfaces.DirectoryService, logger *common.Logger, config *common.Config) *Service {
	return &Service{
		storage:    storage,
		directory:  directory,
		logger:     logger,
		sessionTTL: config.Security.GetSessionExpiry(),
		tokenTTL:   config.Security.GetTokenExpiry(),
	}
}

// generateToken returns a 256-bit crypto-random URL-safe token.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashPassword hashes a password with bcrypt. Input is truncated to 72
// bytes, bcrypt's limit.
func HashPassword(password string) (string, error) {
	bytes := []byte(password)
	if len(bytes) > 72 {
		bytes = bytes[:72]
	}
	hash, err := bcrypt.GenerateFromPassword(bytes, 10)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a password against its bcrypt hash.
func VerifyPassword(hash, password string) bool {
	bytes := []byte(password)
	if len(bytes) > 72 {
		bytes = bytes[:72]
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), bytes) == nil
}

// --- Sessions ---

// Login authenticates a user and creates a fresh portal session. Any prior
// active sessions for the user are revoked so one browser holds the floor.
func (s *Service) Login(ctx context.Context, username, password string) (*models.Session, *models.User, error) {
	user, err := s.storage.UserStore().GetUser(ctx, username)
	if err != nil {
		// Same error as a bad password; do not reveal which usernames exist.
		return nil, nil, ErrInvalidCredentials
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, nil, ErrInvalidCredentials
	}

	if _, err := s.storage.SessionStore().RevokeUserSessions(ctx, user.Username); err != nil {
		s.logger.Warn().Err(err).Str("username", user.Username).Msg("Failed to revoke prior sessions")
	}

	token, err := generateToken()
	if err != nil {
		return nil, nil, err
	}
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New().String(),
		UserID:    user.Username,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.storage.SessionStore().SaveSession(ctx, session); err != nil {
		return nil, nil, err
	}

	s.logger.Info().Str("username", user.Username).Str("session_id", session.ID).Msg("User logged in")
	return session, user, nil
}

// Logout revokes the session. Revoking an unknown or already-revoked
// session is not an error.
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	return s.storage.SessionStore().RevokeSession(ctx, sessionToken)
}

// Authenticate resolves a session token to its live session and user.
func (s *Service) Authenticate(ctx context.Context, sessionToken string) (*models.Session, *models.User, error) {
	session, err := s.storage.SessionStore().GetSession(ctx, sessionToken)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	if !session.Valid(time.Now()) {
		return nil, nil, ErrUnauthorized
	}
	user, err := s.storage.UserStore().GetUser(ctx, session.UserID)
	if err != nil || user.Disabled {
		return nil, nil, ErrUnauthorized
	}
	return session, user, nil
}

// RevokeUserSessions revokes every active session for the user. Outstanding
// access tokens die with them on their next validation.
func (s *Service) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	return s.storage.SessionStore().RevokeUserSessions(ctx, userID)
}

// --- Access tokens ---

// Issue mints a single-use access token for one app, bound to the session.
func (s *Service) Issue(ctx context.Context, sessionToken string, appID int64) (*models.AccessToken, error) {
	session, user, err := s.Authenticate(ctx, sessionToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	app, err := s.storage.AppStore().GetApp(ctx, appID)
	if err != nil || !app.Active {
		return nil, ErrNotFound
	}

	if !s.directory.IsAuthorized(ctx, user, app) {
		s.logger.Warn().Str("username", user.Username).Int64("app_id", appID).Msg("Token refused: app not authorized for user")
		return nil, ErrUnauthorized
	}

	// Housekeeping; stale tokens are harmless but pile up.
	if _, err := s.storage.TokenStore().PurgeExpiredTokens(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to purge expired tokens")
	}

	value, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	token := &models.AccessToken{
		Token:     value,
		SessionID: session.ID,
		UserID:    user.Username,
		AppID:     app.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.tokenTTL),
	}
	if err := s.storage.TokenStore().SaveToken(ctx, token); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("username", user.Username).
		Str("session_id", session.ID).
		Int64("app_id", app.ID).
		Time("expires_at", token.ExpiresAt).
		Msg("Access token issued")
	return token, nil
}

// Consume validates and atomically consumes a token for the given app.
// Consumption happens first so a replayed token is burned even when a later
// check fails; exactly one concurrent presenter gets past the store.
func (s *Service) Consume(ctx context.Context, token string, appID int64) (*models.AccessToken, error) {
	at, err := s.storage.TokenStore().ConsumeToken(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrNotFound):
			return nil, s.deny(DenyInvalidToken, appID, nil)
		case errors.Is(err, interfaces.ErrAlreadyConsumed):
			return nil, s.deny(DenyReplay, appID, nil)
		default:
			return nil, err
		}
	}

	if at.Expired(time.Now()) {
		return nil, s.deny(DenyExpired, appID, at)
	}
	if at.AppID != appID {
		return nil, s.deny(DenyAppMismatch, appID, at)
	}

	session, err := s.storage.SessionStore().GetSessionByID(ctx, at.SessionID)
	if err != nil || !session.Valid(time.Now()) {
		return nil, s.deny(DenySessionRevoked, appID, at)
	}

	s.logger.Info().
		Str("username", at.UserID).
		Str("session_id", at.SessionID).
		Int64("app_id", appID).
		Msg("Access token consumed")
	return at, nil
}

// deny logs the specific rejection reason and returns the generic denial.
func (s *Service) deny(reason DeniedReason, appID int64, at *models.AccessToken) error {
	evt := s.logger.Warn().
		Str("reason", string(reason)).
		Int64("requested_app_id", appID)
	if at != nil {
		evt = evt.Str("username", at.UserID).Str("session_id", at.SessionID).Int64("token_app_id", at.AppID)
	}
	evt.Msg("Access token rejected")
	return Denied(reason)
}

// Compile-time check
var _ interfaces.AccessService = (*Service)(nil)
