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

// sessionRow is the DB-level representation of a portal session.
type sessionRow struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

func (r *sessionRow) toModel() *models.Session {
	return &models.Session{
		ID:        r.SessionID,
		UserID:    r.UserID,
		Token:     r.Token,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		Revoked:   r.Revoked,
	}
}

// tokenRow is the DB-level representation of a single-use access token.
type tokenRow struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	AppID     int64     `json:"app_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
}

func (r *tokenRow) toModel() *models.AccessToken {
	return &models.AccessToken{
		Token:     r.Token,
		SessionID: r.SessionID,
		UserID:    r.UserID,
		AppID:     r.AppID,
		IssuedAt:  r.IssuedAt,
		ExpiresAt: r.ExpiresAt,
		Consumed:  r.Consumed,
	}
}

// AccessStore implements interfaces.SessionStore and interfaces.TokenStore
// using SurrealDB.
type AccessStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewAccessStore creates a new AccessStore.
func NewAccessStore(db *surrealdb.DB, logger *common.Logger) *AccessStore {
	return &AccessStore{db: db, logger: logger}
}

const sessionFields = "session_id, user_id, token, created_at, expires_at, revoked"

// --- Sessions ---

func (s *AccessStore) SaveSession(ctx context.Context, session *models.Session) error {
	sql := `UPSERT $rid SET
		session_id = $session_id, user_id = $user_id, token = $token,
		created_at = $created_at, expires_at = $expires_at, revoked = $revoked`
	vars := map[string]any{
		"rid":        recordID("session", session.Token),
		"session_id": session.ID,
		"user_id":    session.UserID,
		"token":      session.Token,
		"created_at": session.CreatedAt,
		"expires_at": session.ExpiresAt,
		"revoked":    session.Revoked,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save session '%s': %w", session.ID, err)
	}
	s.logger.Debug().Str("session_id", session.ID).Str("user_id", session.UserID).Msg("Session saved")
	return nil
}

func (s *AccessStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	sql := "SELECT " + sessionFields + " FROM $rid"
	vars := map[string]any{"rid": recordID("session", token)}
	results, err := surrealdb.Query[[]sessionRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("session: %w", interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("session: %w", interfaces.ErrNotFound)
	}
	row := (*results)[0].Result[0]
	return row.toModel(), nil
}

func (s *AccessStore) GetSessionByID(ctx context.Context, id string) (*models.Session, error) {
	sql := "SELECT " + sessionFields + " FROM session WHERE session_id = $session_id"
	vars := map[string]any{"session_id": id}
	results, err := surrealdb.Query[[]sessionRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to find session '%s': %w", id, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("session '%s': %w", id, interfaces.ErrNotFound)
	}
	row := (*results)[0].Result[0]
	return row.toModel(), nil
}

func (s *AccessStore) RevokeSession(ctx context.Context, token string) error {
	sql := "UPDATE $rid SET revoked = true"
	vars := map[string]any{"rid": recordID("session", token)}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *AccessStore) RevokeUserSessions(ctx context.Context, userID string) (int, error) {
	sql := "UPDATE session SET revoked = true WHERE user_id = $user_id AND revoked = false RETURN AFTER"
	vars := map[string]any{"user_id": userID}
	results, err := surrealdb.Query[[]sessionRow](ctx, s.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions for user '%s': %w", userID, err)
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

func (s *AccessStore) PurgeExpiredSessions(ctx context.Context) (int, error) {
	sql := "DELETE FROM session WHERE expires_at < $now"
	vars := map[string]any{"now": time.Now()}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	// SurrealDB DELETE doesn't return count easily; return 0 as best effort
	return 0, nil
}

// --- Access tokens ---

const tokenFields = "token, session_id, user_id, app_id, issued_at, expires_at, consumed"

func (s *AccessStore) SaveToken(ctx context.Context, token *models.AccessToken) error {
	sql := `UPSERT $rid SET
		token = $token, session_id = $session_id, user_id = $user_id,
		app_id = $app_id, issued_at = $issued_at, expires_at = $expires_at,
		consumed = $consumed`
	vars := map[string]any{
		"rid":        recordID("access_token", token.Token),
		"token":      token.Token,
		"session_id": token.SessionID,
		"user_id":    token.UserID,
		"app_id":     token.AppID,
		"issued_at":  token.IssuedAt,
		"expires_at": token.ExpiresAt,
		"consumed":   token.Consumed,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

func (s *AccessStore) GetToken(ctx context.Context, token string) (*models.AccessToken, error) {
	sql := "SELECT " + tokenFields + " FROM $rid"
	vars := map[string]any{"rid": recordID("access_token", token)}
	results, err := surrealdb.Query[[]tokenRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("access token: %w", interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("access token: %w", interfaces.ErrNotFound)
	}
	row := (*results)[0].Result[0]
	return row.toModel(), nil
}

// ConsumeToken flips consumed in a single conditional UPDATE so the database
// serializes concurrent presenters; an empty result means someone else won
// (or the token never existed) and a follow-up read distinguishes the two.
func (s *AccessStore) ConsumeToken(ctx context.Context, token string) (*models.AccessToken, error) {
	sql := "UPDATE $rid SET consumed = true WHERE consumed = false RETURN AFTER"
	vars := map[string]any{"rid": recordID("access_token", token)}
	results, err := surrealdb.Query[[]tokenRow](ctx, s.db, sql, vars)
	if err != nil && !isNotFoundError(err) {
		return nil, fmt.Errorf("failed to consume access token: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		row := (*results)[0].Result[0]
		return row.toModel(), nil
	}

	if _, err := s.GetToken(ctx, token); err != nil {
		return nil, err
	}
	return nil, interfaces.ErrAlreadyConsumed
}

func (s *AccessStore) PurgeExpiredTokens(ctx context.Context) (int, error) {
	sql := "DELETE FROM access_token WHERE expires_at < $now"
	vars := map[string]any{"now": time.Now()}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	return 0, nil
}

// Compile-time checks
var (
	_ interfaces.SessionStore = (*AccessStore)(nil)
	_ interfaces.TokenStore   = (*AccessStore)(nil)
)
