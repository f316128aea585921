package portaldb

import (
	"context"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
)

// --- Sessions ---

func (s *Store) SaveSession(_ context.Context, session *models.Session) error {
	if err := s.db.Upsert(session.Token, session); err != nil {
		return fmt.Errorf("failed to save session '%s': %w", session.ID, err)
	}
	s.logger.Debug().Str("session_id", session.ID).Str("user_id", session.UserID).Msg("Session saved")
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (*models.Session, error) {
	var session models.Session
	if err := s.db.Get(token, &session); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("session: %w", interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (s *Store) GetSessionByID(_ context.Context, id string) (*models.Session, error) {
	var sessions []models.Session
	if err := s.db.Find(&sessions, badgerhold.Where("ID").Eq(id)); err != nil {
		return nil, fmt.Errorf("failed to find session '%s': %w", id, err)
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("session '%s': %w", id, interfaces.ErrNotFound)
	}
	return &sessions[0], nil
}

func (s *Store) RevokeSession(ctx context.Context, token string) error {
	session, err := s.GetSession(ctx, token)
	if err != nil {
		// Revoking an unknown session is a no-op; the caller's token is
		// dead either way.
		return nil
	}
	if session.Revoked {
		return nil
	}
	session.Revoked = true
	if err := s.db.Upsert(session.Token, session); err != nil {
		return fmt.Errorf("failed to revoke session '%s': %w", session.ID, err)
	}
	s.logger.Debug().Str("session_id", session.ID).Msg("Session revoked")
	return nil
}

func (s *Store) RevokeUserSessions(_ context.Context, userID string) (int, error) {
	var sessions []models.Session
	if err := s.db.Find(&sessions, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return 0, fmt.Errorf("failed to find sessions for user '%s': %w", userID, err)
	}
	count := 0
	for i := range sessions {
		if sessions[i].Revoked {
			continue
		}
		sessions[i].Revoked = true
		if err := s.db.Upsert(sessions[i].Token, &sessions[i]); err != nil {
			return count, fmt.Errorf("failed to revoke session '%s': %w", sessions[i].ID, err)
		}
		count++
	}
	return count, nil
}

func (s *Store) PurgeExpiredSessions(_ context.Context) (int, error) {
	var sessions []models.Session
	if err := s.db.Find(&sessions, badgerhold.Where("ExpiresAt").Lt(time.Now())); err != nil {
		return 0, fmt.Errorf("failed to find expired sessions: %w", err)
	}
	count := 0
	for i := range sessions {
		if err := s.db.Delete(sessions[i].Token, models.Session{}); err == nil {
			count++
		}
	}
	return count, nil
}
