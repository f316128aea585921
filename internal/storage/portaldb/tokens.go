package portaldb

import (
	"context"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
)

// --- Access tokens ---

func (s *Store) SaveToken(_ context.Context, token *models.AccessToken) error {
	if err := s.db.Upsert(token.Token, token); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(_ context.Context, token string) (*models.AccessToken, error) {
	var at models.AccessToken
	if err := s.db.Get(token, &at); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("access token: %w", interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return &at, nil
}

// ConsumeToken marks the token consumed. The mutex makes the
// read-check-write atomic within this process; exactly one concurrent
// presenter observes Consumed=false.
func (s *Store) ConsumeToken(_ context.Context, token string) (*models.AccessToken, error) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	var at models.AccessToken
	if err := s.db.Get(token, &at); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("access token: %w", interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	if at.Consumed {
		return nil, interfaces.ErrAlreadyConsumed
	}
	at.Consumed = true
	if err := s.db.Upsert(token, &at); err != nil {
		return nil, fmt.Errorf("failed to consume access token: %w", err)
	}
	return &at, nil
}

func (s *Store) PurgeExpiredTokens(_ context.Context) (int, error) {
	var tokens []models.AccessToken
	if err := s.db.Find(&tokens, badgerhold.Where("ExpiresAt").Lt(time.Now())); err != nil {
		return 0, fmt.Errorf("failed to find expired tokens: %w", err)
	}
	count := 0
	for i := range tokens {
		if err := s.db.Delete(tokens[i].Token, models.AccessToken{}); err == nil {
			count++
		}
	}
	return count, nil
}
