package portaldb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
)

// --- User accounts ---

func (s *Store) GetUser(_ context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.Get(username, &user); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("user '%s': %w", username, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user '%s': %w", username, err)
	}
	return &user, nil
}

func (s *Store) SaveUser(_ context.Context, user *models.User) error {
	now := time.Now()
	var existing models.User
	if err := s.db.Get(user.Username, &existing); err == nil {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if err := s.db.Upsert(user.Username, user); err != nil {
		return fmt.Errorf("failed to save user '%s': %w", user.Username, err)
	}
	s.logger.Debug().Str("username", user.Username).Msg("User saved")
	return nil
}

func (s *Store) DeleteUser(_ context.Context, username string) error {
	if err := s.db.Delete(username, models.User{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete user '%s': %w", username, err)
	}
	s.logger.Debug().Str("username", username).Msg("User deleted")
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]*models.User, error) {
	var users []models.User
	if err := s.db.Find(&users, nil); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	result := make([]*models.User, len(users))
	for i := range users {
		result[i] = &users[i]
	}
	return result, nil
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	var users []models.User
	if err := s.db.Find(&users, nil); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return len(users), nil
}

// --- Groups ---

func (s *Store) GetGroup(_ context.Context, name string) (*models.Group, error) {
	var group models.Group
	if err := s.db.Get(name, &group); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("group '%s': %w", name, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group '%s': %w", name, err)
	}
	return &group, nil
}

func (s *Store) SaveGroup(_ context.Context, group *models.Group) error {
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	if err := s.db.Upsert(group.Name, group); err != nil {
		return fmt.Errorf("failed to save group '%s': %w", group.Name, err)
	}
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, name string) error {
	if err := s.db.Delete(name, models.Group{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete group '%s': %w", name, err)
	}
	return nil
}

func (s *Store) ListGroups(_ context.Context) ([]*models.Group, error) {
	var groups []models.Group
	if err := s.db.Find(&groups, nil); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	result := make([]*models.Group, len(groups))
	for i := range groups {
		result[i] = &groups[i]
	}
	return result, nil
}
