package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/interfaces"
	"github.com/bobmcallan/gatehouse/internal/models"
)

// recordID builds a SurrealDB record ID for a table row.
func recordID(table string, id any) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(table, id)
}

// userRow is the DB-level representation of a portal user.
type userRow struct {
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	Groups       []string  `json:"groups"`
	Disabled     bool      `json:"disabled"`
	MustChange   bool      `json:"must_change"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *userRow) toModel() *models.User {
	return &models.User{
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Groups:       r.Groups,
		Disabled:     r.Disabled,
		MustChange:   r.MustChange,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// groupRow is the DB-level representation of a user group.
type groupRow struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserStore implements interfaces.UserStore and interfaces.GroupStore
// using SurrealDB.
type UserStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *surrealdb.DB, logger *common.Logger) *UserStore {
	return &UserStore{db: db, logger: logger}
}

// --- Users ---

func (s *UserStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	sql := "SELECT username, display_name, email, password_hash, role, groups, disabled, must_change, created_at, updated_at FROM $rid"
	vars := map[string]any{"rid": recordID("user", username)}
	results, err := surrealdb.Query[[]userRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("user '%s': %w", username, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user '%s': %w", username, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("user '%s': %w", username, interfaces.ErrNotFound)
	}
	row := (*results)[0].Result[0]
	return row.toModel(), nil
}

func (s *UserStore) SaveUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	sql := `UPSERT $rid SET
		username = $username, display_name = $display_name, email = $email,
		password_hash = $password_hash, role = $role, groups = $groups,
		disabled = $disabled, must_change = $must_change,
		created_at = $created_at, updated_at = $updated_at`
	vars := map[string]any{
		"rid":           recordID("user", user.Username),
		"username":      user.Username,
		"display_name":  user.DisplayName,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"role":          user.Role,
		"groups":        user.Groups,
		"disabled":      user.Disabled,
		"must_change":   user.MustChange,
		"created_at":    user.CreatedAt,
		"updated_at":    user.UpdatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save user '%s': %w", user.Username, err)
	}
	s.logger.Debug().Str("username", user.Username).Msg("User saved")
	return nil
}

func (s *UserStore) DeleteUser(ctx context.Context, username string) error {
	rid := recordID("user", username)
	if _, err := surrealdb.Delete[userRow](ctx, s.db, rid); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete user '%s': %w", username, err)
	}
	return nil
}

func (s *UserStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	sql := "SELECT username, display_name, email, password_hash, role, groups, disabled, must_change, created_at, updated_at FROM user ORDER BY username"
	results, err := surrealdb.Query[[]userRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var users []*models.User
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			users = append(users, (*results)[0].Result[i].toModel())
		}
	}
	return users, nil
}

func (s *UserStore) CountUsers(ctx context.Context) (int, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// --- Groups ---

func (s *UserStore) GetGroup(ctx context.Context, name string) (*models.Group, error) {
	sql := "SELECT name, description, created_at FROM $rid"
	vars := map[string]any{"rid": recordID("user_group", name)}
	results, err := surrealdb.Query[[]groupRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("group '%s': %w", name, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group '%s': %w", name, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("group '%s': %w", name, interfaces.ErrNotFound)
	}
	row := (*results)[0].Result[0]
	return &models.Group{Name: row.Name, Description: row.Description, CreatedAt: row.CreatedAt}, nil
}

func (s *UserStore) SaveGroup(ctx context.Context, group *models.Group) error {
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	sql := "UPSERT $rid SET name = $name, description = $description, created_at = $created_at"
	vars := map[string]any{
		"rid":         recordID("user_group", group.Name),
		"name":        group.Name,
		"description": group.Description,
		"created_at":  group.CreatedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save group '%s': %w", group.Name, err)
	}
	return nil
}

func (s *UserStore) DeleteGroup(ctx context.Context, name string) error {
	rid := recordID("user_group", name)
	if _, err := surrealdb.Delete[groupRow](ctx, s.db, rid); err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to delete group '%s': %w", name, err)
	}
	return nil
}

func (s *UserStore) ListGroups(ctx context.Context) ([]*models.Group, error) {
	sql := "SELECT name, description, created_at FROM user_group ORDER BY name"
	results, err := surrealdb.Query[[]groupRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	var groups []*models.Group
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			row := (*results)[0].Result[i]
			groups = append(groups, &models.Group{Name: row.Name, Description: row.Description, CreatedAt: row.CreatedAt})
		}
	}
	return groups, nil
}

// Compile-time checks
var (
	_ interfaces.UserStore  = (*UserStore)(nil)
	_ interfaces.GroupStore = (*UserStore)(nil)
)
