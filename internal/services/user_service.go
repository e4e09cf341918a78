package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/isdelr/todo-auth-be/internal/auth"
	"github.com/isdelr/todo-auth-be/internal/common"
	"github.com/isdelr/todo-auth-be/internal/database"
	"github.com/isdelr/todo-auth-be/internal/models"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]models.User, error)
	CreateUser(ctx context.Context, username, email, password string) (models.User, error)
	UpdateUser(ctx context.Context, actingID, id int64, username, email, password string) (models.User, error)
	ActivateUser(ctx context.Context, email string) (models.User, error)
	DeleteUser(ctx context.Context, actingID, id int64) error
}

// UserService provides business logic for user management.
type UserService struct {
	db     *database.DB
	hasher auth.PasswordHasher
	events EventServiceProvider
}

// NewUserService creates a new UserService.
func NewUserService(db *database.DB, hasher auth.PasswordHasher, events EventServiceProvider) *UserService {
	return &UserService{db: db, hasher: hasher, events: events}
}

const userColumns = "id, username, email, password_hash, is_active, created_at"

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("user with ID %d: %w", id, err)
	}
	return user, nil
}

// GetUserByEmail retrieves a single user by their email, including the password hash.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT "+userColumns+" FROM users WHERE email = ?"), email)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, fmt.Errorf("user with email %s: %w", email, err)
	}
	return user, nil
}

// ListUsers returns a page of users ordered by ID.
func (s *UserService) ListUsers(ctx context.Context, offset, limit int) ([]models.User, error) {
	offset, limit = normalizePage(offset, limit)
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind("SELECT "+userColumns+" FROM users ORDER BY id LIMIT ? OFFSET ?"), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateUser creates a new, inactive user, hashing their password.
func (s *UserService) CreateUser(ctx context.Context, username, email, password string) (models.User, error) {
	taken, err := s.usernameTaken(ctx, username, 0)
	if err != nil {
		return models.User{}, err
	}
	if taken {
		return models.User{}, fmt.Errorf("username %s: %w", username, common.ErrConflict)
	}

	hashedPassword, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
	}

	err = s.db.QueryRowContext(ctx,
		s.db.Rebind("INSERT INTO users (username, email, password_hash, is_active) VALUES (?, ?, ?, ?) RETURNING id"),
		user.Username, user.Email, user.PasswordHash, false).Scan(&user.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user %s / %s: %w", username, email, common.ErrConflict)
		}
		return models.User{}, err
	}

	recordEvent(ctx, s.events, "user.register", LevelInfo, fmt.Sprintf("Account '%s' registered.", username), &user.ID)

	// Return user without password hash
	user.PasswordHash = ""
	return user, nil
}

// UpdateUser replaces a user's profile. Only the user itself may do so.
func (s *UserService) UpdateUser(ctx context.Context, actingID, id int64, username, email, password string) (models.User, error) {
	if err := auth.AuthorizeOwner(id, actingID); err != nil {
		return models.User{}, err
	}
	if _, err := s.GetUserByID(ctx, id); err != nil {
		return models.User{}, err
	}

	taken, err := s.usernameTaken(ctx, username, id)
	if err != nil {
		return models.User{}, err
	}
	if taken {
		return models.User{}, fmt.Errorf("username %s: %w", username, common.ErrConflict)
	}

	hashedPassword, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, err
	}

	_, err = s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE users SET username = ?, email = ?, password_hash = ? WHERE id = ?"),
		username, email, hashedPassword, id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.User{}, fmt.Errorf("user %s / %s: %w", username, email, common.ErrConflict)
		}
		return models.User{}, err
	}

	recordEvent(ctx, s.events, "user.update", LevelInfo, "Profile updated.", &id)
	return s.GetUserByID(ctx, id)
}

// ActivateUser marks the user with email as active. Activating an already
// active user is a no-op.
func (s *UserService) ActivateUser(ctx context.Context, email string) (models.User, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE users SET is_active = ? WHERE email = ?"), true, email)
	if err != nil {
		return models.User{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.User{}, fmt.Errorf("user with email %s: %w", email, common.ErrNotFound)
	}
	return s.GetUserByEmail(ctx, email)
}

// DeleteUser removes a user and, by cascade, their todos and events.
func (s *UserService) DeleteUser(ctx context.Context, actingID, id int64) error {
	if err := auth.AuthorizeOwner(id, actingID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user with ID %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// usernameTaken reports whether another user (not exceptID) has username.
func (s *UserService) usernameTaken(ctx context.Context, username string, exceptID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind("SELECT COUNT(*) FROM users WHERE username = ? AND id <> ?"), username, exceptID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanUser is a helper function to scan a single row into a User struct.
func scanUser(scanner interface{ Scan(...interface{}) error }) (models.User, error) {
	var user models.User
	err := scanner.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.IsActive, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, common.ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// Page size bounds shared by the list endpoints.
const (
	DefaultPageSize = 100
	MaxPageSize     = 100
)

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	return offset, limit
}
