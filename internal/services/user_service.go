package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/isdelr/roleboard/internal/models"
	"github.com/isdelr/roleboard/internal/secret"
	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DBTX is the slice of database/sql the user store needs: find-one, find-all
// and exec, all parameterized.
type DBTX interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, username, password string, isAdmin bool) (models.User, error)
	UpdateProfilePic(ctx context.Context, id int64, pic string) error
	PromoteUser(ctx context.Context, id int64) error
}

// UserService reads and writes user rows. It owns no business rules beyond
// hashing passwords on the way in.
type UserService struct {
	db      DBTX
	timeout time.Duration
	cost    int
}

// NewUserService creates a new UserService. Every query is bounded by
// timeout; cost is the bcrypt work factor for new passwords.
func NewUserService(db DBTX, timeout time.Duration, cost int) *UserService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserService{db: db, timeout: timeout, cost: cost}
}

const userColumns = "id, username, password_hash, is_admin, profile_pic, created_at"

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var user models.User
	var createdAt sql.NullString
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.ProfilePic, &createdAt)
	user.CreatedAt = parseTimestamp(createdAt.String)
	return user, err
}

// parseTimestamp accepts both the CURRENT_TIMESTAMP text form and the
// RFC 3339 form the driver produces for DATETIME columns.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %d: %w", id, ErrUserNotFound)
		}
		return models.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return user, nil
}

// GetUserByUsername retrieves a single user by exact username, including the
// password hash.
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("get user by username: %w", err)
	}
	return user, nil
}

// ListUsers returns every user ordered by id, without password hashes.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.PasswordHash = ""
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// CreateUser creates a new user, hashing their password.
func (s *UserService) CreateUser(ctx context.Context, username, password string, isAdmin bool) (models.User, error) {
	if username == "" || password == "" {
		return models.User{}, fmt.Errorf("username and password are required: %w", ErrInvalidInput)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)",
		username, string(hashedPassword), isAdmin)
	if err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return models.User{}, fmt.Errorf("%q: %w", username, ErrUsernameTaken)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	// Return user without password hash
	return models.User{ID: id, Username: username, IsAdmin: isAdmin, CreatedAt: time.Now()}, nil
}

// UpdateProfilePic replaces the profile blob of user id.
func (s *UserService) UpdateProfilePic(ctx context.Context, id int64, pic string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.execOne(ctx, "UPDATE users SET profile_pic = ? WHERE id = ?", pic, id)
}

// PromoteUser sets the admin flag of user id. Promoting an admin is a no-op
// success; an unknown id is ErrUserNotFound.
func (s *UserService) PromoteUser(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.execOne(ctx, "UPDATE users SET is_admin = 1 WHERE id = ?", id)
}

func (s *UserService) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// EnsureAdmin creates the bootstrap administrator when no admin exists. It
// returns the generated password, or "" when nothing was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username string) (string, error) {
	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	var exists bool
	err := s.db.QueryRowContext(qctx, "SELECT EXISTS(SELECT 1 FROM users WHERE is_admin = 1)").Scan(&exists)
	cancel()
	if err != nil {
		return "", fmt.Errorf("check for admin: %w", err)
	}
	if exists {
		return "", nil
	}

	password, err := secret.Hex(8)
	if err != nil {
		return "", err
	}
	if _, err := s.CreateUser(ctx, username, password, true); err != nil {
		return "", fmt.Errorf("create admin: %w", err)
	}
	return password, nil
}
