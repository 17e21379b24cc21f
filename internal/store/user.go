package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pitchingcoachu/portal/internal/database"
	"github.com/pitchingcoachu/portal/internal/model"
)

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("store: not found")

type UserStore struct {
	db database.DBTX
}

func NewUserStore(db database.DBTX) *UserStore {
	return &UserStore{db: db}
}

// Columns added by schema repair may be NULL on rows that predate them.
func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var name, passwordHash, appURL sql.NullString
	var createdAt, updatedAt sql.NullTime

	err := scanner.Scan(&u.ID, &u.Email, &name, &passwordHash, &appURL, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	u.PasswordHash = passwordHash.String
	u.AppURL = appURL.String
	u.CreatedAt = createdAt.Time
	u.UpdatedAt = updatedAt.Time
	return &u, nil
}

const userCols = `id, email, name, password_hash, app_url, created_at, updated_at`

// GetByEmail returns the user with the normalized email, or nil.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM auth_users WHERE email = ?`, model.NormalizeEmail(email))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// Create inserts u with a normalized email and returns the stored row.
func (s *UserStore) Create(ctx context.Context, u *model.User, now time.Time) (*model.User, error) {
	now = now.UTC()
	var name sql.NullString
	if n := strings.TrimSpace(u.Name); n != "" {
		name = sql.NullString{String: n, Valid: true}
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO auth_users (email, name, password_hash, app_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		model.NormalizeEmail(u.Email), name, u.PasswordHash, strings.TrimSpace(u.AppURL), now, now,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.getByID(ctx, id)
}

func (s *UserStore) getByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM auth_users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// BackfillProfile fills app_url and name only where the stored value is
// empty. Existing values always win. It reports whether a row changed.
func (s *UserStore) BackfillProfile(ctx context.Context, email, appURL, name string, now time.Time) (bool, error) {
	existing, err := s.GetByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, ErrNotFound
	}

	var sets []string
	var args []any
	if strings.TrimSpace(existing.AppURL) == "" && strings.TrimSpace(appURL) != "" {
		sets = append(sets, "app_url = ?")
		args = append(args, strings.TrimSpace(appURL))
	}
	if strings.TrimSpace(existing.Name) == "" && strings.TrimSpace(name) != "" {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(name))
	}
	if len(sets) == 0 {
		return false, nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now.UTC(), existing.Email)

	_, err = s.db.ExecContext(ctx, `UPDATE auth_users SET `+strings.Join(sets, ", ")+` WHERE email = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("backfill user profile: %w", err)
	}
	return true, nil
}

// UpdatePasswordHash replaces the stored hash for email.
func (s *UserStore) UpdatePasswordHash(ctx context.Context, email, hash string, now time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE auth_users SET password_hash = ?, updated_at = ? WHERE email = ?`,
		hash, now.UTC(), model.NormalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
