package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pitchingcoachu/portal/internal/database"
	"github.com/pitchingcoachu/portal/internal/model"
)

type ResetTokenStore struct {
	db database.DBTX
}

func NewResetTokenStore(db database.DBTX) *ResetTokenStore {
	return &ResetTokenStore{db: db}
}

func scanResetToken(scanner interface{ Scan(...any) error }) (*model.ResetToken, error) {
	var rt model.ResetToken
	var usedAt sql.NullTime

	err := scanner.Scan(&rt.ID, &rt.UserEmail, &rt.TokenHash, &rt.ExpiresAt, &usedAt, &rt.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		rt.UsedAt = &usedAt.Time
	}
	return &rt, nil
}

const resetTokenCols = `id, user_email, token_hash, expires_at, used_at, created_at`

// Create stores the hash of a freshly issued token.
func (s *ResetTokenStore) Create(ctx context.Context, email, tokenHash string, expiresAt, now time.Time) (*model.ResetToken, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO password_reset_tokens (user_email, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		email, tokenHash, expiresAt.UTC(), now.UTC(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert reset token: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+resetTokenCols+` FROM password_reset_tokens WHERE id = ?`, id)
	rt, err := scanResetToken(row)
	if err != nil {
		return nil, fmt.Errorf("get reset token: %w", err)
	}
	return rt, nil
}

func (s *ResetTokenStore) GetByHash(ctx context.Context, tokenHash string) (*model.ResetToken, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resetTokenCols+` FROM password_reset_tokens WHERE token_hash = ?`, tokenHash)
	rt, err := scanResetToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reset token: %w", err)
	}
	return rt, nil
}

// Claim marks the token used if it is unused and unexpired at now, and
// returns its email. A single conditional update, so of two concurrent
// claims at most one matches. It returns "" when nothing was claimable.
func (s *ResetTokenStore) Claim(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	now = now.UTC()
	var email string
	err := s.db.QueryRowContext(ctx,
		`UPDATE password_reset_tokens SET used_at = ?
		WHERE token_hash = ? AND used_at IS NULL AND expires_at > ?
		RETURNING user_email`,
		now, tokenHash, now,
	).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("claim reset token: %w", err)
	}
	return email, nil
}

// InvalidateForEmail marks every unused token of email used.
func (s *ResetTokenStore) InvalidateForEmail(ctx context.Context, email string, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used_at = ? WHERE user_email = ? AND used_at IS NULL`,
		now.UTC(), email,
	)
	if err != nil {
		return 0, fmt.Errorf("invalidate reset tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *ResetTokenStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
