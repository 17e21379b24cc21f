package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pitchingcoachu/portal/internal/database"
	"github.com/pitchingcoachu/portal/internal/model"
	"github.com/pitchingcoachu/portal/internal/password"
	"github.com/pitchingcoachu/portal/internal/store"
)

const (
	// ResetTokenTTL is how long an issued reset link stays redeemable.
	ResetTokenTTL = time.Hour

	// MinPasswordLength applies to passwords set through a reset.
	MinPasswordLength = 8

	resetTokenBytes = 32
)

var (
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	ErrPasswordTooShort  = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// ResetService issues and redeems one-time password reset tokens. Only the
// SHA-256 of a token is stored.
type ResetService struct {
	db     *database.DB
	hasher *password.Hasher
	now    func() time.Time
	ttl    time.Duration
}

type ResetOption func(*ResetService)

func WithResetClock(now func() time.Time) ResetOption {
	return func(s *ResetService) {
		s.now = now
	}
}

func WithResetTTL(ttl time.Duration) ResetOption {
	return func(s *ResetService) {
		s.ttl = ttl
	}
}

func NewResetService(db *database.DB, hasher *password.Hasher, opts ...ResetOption) *ResetService {
	s := &ResetService{
		db:     db,
		hasher: hasher,
		now:    time.Now,
		ttl:    ResetTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashResetToken is the lookup key stored for a raw token.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue creates a token for the user with email. It returns nil and no
// error when no such user exists, so callers cannot reveal which emails
// are registered.
func (s *ResetService) Issue(ctx context.Context, email string) (*model.IssuedResetToken, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	u, err := store.NewUserStore(s.db).GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}

	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate reset token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	now := s.now().UTC()
	if _, err := store.NewResetTokenStore(s.db).Create(ctx, u.Email, HashResetToken(token), now.Add(s.ttl), now); err != nil {
		return nil, err
	}
	return &model.IssuedResetToken{Token: token, Email: u.Email}, nil
}

// Redeem sets a new password if token is unused and unexpired. In one
// transaction it claims the token, replaces the password hash and voids
// every other outstanding token of that user; any failure rolls all of it
// back. Of concurrent redemptions of the same token exactly one succeeds.
func (s *ResetService) Redeem(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	if utf8.RuneCountInString(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	// Hash before opening the transaction; scrypt is slow and the
	// transaction holds a write lock on SQLite.
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	tokenHash := HashResetToken(token)
	now := s.now().UTC()

	return database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		tokens := store.NewResetTokenStore(tx)

		email, err := tokens.Claim(ctx, tokenHash, now)
		if err != nil {
			return err
		}
		if email == "" {
			return ErrInvalidResetToken
		}

		if err := store.NewUserStore(tx).UpdatePasswordHash(ctx, email, hash, now); err != nil {
			return fmt.Errorf("update password for %s: %w", email, err)
		}

		if _, err := tokens.InvalidateForEmail(ctx, email, now); err != nil {
			return err
		}
		return nil
	})
}

// DeleteExpired purges tokens past their expiry.
func (s *ResetService) DeleteExpired(ctx context.Context) (int64, error) {
	return store.NewResetTokenStore(s.db).DeleteExpired(ctx, s.now())
}
