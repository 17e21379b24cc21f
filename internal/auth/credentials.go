// Package auth validates credentials, seeds the user table and issues and
// redeems password reset tokens.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/pitchingcoachu/portal/internal/config"
	"github.com/pitchingcoachu/portal/internal/model"
	"github.com/pitchingcoachu/portal/internal/password"
)

var (
	// ErrInvalidCredentials matches every login rejection. Callers show one
	// generic message whatever the reason.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrNoCredentialSource = errors.New("auth: no user store and no configured users")
)

// RejectReason says why a login failed. It is for logs only.
type RejectReason int

const (
	ReasonUnknownEmail RejectReason = iota + 1
	ReasonWrongPassword
	ReasonNoApps
)

func (r RejectReason) String() string {
	switch r {
	case ReasonUnknownEmail:
		return "unknown email"
	case ReasonWrongPassword:
		return "wrong password"
	case ReasonNoApps:
		return "no apps assigned"
	default:
		return "unknown"
	}
}

type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string {
	return "invalid credentials: " + e.Reason.String()
}

func (e *RejectError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// UserLookup finds a stored user by normalized email, returning nil when
// there is none.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// CredentialValidator checks a login against the user store first and the
// configured seed users second.
type CredentialValidator struct {
	users  UserLookup
	seeds  config.UserSeedSource
	hasher *password.Hasher
	logger *slog.Logger
}

// NewCredentialValidator accepts a nil users for deployments without a
// database. It fails when there is no way any login could succeed.
func NewCredentialValidator(users UserLookup, seeds config.UserSeedSource, hasher *password.Hasher, logger *slog.Logger) (*CredentialValidator, error) {
	if users == nil && len(seeds.Users) == 0 {
		return nil, ErrNoCredentialSource
	}
	return &CredentialValidator{
		users:  users,
		seeds:  seeds,
		hasher: hasher,
		logger: logger,
	}, nil
}

// Validate returns the identity for email and password, or an error
// matching ErrInvalidCredentials. Store failures are logged and treated as
// a miss so configured users can still log in.
func (v *CredentialValidator) Validate(ctx context.Context, email, pw string) (*model.Identity, error) {
	email = model.NormalizeEmail(email)
	if email == "" || pw == "" {
		return nil, &RejectError{Reason: ReasonUnknownEmail}
	}

	reason := ReasonUnknownEmail
	if v.users != nil {
		id, r, err := v.validateStored(ctx, email, pw)
		if err != nil {
			v.logger.Error("credential store lookup failed", "error", err)
		}
		if id != nil {
			return id, nil
		}
		if r != 0 {
			reason = r
		}
	}

	for _, su := range v.seeds.Users {
		if su.Email != email {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(su.Password), []byte(pw)) == 1 {
			id := su.Identity()
			return &id, nil
		}
		if reason == ReasonUnknownEmail {
			reason = ReasonWrongPassword
		}
	}

	return nil, &RejectError{Reason: reason}
}

func (v *CredentialValidator) validateStored(ctx context.Context, email, pw string) (*model.Identity, RejectReason, error) {
	u, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, 0, err
	}
	if u == nil {
		return nil, 0, nil
	}
	if !v.hasher.Verify(u.PasswordHash, pw) {
		return nil, ReasonWrongPassword, nil
	}

	apps := v.seeds.AppsFor(email)
	if len(apps) == 0 {
		apps = model.CleanApps([]model.App{{URL: u.AppURL}})
	}
	if len(apps) == 0 {
		return nil, ReasonNoApps, nil
	}

	if password.IsLegacy(u.PasswordHash) {
		v.logger.Warn("login matched a plaintext password record", "email", u.Email)
	}

	name := u.Name
	if name == "" {
		if su, ok := v.seeds.Lookup(email); ok {
			name = su.Name
		}
	}
	return &model.Identity{Email: u.Email, Name: name, Apps: apps}, 0, nil
}
