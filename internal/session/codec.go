// Package session mints and verifies the portal's signed session tokens and
// resolves a request's session from its cookies.
//
// A token is base64url(JSON(claims)) + "." + base64url(HMAC-SHA256(secret,
// base64url(JSON(claims)))), unpadded. Browsers round-trip it through
// cookies, so the format must not change.
package session

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pitchingcoachu/portal/internal/model"
)

// MinSecretLength is the shortest AUTH_SECRET the codec accepts.
const MinSecretLength = 16

var (
	ErrSecretTooShort = fmt.Errorf("session: AUTH_SECRET must be set and at least %d characters", MinSecretLength)
	ErrNoApps         = errors.New("session: identity has no apps")

	ErrMalformedToken = errors.New("session: malformed token")
	ErrBadSignature   = errors.New("session: signature mismatch")
	ErrBadPayload     = errors.New("session: undecodable payload")
	ErrMissingClaims  = errors.New("session: required claims missing")
	ErrTokenExpired   = errors.New("session: token expired")
)

var b64 = base64.RawURLEncoding.Strict()

// Codec signs and verifies session tokens with a process-wide secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Codec)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec fails when the secret is missing or too short. Callers treat the
// error as fatal at startup rather than failing every login later.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mint returns a token for id that expires ttl from now.
func (c *Codec) Mint(id model.Identity, ttl time.Duration) (string, error) {
	apps := model.CleanApps(id.Apps)
	if len(apps) == 0 {
		return "", ErrNoApps
	}
	claims := model.SessionClaims{
		Email:  id.Email,
		Name:   id.Name,
		AppURL: apps[0].URL,
		Apps:   apps,
		Exp:    c.now().Add(ttl).Unix(),
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := b64.EncodeToString(raw)

	sig, err := jwt.SigningMethodHS256.Sign(payload, c.secret)
	if err != nil {
		return "", fmt.Errorf("sign claims: %w", err)
	}
	return payload + "." + b64.EncodeToString(sig), nil
}

// Verify returns the claims of a valid, unexpired token and nil otherwise.
func (c *Codec) Verify(token string) *model.SessionClaims {
	claims, err := c.Inspect(token)
	if err != nil {
		return nil
	}
	return claims
}

// Decode implements Decoder.
func (c *Codec) Decode(token string) (*model.SessionClaims, error) {
	return c.Inspect(token)
}

// Inspect is Verify with the rejection reason, one of the Err* sentinels.
func (c *Codec) Inspect(token string) (*model.SessionClaims, error) {
	payload, sigPart, ok := strings.Cut(token, ".")
	if !ok || payload == "" || sigPart == "" {
		return nil, ErrMalformedToken
	}

	sig, err := b64.DecodeString(sigPart)
	if err != nil || len(sig) != sha256.Size {
		return nil, ErrBadSignature
	}
	if err := jwt.SigningMethodHS256.Verify(payload, sig, c.secret); err != nil {
		return nil, ErrBadSignature
	}

	raw, err := b64.DecodeString(payload)
	if err != nil {
		return nil, ErrBadPayload
	}
	var w wireClaims
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, ErrBadPayload
	}

	claims, err := w.normalize()
	if err != nil {
		return nil, err
	}
	if claims.Exp <= c.now().Unix() {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// wireClaims accepts tokens minted before the apps list existed, and tokens
// whose apps field is not the expected shape.
type wireClaims struct {
	Email  string          `json:"email"`
	Name   string          `json:"name"`
	AppURL string          `json:"appUrl"`
	Apps   json.RawMessage `json:"apps"`
	Exp    int64           `json:"exp"`
}

func (w wireClaims) normalize() (*model.SessionClaims, error) {
	var apps []model.App
	if len(w.Apps) > 0 {
		if err := json.Unmarshal(w.Apps, &apps); err != nil {
			apps = nil
		}
	}
	apps = model.CleanApps(apps)

	appURL := strings.TrimSpace(w.AppURL)
	if len(apps) == 0 && appURL != "" {
		apps = []model.App{{Name: model.DefaultAppName, URL: appURL}}
	}
	if appURL == "" && len(apps) > 0 {
		appURL = apps[0].URL
	}

	if w.Email == "" || w.Exp == 0 || len(apps) == 0 {
		return nil, ErrMissingClaims
	}
	return &model.SessionClaims{
		Email:  w.Email,
		Name:   w.Name,
		AppURL: appURL,
		Apps:   apps,
		Exp:    w.Exp,
	}, nil
}
