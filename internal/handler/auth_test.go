package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchingcoachu/portal/internal/auth"
	"github.com/pitchingcoachu/portal/internal/config"
	"github.com/pitchingcoachu/portal/internal/model"
	"github.com/pitchingcoachu/portal/internal/password"
	"github.com/pitchingcoachu/portal/internal/session"
)

const testSecret = "handler-test-secret-0123456789"

var testApps = []model.App{
	{Name: "Pitching", URL: "https://pitching.example.com"},
	{Name: "Hitting", URL: "https://hitting.example.com"},
}

type stubResets struct {
	issued    *model.IssuedResetToken
	issueErr  error
	redeemErr error

	issuedFor  []string
	redeemedAs []string
}

func (s *stubResets) Issue(ctx context.Context, email string) (*model.IssuedResetToken, error) {
	s.issuedFor = append(s.issuedFor, email)
	return s.issued, s.issueErr
}

func (s *stubResets) Redeem(ctx context.Context, token, newPassword string) error {
	s.redeemedAs = append(s.redeemedAs, token)
	return s.redeemErr
}

type stubMailer struct {
	configured bool
	err        error
	sent       []string
}

func (m *stubMailer) Configured() bool { return m.configured }

func (m *stubMailer) SendPasswordReset(ctx context.Context, toEmail, token string) error {
	m.sent = append(m.sent, toEmail+"|"+token)
	return m.err
}

type authFixture struct {
	handler *AuthHandler
	codec   *session.Codec
	resets  *stubResets
	mailer  *stubMailer
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthFixture(t *testing.T, withResets bool, policy session.CookiePolicy) *authFixture {
	t.Helper()

	seeds := config.UserSeedSource{
		Shape: config.ShapeList,
		Users: []config.SeedUser{{
			Email:    "coach@example.com",
			Password: "fastball99",
			Name:     "Coach Kay",
			Apps:     testApps,
		}},
	}
	validator, err := auth.NewCredentialValidator(nil, seeds, password.NewHasherWithCost(1024, 8, 1), discardLogger())
	require.NoError(t, err)

	codec, err := session.NewCodec(testSecret)
	require.NoError(t, err)

	f := &authFixture{codec: codec, mailer: &stubMailer{configured: true}}
	var resets ResetTokens
	if withResets {
		f.resets = &stubResets{}
		resets = f.resets
	}
	f.handler = NewAuthHandler(validator, codec, session.DefaultResolver(codec), policy, resets, f.mailer, discardLogger())
	return f
}

func (f *authFixture) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", f.handler.Login)
	mux.HandleFunc("POST /api/auth/logout", f.handler.Logout)
	mux.HandleFunc("GET /api/auth/session", f.handler.Session)
	mux.HandleFunc("POST /api/auth/forgot-password", f.handler.ForgotPassword)
	mux.HandleFunc("POST /api/auth/reset-password", f.handler.ResetPassword)
	return mux
}

func TestLoginSetsSessionCookie(t *testing.T) {
	f := newAuthFixture(t, false, session.NewCookiePolicy(true, ""))

	res := apitest.New().
		Handler(f.mux()).
		Post("/api/auth/login").
		JSON(`{"email":"  Coach@Example.com ","password":"fastball99"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.ok", true)).
		Cookies(apitest.NewCookie(session.CookieName).Path("/").HttpOnly(true).Secure(true)).
		CookieNotPresent(session.DomainCookieName).
		End()

	var token string
	for _, c := range res.Response.Cookies() {
		if c.Name == session.CookieName {
			token = c.Value
			assert.Equal(t, int(session.TTL/time.Second), c.MaxAge)
			assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		}
	}
	claims := f.codec.Verify(token)
	require.NotNil(t, claims)
	assert.Equal(t, "coach@example.com", claims.Email)
	assert.Equal(t, "Coach Kay", claims.Name)
	assert.Equal(t, testApps, claims.Apps)
	assert.Equal(t, testApps[0].URL, claims.AppURL)
}

func TestLoginSetsDomainCookieWhenConfigured(t *testing.T) {
	f := newAuthFixture(t, false, session.NewCookiePolicy(false, "pitchingcoachu.com"))

	apitest.New().
		Handler(f.mux()).
		Post("/api/auth/login").
		JSON(`{"email":"coach@example.com","password":"fastball99"}`).
		Expect(t).
		Status(http.StatusOK).
		CookiePresent(session.CookieName).
		Assert(func(res *http.Response, req *http.Request) error {
			for _, c := range res.Cookies() {
				if c.Name == session.DomainCookieName {
					if c.Domain != "pitchingcoachu.com" {
						return fmt.Errorf("domain cookie scoped to %q", c.Domain)
					}
					if c.Secure {
						return errors.New("domain cookie should not be Secure in development")
					}
					return nil
				}
			}
			return errors.New("domain cookie not set")
		}).
		End()
}

func TestLoginRejections(t *testing.T) {
	f := newAuthFixture(t, false, session.NewCookiePolicy(true, ""))

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"missing password", `{"email":"coach@example.com"}`, http.StatusBadRequest, "Email and password are required."},
		{"blank email", `{"email":"   ","password":"x"}`, http.StatusBadRequest, "Email and password are required."},
		{"malformed body", `{"email":`, http.StatusBadRequest, "Invalid request body."},
		{"wrong password", `{"email":"coach@example.com","password":"changeup"}`, http.StatusUnauthorized, "Invalid credentials."},
		{"unknown email", `{"email":"nobody@example.com","password":"fastball99"}`, http.StatusUnauthorized, "Invalid credentials."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apitest.New().
				Handler(f.mux()).
				Post("/api/auth/login").
				JSON(tt.body).
				Expect(t).
				Status(tt.status).
				Assert(jsonpath.Equal("$.error", tt.msg)).
				CookieNotPresent(session.CookieName).
				End()
		})
	}
}

func TestLogoutClearsEveryCookieName(t *testing.T) {
	f := newAuthFixture(t, false, session.NewCookiePolicy(true, "pitchingcoachu.com"))

	apitest.New().
		Handler(f.mux()).
		Post("/api/auth/logout").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.ok", true)).
		Cookies(
			apitest.NewCookie(session.CookieName).Value("").MaxAge(-1),
			apitest.NewCookie(session.DomainCookieName).Value("").MaxAge(-1),
			apitest.NewCookie("pcu_portal_session").Value("").MaxAge(-1),
			apitest.NewCookie("pcu_auth").Value("").MaxAge(-1),
		).
		End()
}

func TestSessionEndpoint(t *testing.T) {
	f := newAuthFixture(t, false, session.NewCookiePolicy(true, ""))
	token, err := f.codec.Mint(model.Identity{Email: "coach@example.com", Name: "Coach Kay", Apps: testApps}, time.Hour)
	require.NoError(t, err)

	t.Run("anonymous", func(t *testing.T) {
		apitest.New().
			Handler(f.mux()).
			Get("/api/auth/session").
			Expect(t).
			Status(http.StatusOK).
			Body(`{"authenticated":false}`).
			End()
	})

	t.Run("primary cookie", func(t *testing.T) {
		apitest.New().
			Handler(f.mux()).
			Get("/api/auth/session").
			Cookie(session.CookieName, token).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal("$.authenticated", true)).
			Assert(jsonpath.Equal("$.email", "coach@example.com")).
			Assert(jsonpath.Equal("$.name", "Coach Kay")).
			Assert(jsonpath.Len("$.apps", 2)).
			Assert(jsonpath.Equal("$.apps[1].url", "https://hitting.example.com")).
			End()
	})

	t.Run("legacy cookie", func(t *testing.T) {
		apitest.New().
			Handler(f.mux()).
			Get("/api/auth/session").
			Cookie("pcu_auth", token).
			Expect(t).
			Status(http.StatusOK).
			Assert(jsonpath.Equal("$.authenticated", true)).
			End()
	})

	t.Run("tampered cookie", func(t *testing.T) {
		apitest.New().
			Handler(f.mux()).
			Get("/api/auth/session").
			Cookie(session.CookieName, token+"x").
			Expect(t).
			Status(http.StatusOK).
			Body(`{"authenticated":false}`).
			End()
	})
}

func TestForgotPassword(t *testing.T) {
	t.Run("requires a store", func(t *testing.T) {
		f := newAuthFixture(t, false, session.NewCookiePolicy(true, ""))
		apitest.New().
			Handler(f.mux()).
			Post("/api/auth/forgot-password").
			JSON(`{"email":"coach@example.com"}`).
			Expect(t).
			Status(http.StatusInternalServerError).
			Assert(jsonpath.Equal("$.error", "Password reset requires DATABASE_URL configuration.")).
			End()
	})

	t.Run("empty email", func(t *testing.T) {
		f := newAuthFixture(t, true, session.NewCookiePolicy(true, ""))
		apitest.New().
			Handler(f.mux()).
			Post("/api/auth/forgot-password").
			JSON(`{"email":"  "}`).
			Expect(t).
			Status(http.StatusBadRequest).
			Assert(jsonpath.Equal("$.error", "Email is required.")).
			End()
		assert.Empty(t, f.resets.issuedFor)
	})

	t.Run("known email sends mail", func(t *testing.T) {
		f := newAuthFixture(t, true, session.NewCookiePolicy(true, ""))
		f.resets.issued = &model.IssuedResetToken{Token: "raw-token", Email: "coach@example.com"}
		apitest.New().
			Handler(f.mux()).
			Post("/api/auth/forgot-password").
			JSON(`{"email":"Coach@Example.com"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"ok":true}`).
			End()
		assert.Equal(t, []string{"coach@example.com"}, f.resets.issuedFor)
		assert.Equal(t, []string{"coach@example.com|raw-token"}, f.mailer.sent)
	})

	t.Run("unknown email looks the same", func(t *testing.T) {
		f := newAuthFixture(t, true, session.NewCookiePolicy(true, ""))
		apitest.New().
			Handler(f.mux()).
			Post("/api/auth/forgot-password").
			JSON(`{"email":"nobody@example.com"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"ok":true}`).
			End()
		assert.Empty(t, f.mailer.sent)
	})

	t.Run("delivery failure is not surfaced", func(t *testing.T) {
		f := newAuthFixture(t, true, session.NewCookiePolicy(true, ""))
		f.resets.issued = &model.IssuedResetToken{Token: "raw-token", Email: "coach@example.com"}
		f.mailer.err = errors.New("provider down")
		apitest.New().
			Handler(f.mux()).
			Post("/api/auth/forgot-password").
			JSON(`{"email":"coach@example.com"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"ok":true}`).
			End()
	})

	t.Run("unconfigured mailer is not surfaced", func(t *testing.T) {
		f := newAuthFixture(t, true, session.NewCookiePolicy(true, ""))
		f.resets.issued = &model.IssuedResetToken{Token: "raw-token", Email: "coach@example.com"}
		f.mailer.configured = false
		apitest.New().
			Handler(f.mux()).
			Post("/api/auth/forgot-password").
			JSON(`{"email":"coach@example.com"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"ok":true}`).
			End()
		assert.Empty(t, f.mailer.sent)
	})

	t.Run("store failure is not surfaced", func(t *testing.T) {
		f := newAuthFixture(t, true, session.NewCookiePolicy(true, ""))
		f.resets.issueErr = errors.New("connection refused")
		apitest.New().
			Handler(f.mux()).
			Post("/api/auth/forgot-password").
			JSON(`{"email":"coach@example.com"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"ok":true}`).
			End()
	})
}

func TestResetPassword(t *testing.T) {
	tests := []struct {
		name       string
		withResets bool
		redeemErr  error
		body       string
		status     int
		msg        string
	}{
		{"missing token", true, nil, `{"password":"newpassword"}`, http.StatusBadRequest, "Token and password are required."},
		{"missing password", true, nil, `{"token":"abc"}`, http.StatusBadRequest, "Token and password are required."},
		{"short password", true, nil, `{"token":"abc","password":"short"}`, http.StatusBadRequest, "Password must be at least 8 characters."},
		{"no store", false, nil, `{"token":"abc","password":"newpassword"}`, http.StatusInternalServerError, "Password reset requires DATABASE_URL configuration."},
		{"invalid token", true, auth.ErrInvalidResetToken, `{"token":"abc","password":"newpassword"}`, http.StatusBadRequest, "Invalid or expired reset token."},
		{"store failure", true, errors.New("disk full"), `{"token":"abc","password":"newpassword"}`, http.StatusInternalServerError, "Password reset failed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAuthFixture(t, tt.withResets, session.NewCookiePolicy(true, ""))
			if f.resets != nil {
				f.resets.redeemErr = tt.redeemErr
			}
			apitest.New().
				Handler(f.mux()).
				Post("/api/auth/reset-password").
				JSON(tt.body).
				Expect(t).
				Status(tt.status).
				Assert(jsonpath.Equal("$.error", tt.msg)).
				End()
		})
	}

	t.Run("success", func(t *testing.T) {
		f := newAuthFixture(t, true, session.NewCookiePolicy(true, ""))
		apitest.New().
			Handler(f.mux()).
			Post("/api/auth/reset-password").
			JSON(`{"token":"  abc  ","password":"newpassword"}`).
			Expect(t).
			Status(http.StatusOK).
			Body(`{"ok":true}`).
			End()
		assert.Equal(t, []string{"abc"}, f.resets.redeemedAs)
	})
}
