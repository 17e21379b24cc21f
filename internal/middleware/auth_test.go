package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pitchingcoachu/portal/internal/auth"
	"github.com/pitchingcoachu/portal/internal/model"
	"github.com/pitchingcoachu/portal/internal/session"
)

func setupResolver(t *testing.T) (*session.Resolver, *session.Codec) {
	t.Helper()
	codec, err := session.NewCodec("middleware-test-secret")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return session.DefaultResolver(codec), codec
}

func mintToken(t *testing.T, codec *session.Codec, email string) string {
	t.Helper()
	token, err := codec.Mint(model.Identity{
		Email: email,
		Apps:  []model.App{{Name: "Dashboard", URL: "https://apps.example.com/" + email}},
	}, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return token
}

func TestRequireSessionNoCookie(t *testing.T) {
	resolver, _ := setupResolver(t)

	handler := RequireSession(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/portal", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want %q", loc, "/login")
	}
}

func TestRequireSessionInvalidToken(t *testing.T) {
	resolver, _ := setupResolver(t)

	handler := RequireSession(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/portal", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
}

func TestRequireSessionValid(t *testing.T) {
	resolver, codec := setupResolver(t)

	var gotAC auth.AuthContext
	handler := RequireSession(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		gotAC = ac
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/portal", nil)
	req.AddCookie(&http.Cookie{Name: session.DomainCookieName, Value: mintToken(t, codec, "alice@example.com")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotAC.Claims.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", gotAC.Claims.Email, "alice@example.com")
	}
	if gotAC.CookieName != session.DomainCookieName {
		t.Errorf("CookieName = %q, want %q", gotAC.CookieName, session.DomainCookieName)
	}
}

func TestRequireSessionJSONClient(t *testing.T) {
	resolver, _ := setupResolver(t)

	handler := RequireSession(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/portal", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if loc := rec.Header().Get("Location"); loc != "" {
		t.Errorf("Location = %q, want none", loc)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}
