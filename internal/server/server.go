package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/pitchingcoachu/portal/internal/auth"
	"github.com/pitchingcoachu/portal/internal/database"
	"github.com/pitchingcoachu/portal/internal/handler"
	"github.com/pitchingcoachu/portal/internal/middleware"
	"github.com/pitchingcoachu/portal/internal/session"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

// Deps is everything the HTTP layer needs. DB and Resets are nil when no
// database is configured; Mailer may be unconfigured.
type Deps struct {
	DB          *database.DB
	Credentials handler.CredentialChecker
	Codec       *session.Codec
	Cookies     session.CookiePolicy
	Resets      *auth.ResetService
	Mailer      handler.ResetMailer
	Logger      *slog.Logger
}

type Server struct {
	db          *database.DB
	resolver    *session.Resolver
	authH       *handler.AuthHandler
	pageH       *handler.PageHandler
	resets      *auth.ResetService
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(d Deps) *Server {
	resolver := session.DefaultResolver(d.Codec)

	// A nil *ResetService must reach the handler as a nil interface.
	var resets handler.ResetTokens
	if d.Resets != nil {
		resets = d.Resets
	}

	authLogger := d.Logger.With("component", "auth")
	return &Server{
		db:          d.DB,
		resolver:    resolver,
		authH:       handler.NewAuthHandler(d.Credentials, d.Codec, resolver, d.Cookies, resets, d.Mailer, authLogger),
		pageH:       handler.NewPageHandler(resolver, d.Logger.With("component", "pages")),
		resets:      d.Resets,
		rateLimiter: middleware.NewRateLimiter(),
		logger:      d.Logger,
	}
}

func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// ResetService returns nil when no database is configured.
func (s *Server) ResetService() *auth.ResetService {
	return s.resets
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	mux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/auth/session", s.authH.Session)
	mux.HandleFunc("POST /api/auth/forgot-password", s.rateLimitedHandler(s.authH.ForgotPassword))
	mux.HandleFunc("POST /api/auth/reset-password", s.rateLimitedHandler(s.authH.ResetPassword))

	mux.HandleFunc("GET /login", s.pageH.LoginPage)
	mux.HandleFunc("GET /reset-password", s.pageH.ResetPasswordPage)
	mux.Handle("GET /portal", middleware.RequireSession(s.resolver)(http.HandlerFunc(s.pageH.Portal)))
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/portal", http.StatusSeeOther)
	})

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "database": "not configured"}
	code := http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Error("health check ping", "error", err)
			status["status"] = "degraded"
			status["database"] = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			status["database"] = "ok"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return r.URL.Path + "|" + middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, authRateLimit, authRateWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
