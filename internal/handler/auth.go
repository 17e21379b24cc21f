package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/pitchingcoachu/portal/internal/auth"
	"github.com/pitchingcoachu/portal/internal/model"
	"github.com/pitchingcoachu/portal/internal/session"
)

// CredentialChecker validates a login attempt.
type CredentialChecker interface {
	Validate(ctx context.Context, email, password string) (*model.Identity, error)
}

// ResetTokens issues and redeems password reset tokens. It is nil when no
// database is configured.
type ResetTokens interface {
	Issue(ctx context.Context, email string) (*model.IssuedResetToken, error)
	Redeem(ctx context.Context, token, newPassword string) error
}

// ResetMailer delivers reset links.
type ResetMailer interface {
	Configured() bool
	SendPasswordReset(ctx context.Context, toEmail, token string) error
}

type AuthHandler struct {
	credentials CredentialChecker
	codec       *session.Codec
	resolver    *session.Resolver
	cookies     session.CookiePolicy
	resets      ResetTokens
	mailer      ResetMailer
	logger      *slog.Logger
}

func NewAuthHandler(
	credentials CredentialChecker,
	codec *session.Codec,
	resolver *session.Resolver,
	cookies session.CookiePolicy,
	resets ResetTokens,
	mailer ResetMailer,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		codec:       codec,
		resolver:    resolver,
		cookies:     cookies,
		resets:      resets,
		mailer:      mailer,
		logger:      logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required.")
		return
	}

	identity, err := h.credentials.Validate(r.Context(), req.Email, req.Password)
	if err != nil {
		var reject *auth.RejectError
		if errors.As(err, &reject) {
			h.logger.Info("login rejected", "email", model.NormalizeEmail(req.Email), "reason", reject.Reason.String())
		} else {
			h.logger.Error("login validation", "error", err)
		}
		writeError(w, http.StatusUnauthorized, "Invalid credentials.")
		return
	}

	token, err := h.codec.Mint(*identity, h.cookies.TTL)
	if err != nil {
		h.logger.Error("mint session token", "email", identity.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "Could not start a session.")
		return
	}

	for _, c := range h.cookies.SessionCookies(token, r.Host) {
		http.SetCookie(w, c)
	}
	h.logger.Info("login", "email", identity.Email, "apps", len(identity.Apps))
	writeOK(w)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	for _, c := range h.cookies.ClearCookies(r.Host) {
		http.SetCookie(w, c)
	}
	writeOK(w)
}

type sessionResponse struct {
	Authenticated bool        `json:"authenticated"`
	Name          string      `json:"name,omitempty"`
	Email         string      `json:"email,omitempty"`
	Apps          []model.App `json:"apps,omitempty"`
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := h.resolver.Resolve(r)
	if claims == nil {
		writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		Name:          claims.Name,
		Email:         claims.Email,
		Apps:          claims.Apps,
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword answers {ok:true} for any well-formed request so the
// response never reveals whether an account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	email := model.NormalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "Email is required.")
		return
	}
	if h.resets == nil {
		writeError(w, http.StatusInternalServerError, "Password reset requires DATABASE_URL configuration.")
		return
	}

	issued, err := h.resets.Issue(r.Context(), email)
	if err != nil {
		h.logger.Error("issue reset token", "email", email, "error", err)
		writeOK(w)
		return
	}
	if issued == nil {
		h.logger.Info("reset requested for unknown email", "email", email)
		writeOK(w)
		return
	}

	if h.mailer == nil || !h.mailer.Configured() {
		h.logger.Error("reset token issued but email delivery is not configured", "email", issued.Email)
		writeOK(w)
		return
	}
	if err := h.mailer.SendPasswordReset(r.Context(), issued.Email, issued.Token); err != nil {
		h.logger.Error("send reset email", "email", issued.Email, "error", err)
	}
	writeOK(w)
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Token and password are required.")
		return
	}
	if utf8.RuneCountInString(req.Password) < auth.MinPasswordLength {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters.")
		return
	}
	if h.resets == nil {
		writeError(w, http.StatusInternalServerError, "Password reset requires DATABASE_URL configuration.")
		return
	}

	err := h.resets.Redeem(r.Context(), token, req.Password)
	switch {
	case err == nil:
		writeOK(w)
	case errors.Is(err, auth.ErrInvalidResetToken):
		writeError(w, http.StatusBadRequest, "Invalid or expired reset token.")
	case errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters.")
	default:
		h.logger.Error("redeem reset token", "error", err)
		writeError(w, http.StatusInternalServerError, "Password reset failed.")
	}
}
