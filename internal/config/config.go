// Package config reads the portal's settings from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pitchingcoachu/portal/internal/session"
)

// Config holds runtime settings for the portal.
type Config struct {
	AuthSecret string
	// DatabaseURL is "postgres://..." or "sqlite:<path>". Empty disables the
	// relational store; logins then use Users only.
	DatabaseURL string
	Users       UserSeedSource

	CookieDomain string
	Env          string
	Port         string
	BaseURL      string
	LogLevel     string

	ResendAPIKey string
	FromEmail    string
}

const (
	defaultPort      = "8080"
	defaultFromEmail = "onboarding@resend.dev"
)

// LoadDotEnv copies variables from ./.env into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and validates it.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		AuthSecret:   getenv("AUTH_SECRET"),
		DatabaseURL:  strings.TrimSpace(getenv("DATABASE_URL")),
		CookieDomain: strings.TrimSpace(getenv("AUTH_COOKIE_DOMAIN")),
		Env:          strings.ToLower(strings.TrimSpace(getenv("PORTAL_ENV"))),
		Port:         getenv("PORTAL_PORT"),
		BaseURL:      strings.TrimRight(getenv("PORTAL_BASE_URL"), "/"),
		LogLevel:     getenv("PORTAL_LOG_LEVEL"),
		ResendAPIKey: getenv("RESEND_API_KEY"),
		FromEmail:    getenv("PORTAL_FROM_EMAIL"),
	}
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + cfg.Port
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = defaultFromEmail
	}

	if len(cfg.AuthSecret) < session.MinSecretLength {
		return nil, session.ErrSecretTooShort
	}

	users, err := ParseUserSeedSource(getenv)
	if err != nil {
		return nil, err
	}
	cfg.Users = users

	if cfg.DatabaseURL == "" && len(users.Users) == 0 {
		return nil, ErrNoUsers
	}
	return cfg, nil
}

// ErrNoUsers means neither a database nor any static user is configured, so
// no login could ever succeed.
var ErrNoUsers = errors.New("config: set DATABASE_URL or configure users via APP_USERS_JSON / AUTH_LOGIN_*")

// Development reports whether PORTAL_ENV is "development".
func (c *Config) Development() bool {
	return c.Env == "development"
}

// SecureCookies is false only in development, where the portal runs over
// plain HTTP.
func (c *Config) SecureCookies() bool {
	return !c.Development()
}

// DatabaseConfigured reports whether a relational store is configured.
func (c *Config) DatabaseConfigured() bool {
	return c.DatabaseURL != ""
}
