package model

import (
	"fmt"
	"strings"
)

// DefaultAppName labels an app that was configured by URL only.
const DefaultAppName = "Dashboard"

// App is one embeddable dashboard assigned to a user.
type App struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Identity is what a successful credential check produces: everything a
// session needs except its expiry.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Apps  []App  `json:"apps"`
}

// PrimaryApp returns the first app, which older single-app consumers use.
func (i Identity) PrimaryApp() App {
	if len(i.Apps) == 0 {
		return App{}
	}
	return i.Apps[0]
}

// SessionClaims is the decoded payload of a session token. AppURL mirrors
// Apps[0].URL for tokens minted before multi-app support.
type SessionClaims struct {
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	AppURL string `json:"appUrl"`
	Apps   []App  `json:"apps"`
	Exp    int64  `json:"exp"`
}

// Identity strips the expiry from the claims.
func (c SessionClaims) Identity() Identity {
	return Identity{Email: c.Email, Name: c.Name, Apps: c.Apps}
}

// DisplayName prefers the configured name and falls back to the email.
func (c SessionClaims) DisplayName() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return c.Email
}

// NormalizeEmail lowercases and trims an email before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CleanApps drops entries without a URL and names the unnamed ones.
func CleanApps(apps []App) []App {
	out := make([]App, 0, len(apps))
	for _, a := range apps {
		url := strings.TrimSpace(a.URL)
		if url == "" {
			continue
		}
		name := strings.TrimSpace(a.Name)
		if name == "" {
			name = defaultAppName(len(out))
		}
		out = append(out, App{Name: name, URL: url})
	}
	return out
}

func defaultAppName(i int) string {
	if i == 0 {
		return DefaultAppName
	}
	return fmt.Sprintf("%s %d", DefaultAppName, i+1)
}
