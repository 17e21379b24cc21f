package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pitchingcoachu/portal/internal/model"
)

// SeedShape says where the static users came from.
type SeedShape int

const (
	ShapeNone SeedShape = iota
	// ShapeList is APP_USERS_JSON: a JSON array of users.
	ShapeList
	// ShapeSingle is the AUTH_LOGIN_* variables describing one user.
	ShapeSingle
)

func (s SeedShape) String() string {
	switch s {
	case ShapeList:
		return "APP_USERS_JSON"
	case ShapeSingle:
		return "AUTH_LOGIN_*"
	default:
		return "none"
	}
}

// SeedUser is one statically configured user with a plaintext password.
// Email is normalized and Apps is non-empty.
type SeedUser struct {
	Email    string
	Password string
	Name     string
	Apps     []model.App
}

// Identity returns the session identity for the seed user.
func (u SeedUser) Identity() model.Identity {
	return model.Identity{Email: u.Email, Name: u.Name, Apps: u.Apps}
}

// UserSeedSource is the parsed static user list. It seeds the database and
// is the fallback credential source when the database has no match.
type UserSeedSource struct {
	Shape SeedShape
	Users []SeedUser
	// Skipped counts entries dropped for lacking an email, password or app.
	Skipped int
}

type seedEntry struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	AppURL   string `json:"appUrl"`
	Apps     []struct {
		Name  string `json:"name"`
		Label string `json:"label"`
		URL   string `json:"url"`
	} `json:"apps"`
}

func (e seedEntry) toUser() (SeedUser, bool) {
	apps := make([]model.App, 0, len(e.Apps)+1)
	for _, a := range e.Apps {
		name := a.Name
		if strings.TrimSpace(name) == "" {
			name = a.Label
		}
		apps = append(apps, model.App{Name: name, URL: a.URL})
	}
	apps = model.CleanApps(apps)
	if len(apps) == 0 && strings.TrimSpace(e.AppURL) != "" {
		apps = model.CleanApps([]model.App{{URL: e.AppURL}})
	}

	u := SeedUser{
		Email:    model.NormalizeEmail(e.Email),
		Password: e.Password,
		Name:     strings.TrimSpace(e.Name),
		Apps:     apps,
	}
	if u.Email == "" || u.Password == "" || len(u.Apps) == 0 {
		return SeedUser{}, false
	}
	return u, true
}

// ParseUserSeedSource reads APP_USERS_JSON, or the AUTH_LOGIN_* variables
// when it is unset. Malformed JSON is an error.
func ParseUserSeedSource(getenv func(string) string) (UserSeedSource, error) {
	if raw := strings.TrimSpace(getenv("APP_USERS_JSON")); raw != "" {
		var entries []seedEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return UserSeedSource{}, fmt.Errorf("config: parse APP_USERS_JSON: %w", err)
		}
		src := UserSeedSource{Shape: ShapeList}
		for _, e := range entries {
			u, ok := e.toUser()
			if !ok {
				src.Skipped++
				continue
			}
			src.Users = append(src.Users, u)
		}
		return src, nil
	}

	e := seedEntry{
		Email:    getenv("AUTH_LOGIN_EMAIL"),
		Password: getenv("AUTH_LOGIN_PASSWORD"),
		AppURL:   getenv("AUTH_APP_URL"),
		Name:     getenv("AUTH_LOGIN_NAME"),
	}
	if u, ok := e.toUser(); ok {
		return UserSeedSource{Shape: ShapeSingle, Users: []SeedUser{u}}, nil
	}
	return UserSeedSource{Shape: ShapeNone}, nil
}

// Lookup finds the seed user for email, comparing normalized.
func (s UserSeedSource) Lookup(email string) (SeedUser, bool) {
	email = model.NormalizeEmail(email)
	for _, u := range s.Users {
		if u.Email == email {
			return u, true
		}
	}
	return SeedUser{}, false
}

// AppsFor returns the configured apps for email, or nil.
func (s UserSeedSource) AppsFor(email string) []model.App {
	u, ok := s.Lookup(email)
	if !ok {
		return nil
	}
	return u.Apps
}
