package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pitchingcoachu/portal/internal/auth"
	"github.com/pitchingcoachu/portal/internal/model"
	"github.com/pitchingcoachu/portal/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageHandler renders the HTML pages of the portal.
type PageHandler struct {
	resolver  *session.Resolver
	templates *template.Template
	logger    *slog.Logger
}

func NewPageHandler(resolver *session.Resolver, logger *slog.Logger) *PageHandler {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/*.html"))
	return &PageHandler{
		resolver:  resolver,
		templates: tmpl,
		logger:    logger,
	}
}

// LoginPage sends visitors with a valid session straight to the portal.
func (h *PageHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.resolver.Resolve(r) != nil {
		http.Redirect(w, r, "/portal", http.StatusSeeOther)
		return
	}
	h.render(w, "login.html", map[string]any{"Title": "Sign in"})
}

func (h *PageHandler) ResetPasswordPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "reset_password.html", map[string]any{
		"Title":     "Reset password",
		"Token":     r.URL.Query().Get("token"),
		"MinLength": auth.MinPasswordLength,
	})
}

type portalPage struct {
	Title    string
	Name     string
	Apps     []model.App
	Selected int
	App      model.App
}

// Portal embeds the app picked by ?app=<index>. A missing, malformed or
// out-of-range index selects the primary app.
func (h *PageHandler) Portal(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok || len(ac.Claims.Apps) == 0 {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	apps := ac.Claims.Apps
	selected := selectedApp(r.URL.Query().Get("app"), len(apps))
	h.render(w, "portal.html", portalPage{
		Title:    apps[selected].Name,
		Name:     ac.Claims.DisplayName(),
		Apps:     apps,
		Selected: selected,
		App:      apps[selected],
	})
}

func selectedApp(raw string, n int) int {
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 || i >= n {
		return 0
	}
	return i
}

func (h *PageHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("render template", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}
