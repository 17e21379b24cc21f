package middleware

import (
	"net/http"
	"strings"

	"github.com/pitchingcoachu/portal/internal/auth"
	"github.com/pitchingcoachu/portal/internal/session"
)

// RequireSession resolves the session from the request cookies and
// populates AuthContext. Browsers without a session are sent to /login;
// clients asking for JSON get a 401 instead.
func RequireSession(resolver *session.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, name := resolver.ResolveDetailed(r.Cookies())
			if claims == nil {
				redirectToLogin(w, r)
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{Claims: claims, CookieName: name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Authentication required."}` + "\n"))
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
