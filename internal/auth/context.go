package auth

import (
	"context"

	"github.com/pitchingcoachu/portal/internal/model"
)

type contextKey struct{}

// AuthContext is the resolved session of the current request.
type AuthContext struct {
	Claims *model.SessionClaims
	// CookieName is the cookie the session was read from.
	CookieName string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	if !ok || ac.Claims == nil {
		return AuthContext{}, false
	}
	return ac, true
}

func Email(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.Claims.Email
}

// Apps returns the session's apps, primary first.
func Apps(ctx context.Context) []model.App {
	ac, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return ac.Claims.Apps
}
