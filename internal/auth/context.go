package auth

import (
	"context"

	"reqtrack/internal/models"
)

type userContextKey struct{}

func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, &u)
}

// UserFromContext returns the authenticated caller attached by Middleware.
func UserFromContext(ctx context.Context) (models.User, bool) {
	if ctx == nil {
		return models.User{}, false
	}
	v, ok := ctx.Value(userContextKey{}).(*models.User)
	if !ok || v == nil {
		return models.User{}, false
	}
	return *v, true
}
