package auth

import (
	"context"

	"github.com/isdelr/todo-auth-be/internal/models"
)

type contextKey string

// UserKey is the context key for the authenticated user.
const UserKey = contextKey("user")

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// UserFromContext returns the user stored by the bearer middleware.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(UserKey).(models.User)
	return user, ok
}
