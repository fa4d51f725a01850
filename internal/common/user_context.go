// Package common holds request-scoped helpers shared across the manager
package common

import (
	"context"
	"os/user"

	"github.com/cubeworks/cuberepo/internal/config"
)

type contextKey string

// UserContextKey carries the acting user through a request context
const UserContextKey contextKey = "user"

// AnonymousUser names requests with no resolvable identity
const AnonymousUser = "anonymous"

// WithUser binds the acting user to a context
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserContextKey, userID)
}

// UserFrom resolves the acting user: explicit context value first, then the
// process-wide user parameter, then the OS user
func UserFrom(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(UserContextKey).(string); ok && id != "" {
			return id
		}
	}
	if id := config.SystemParam(config.ParamUser); id != "" {
		return id
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return AnonymousUser
}
