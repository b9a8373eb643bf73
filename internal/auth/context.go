package auth

import "context"

type userContextKey struct{}

// ContextWithUser attaches the resolved user to the context.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the resolved user, or nil when the request is
// anonymous or has not passed through the guard.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}
