package auth

import "context"

type contextKey string

const authContextKey contextKey = "vitae_auth"

// UserInfo holds the authenticated identity for a request.
type UserInfo struct {
	SessionID string
	UserID    string
	Email     string
	Plan      Plan
}

func ContextWithUser(ctx context.Context, info *UserInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func UserFromContext(ctx context.Context) (*UserInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*UserInfo)
	return info, ok
}
