package handler

import "context"

type contextKey struct{}

// WithMemberID stores the authenticated member ID in the context.
func WithMemberID(ctx context.Context, memberID int64) context.Context {
	return context.WithValue(ctx, contextKey{}, memberID)
}

// MemberIDFromContext retrieves the authenticated member ID from the context.
func MemberIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(contextKey{}).(int64)
	return id
}
