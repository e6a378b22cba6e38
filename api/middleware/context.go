package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxEmail  contextKey = "actor_email"
)

func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxRole)
}

// EmailFromContext returns the email carried by the access token.
func EmailFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxEmail)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithIdentity injects an authenticated identity into the context.
func WithIdentity(ctx context.Context, userID, role, email string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return context.WithValue(ctx, ctxEmail, email)
}

// CallerFromContext returns the authenticated caller, or nil for guests.
func CallerFromContext(ctx context.Context) *orders.Caller {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &orders.Caller{
		UserID: id,
		Email:  EmailFromContext(ctx),
		Role:   enums.UserRole(RoleFromContext(ctx)),
	}
}
