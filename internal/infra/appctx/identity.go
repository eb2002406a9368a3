package appctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/qrave1/CoachSpeak/internal/domain"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Identity - проверенные данные пользователя от коллаборатора авторизации
type Identity struct {
	UserID      uuid.UUID
	Role        domain.Role
	DisplayName string
}

// WithIdentity добавляет identity в контекст
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom извлекает identity из контекста
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
