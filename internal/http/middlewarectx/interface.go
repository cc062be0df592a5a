// Package middlewarectx содержит HTTP middleware сервиса: ограничение частоты
// запросов, проверку подписи платёжного вебхука и доступ администратора по JWT.
package middlewarectx

import (
	"context"

	"github.com/magabrotheeeer/premium-entitlements/internal/lib/jwt"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// UserID ключ идентификатора администратора в контексте.
const UserID Key = "user_id"

// TokenParser проверяет JWT токен.
type TokenParser interface {
	ParseToken(tokenStr string) (*jwt.CustomClaims, error)
}

// UserIDFrom возвращает идентификатор пользователя, сохранённый AdminOnly.
func UserIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserID).(int64)
	return id, ok
}
