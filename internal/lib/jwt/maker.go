// Package jwt реализует выпуск и проверку JWT токенов доступа к отчётам.
//
// Maker определяет интерфейс для создания и проверки токенов с идентификатором
// пользователя Telegram и ролью. MakerImpl подписывает токены HS256 секретным ключом.
package jwt

import (
	"time"
)

// RoleAdmin роль администратора.
const RoleAdmin = "admin"

// Maker описывает интерфейс для генерации и парсинга JWT токенов.
type Maker interface {
	GenerateToken(userID int64, role string) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl реализует интерфейс Maker с использованием секретного ключа
// и времени жизни токена (TTL).
type MakerImpl struct {
	secretKey string        // Секретный ключ для подписи токенов.
	tokenTTL  time.Duration // Время жизни токена.
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
	}
}
