package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test_secret_key_1234567890"

func TestJWTMaker_GenerateAndParseToken(t *testing.T) {
	tokenTTL := 15 * time.Minute
	maker := NewJWTMaker(testSecret, tokenTTL)

	tests := []struct {
		name   string
		userID int64
		role   string
	}{
		{name: "администратор", userID: 100500, role: RoleAdmin},
		{name: "обычный пользователь", userID: 42, role: "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := maker.GenerateToken(tt.userID, tt.role)
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			claims, err := maker.ParseToken(token)
			require.NoError(t, err)

			assert.Equal(t, tt.userID, claims.UserID)
			assert.Equal(t, tt.role, claims.Role)
			assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second)
			assert.WithinDuration(t, time.Now().Add(tokenTTL), claims.ExpiresAt.Time, time.Second)
		})
	}
}

func TestJWTMaker_ParseToken_InvalidTokens(t *testing.T) {
	maker := NewJWTMaker(testSecret, 15*time.Minute)

	validToken, err := maker.GenerateToken(1, RoleAdmin)
	require.NoError(t, err)

	expired, err := NewJWTMaker(testSecret, -time.Hour).GenerateToken(1, RoleAdmin)
	require.NoError(t, err)

	wrongSecret, err := NewJWTMaker("wrong_secret_key", 15*time.Minute).GenerateToken(1, RoleAdmin)
	require.NoError(t, err)

	noneAlg, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, CustomClaims{UserID: 1, Role: RoleAdmin}).
		SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "пустой токен", token: ""},
		{name: "некорректный токен", token: "invalid.token.here"},
		{name: "истёкший токен", token: expired},
		{name: "чужой ключ", token: wrongSecret},
		{name: "изменённый токен", token: validToken + "tampered"},
		{name: "алгоритм none", token: noneAlg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := maker.ParseToken(tt.token)
			assert.Error(t, err)
			assert.Nil(t, claims)
		})
	}
}
