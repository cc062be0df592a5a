package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-entitlements/internal/http/response"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/jwt"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
)

// AdminOnly проверяет Bearer токен из заголовка Authorization: токен должен
// иметь роль admin и принадлежать пользователю из списка isAdmin.
// Идентификатор пользователя кладётся в контекст по ключу UserID.
func AdminOnly(parser TokenParser, isAdmin func(int64) bool, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AdminOnly"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}

			claims, err := parser.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired token"))
				return
			}
			if claims.Role != jwt.RoleAdmin || !isAdmin(claims.UserID) {
				log.Warn("access denied", slog.Int64("user_id", claims.UserID))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("access denied"))
				return
			}

			ctx := context.WithValue(r.Context(), UserID, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
