// Package entitlements собирает HTTP-маршруты и фоновые обработчики сервиса подписок.
package entitlements

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/premium-entitlements/internal/config"
	"github.com/magabrotheeeer/premium-entitlements/internal/http/handlers/entitlement/status"
	"github.com/magabrotheeeer/premium-entitlements/internal/http/handlers/health"
	"github.com/magabrotheeeer/premium-entitlements/internal/http/handlers/payment/confirm"
	"github.com/magabrotheeeer/premium-entitlements/internal/http/handlers/payment/offer"
	"github.com/magabrotheeeer/premium-entitlements/internal/http/handlers/payment/precheckout"
	"github.com/magabrotheeeer/premium-entitlements/internal/http/handlers/users/contact"
	"github.com/magabrotheeeer/premium-entitlements/internal/http/handlers/users/stats"
	"github.com/magabrotheeeer/premium-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/jwt"
	entitlementservice "github.com/magabrotheeeer/premium-entitlements/internal/services/entitlement"
	paymentservice "github.com/magabrotheeeer/premium-entitlements/internal/services/payment"
	usersservice "github.com/magabrotheeeer/premium-entitlements/internal/services/users"
)

const serviceName = "premium-entitlements"

// Services зависимости обработчиков.
type Services struct {
	Engine *entitlementservice.Engine
	Flow   *paymentservice.Flow
	Users  *usersservice.Service
	Store  health.Pinger
	Tokens middlewarectx.TokenParser
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, svc Services) {
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		middlewarectx.Metrics,
	)

	r.Get("/health", health.New(logger, serviceName).ServeHTTP)
	r.Get("/ready", health.Ready(logger, svc.Store))

	// маршрут клиентского приложения из первой версии бота
	r.Get("/api/subscription/{user_id}", status.NewLegacy(logger, svc.Engine).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middlewarectx.RateLimitMiddleware(logger, rate.Limit(cfg.RateLimit), cfg.RateBurst)).
			Get("/entitlement/{user_id}", status.New(logger, svc.Engine).ServeHTTP)

		r.Post("/users", contact.New(logger, svc.Users).ServeHTTP)
		r.Post("/offers", offer.New(logger, svc.Flow).ServeHTTP)

		// вызовы платёжной системы подписаны HMAC
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.WebhookSignature(cfg.WebhookSecret, logger))
			r.Post("/payments/precheckout", precheckout.New(logger, svc.Flow).ServeHTTP)
			r.Post("/payments/confirm", confirm.New(logger, svc.Flow).ServeHTTP)
		})

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.AdminOnly(svc.Tokens, cfg.IsAdmin, logger))
			r.Get("/admin/stats", stats.New(logger, svc.Users).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
}

// NewTokenParser создаёт проверку токенов администратора из конфига.
func NewTokenParser(cfg config.Admin) *jwt.MakerImpl {
	return jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
}
