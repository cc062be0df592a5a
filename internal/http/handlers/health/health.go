// Package health реализует проверки живости и готовности сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-entitlements/internal/http/response"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
)

const readyTimeout = 2 * time.Second

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	log     *slog.Logger
	service string
}

// New создаёт обработчик /health. service попадает в ответ.
func New(log *slog.Logger, service string) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":  "ok",
		"service": h.service,
	})
}

// Ready возвращает обработчик /ready: 503, если хранилище недоступно.
func Ready(log *slog.Logger, pinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.health.ready"
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := pinger.Ping(ctx); err != nil {
			log.Error("storage is not ready", slog.String("op", op), sl.Err(err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("storage unavailable"))
			return
		}
		render.JSON(w, r, response.StatusOKWithData(map[string]string{"storage": "ok"}))
	}
}
