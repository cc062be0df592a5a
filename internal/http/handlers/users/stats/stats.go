// Package stats отдаёт администратору число пользователей, подписчиков и конверсию.
package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-entitlements/internal/http/middlewarectx"
	"github.com/magabrotheeeer/premium-entitlements/internal/http/response"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
)

type Service interface {
	Stats(ctx context.Context) (models.Stats, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.stats"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	stats, err := h.service.Stats(r.Context())
	if err != nil {
		log.Error("failed to collect stats", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not collect stats"))
		return
	}

	adminID, _ := middlewarectx.UserIDFrom(r.Context())
	log.Info("stats requested", slog.Int64("admin_id", adminID))
	render.JSON(w, r, response.StatusOKWithData(stats))
}
