// Package status реализует HTTP-обработчик проверки премиум-доступа пользователя.
//
// Отсутствие подписки не является ошибкой: ответ всегда 200 с active=false.
// Тот же обработчик в режиме legacy отдаёт формат, который читает клиентское приложение.
package status

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-entitlements/internal/http/response"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
)

// Service описывает интерфейс проверки подписки.
type Service interface {
	CheckEntitlement(ctx context.Context, userID int64) (models.Status, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
	legacy  bool
}

// New создаёт обработчик, отдающий статус в формате {active, plan, endTimestamp, daysRemaining}.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// NewLegacy создаёт обработчик формата {has_subscription, plan, end_date, days_left}.
func NewLegacy(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service, legacy: true}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.entitlement.status"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || userID <= 0 {
		log.Error("failed to decode user_id from url", slog.String("user_id", chi.URLParam(r, "user_id")))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid user_id"))
		return
	}

	status, err := h.service.CheckEntitlement(r.Context(), userID)
	if err != nil {
		log.Error("failed to check entitlement", slog.Int64("user_id", userID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not check entitlement"))
		return
	}

	log.Debug("entitlement checked", slog.Int64("user_id", userID), slog.Bool("active", status.Active))
	if h.legacy {
		render.JSON(w, r, status.Legacy())
		return
	}
	render.JSON(w, r, status)
}
