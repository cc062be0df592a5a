// Package offer реализует HTTP-обработчик выбора тарифа: возвращает счёт
// с ценой и непрозрачным payload для платёжной системы.
package offer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/premium-entitlements/internal/http/response"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
	"github.com/magabrotheeeer/premium-entitlements/internal/plans"
)

type Service interface {
	Quote(userID int64, planTag string) (models.Offer, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.offer"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyOffer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Error("validation failed", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
	}

	offer, err := h.service.Quote(req.UserID, req.Plan)
	if errors.Is(err, plans.ErrInvalidPlan) {
		log.Warn("unknown plan requested", slog.String("plan", req.Plan))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("unknown plan"))
		return
	}
	if err != nil {
		log.Error("failed to quote", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not build offer"))
		return
	}

	log.Info("offer built", slog.Int64("user_id", req.UserID), slog.String("plan", req.Plan))
	render.JSON(w, r, response.StatusOKWithData(offer))
}
