// Package confirm принимает от платёжной системы сообщение о проведённом списании.
//
// Повторное подтверждение той же транзакции отвечает 200 с duplicate=true.
// Испорченный payload отвечает 422: деньги списаны, но подписка не выдана.
package confirm

import (
	"context"
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
	"github.com/magabrotheeeer/premium-entitlements/internal/services/entitlement"
	"github.com/magabrotheeeer/premium-entitlements/internal/services/payment"
)

type Service interface {
	Confirm(ctx context.Context, c models.Confirmation) (models.Receipt, error)
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
	const op = "handlers.payment.confirm"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.Confirmation
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

	receipt, err := h.service.Confirm(r.Context(), req)
	switch {
	case errors.Is(err, payment.ErrPayloadCorruption):
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("payload corruption"))
		return
	case errors.Is(err, entitlement.ErrInvalidAmount), errors.Is(err, entitlement.ErrInvalidUser):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
		return
	case err != nil:
		log.Error("failed to confirm payment", slog.String("txn_id", req.ExternalTxnID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not confirm payment"))
		return
	}

	log.Info("payment confirmed",
		slog.Int64("user_id", req.UserID),
		slog.String("txn_id", req.ExternalTxnID),
		slog.Bool("duplicate", receipt.Duplicate),
	)
	render.JSON(w, r, response.StatusOKWithData(receipt))
}
