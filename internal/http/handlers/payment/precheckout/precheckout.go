// Package precheckout отвечает платёжной системе на запрос предварительной авторизации.
// Ответ формируется только по каталогу тарифов, без обращения к хранилищу.
package precheckout

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/premium-entitlements/internal/http/response"
	"github.com/magabrotheeeer/premium-entitlements/internal/lib/sl"
	"github.com/magabrotheeeer/premium-entitlements/internal/models"
)

type Service interface {
	PreAuthorize(req models.PreAuthRequest) (models.PreAuthDecision, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.precheckout"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.PreAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	// отказ тоже штатный ответ: платёжная система ждёт решение, а не ошибку
	decision, err := h.service.PreAuthorize(req)
	if err != nil {
		log.Info("preauthorization rejected", slog.String("query_id", req.QueryID), sl.Err(err))
	}
	render.JSON(w, r, response.StatusOKWithData(decision))
}
