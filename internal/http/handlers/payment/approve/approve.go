// Package approve реализует HTTP-обработчик серверного подтверждения платежа.
package approve

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/mirfateev/pi-premium/internal/errs"
	"github.com/mirfateev/pi-premium/internal/http/response"
	"github.com/mirfateev/pi-premium/internal/lib/sl"
)

// Request — структура входных данных для подтверждения платежа.
type Request struct {
	PaymentID string `json:"payment_id" validate:"required"`
}

// Handler обрабатывает HTTP-запросы подтверждения платежей.
type Handler struct {
	log      *slog.Logger        // Логгер для записи операций и ошибок
	service  Service             // Сервис обработки платежей
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики подтверждения платежа.
type Service interface {
	Approve(ctx context.Context, paymentID string) error
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Подтвердить платёж
// @Description Передаёт провайдеру серверное подтверждение платежа (approve).
// @Tags Payments
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Идентификатор платежа"
// @Success 200 {object} map[string]any "Платёж подтверждён"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Провайдер отклонил подтверждение"
// @Router /payments/approve [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.approve"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.Approve(r.Context(), req.PaymentID); err != nil {
		if errors.Is(err, errs.ErrProvider) {
			log.Error("provider rejected approval", sl.Err(err))
			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, response.Error("could not approve payment"))
			return
		}
		log.Error("failed to approve payment", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("payment approved", slog.String("payment_id", req.PaymentID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"payment_id": req.PaymentID,
	}))
}
