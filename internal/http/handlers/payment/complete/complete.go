// Package complete реализует HTTP-обработчик завершения платежа.
//
// Handler принимает идентификатор платежа и блокчейн-транзакции,
// делегирует завершение оркестратору и возвращает новую дату окончания
// премиум-доступа. Ошибка фиксации после подтверждения провайдером
// отдаётся с отдельным сообщением — такой платёж требует сверки.
package complete

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/mirfateev/pi-premium/internal/errs"
	"github.com/mirfateev/pi-premium/internal/http/response"
	"github.com/mirfateev/pi-premium/internal/lib/sl"
	"github.com/mirfateev/pi-premium/internal/models"
	"github.com/mirfateev/pi-premium/internal/services/entitlement"
)

// Request — структура входных данных для завершения платежа.
type Request struct {
	PaymentID string `json:"payment_id" validate:"required"`
	TxID      string `json:"txid" validate:"required"`
}

// Handler обрабатывает HTTP-запросы завершения платежей.
type Handler struct {
	log      *slog.Logger        // Логгер для записи операций и ошибок
	service  Service             // Оркестратор завершения платежей
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс оркестратора завершения платежа.
type Service interface {
	Complete(ctx context.Context, paymentID, txid string) (*models.User, error)
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
// @Summary Завершить платёж
// @Description Подтверждает завершение платежа у провайдера и начисляет премиум-дни плательщику. Повторное завершение того же платежа дней не начисляет.
// @Tags Payments
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Идентификаторы платежа и блокчейн-транзакции"
// @Success 200 {object} map[string]any "Платёж зачислен"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 502 {object} response.ErrorResponse "Ошибка провайдера"
// @Failure 500 {object} response.ErrorResponse "Платёж подтверждён, но не зачислен"
// @Router /payments/complete [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.complete"
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

	user, err := h.service.Complete(r.Context(), req.PaymentID, req.TxID)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrValidation):
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("payment id and txid are required"))
		case errors.Is(err, errs.ErrProvider):
			log.Error("provider call failed", sl.Err(err))
			w.WriteHeader(http.StatusBadGateway)
			render.JSON(w, r, response.Error("could not complete payment"))
		case errors.Is(err, errs.ErrCreditNotRecorded):
			// Платёж подтверждён у провайдера, но не зачислен локально —
			// оператору нужно воспроизвести начисление по журналу событий.
			log.Error("payment confirmed but not credited", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("payment confirmed but not credited, contact support"))
		default:
			log.Error("failed to complete payment", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal error"))
		}
		return
	}

	remaining := entitlement.ComputeRemainingDays(user.PremiumExpiry, time.Now().UTC())
	log.Info("payment completed",
		slog.String("payment_id", req.PaymentID),
		slog.String("user_uid", user.UID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"premium_expiry": user.PremiumExpiry,
		"remaining_days": remaining,
		"is_premium":     user.IsPremium && remaining > 0,
	}))
}
