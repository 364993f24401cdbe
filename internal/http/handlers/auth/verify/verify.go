// Package verify реализует HTTP-обработчик верификации пользователя
// платёжной сети Pi.
//
// Handler принимает токен доступа, полученный клиентским SDK, проверяет
// его через идентификационный эндпоинт провайдера, создаёт либо обновляет
// локальную запись пользователя и возвращает представление статуса вместе
// с JWT сессии приложения.
package verify

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
	"github.com/mirfateev/pi-premium/internal/models"
)

// Request — структура входных данных для верификации.
//
// AccessToken обязателен; Username — необязательная запасная подпись,
// используется только если провайдер не вернул имя.
type Request struct {
	AccessToken string `json:"access_token" validate:"required"`
	Username    string `json:"username"`
}

// Handler обрабатывает HTTP-запросы верификации пользователей.
type Handler struct {
	log      *slog.Logger        // Логгер для записи операций и ошибок
	service  Service             // Сервис верификации пользователей
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики верификации.
type Service interface {
	Verify(ctx context.Context, accessToken, fallbackUsername string) (*models.UserView, string, error)
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
// @Summary Верификация пользователя сети Pi
// @Description Проверяет токен доступа через провайдера, создаёт или обновляет пользователя и возвращает его статус с JWT сессии.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Токен доступа и запасное имя"
// @Success 200 {object} map[string]any "Успешная верификация"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Токен отклонён провайдером"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/verify [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.verify"
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
	log.Info("request body decoded")

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	view, token, err := h.service.Verify(r.Context(), req.AccessToken, req.Username)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrUnauthorized):
			log.Error("access token rejected", sl.Err(err))
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("access token rejected"))
		case errors.Is(err, errs.ErrValidation):
			log.Error("validation failed", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error("access token is required"))
		default:
			log.Error("failed to verify user", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not verify user"))
		}
		return
	}

	log.Info("user verified", slog.String("user_uid", view.UID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"user":  view,
		"token": token,
	}))
}
