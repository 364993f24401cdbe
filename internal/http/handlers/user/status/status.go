// Package status реализует HTTP-обработчик запроса статуса пользователя.
//
// Handler обслуживает два маршрута: /users/me берёт uid из JWT сессии,
// /users/{uid} — из URL. В обоих случаях возвращается представление с
// пересчитанным премиум-статусом и последними транзакциями.
package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/mirfateev/pi-premium/internal/errs"
	"github.com/mirfateev/pi-premium/internal/http/middlewarectx"
	"github.com/mirfateev/pi-premium/internal/http/response"
	"github.com/mirfateev/pi-premium/internal/lib/sl"
	"github.com/mirfateev/pi-premium/internal/models"
)

// Handler обрабатывает запросы статуса пользователя.
type Handler struct {
	log     *slog.Logger // Логгер для записи информации и ошибок
	service Service      // Сервис составления представления пользователя
}

// Service описывает интерфейс бизнес-логики запроса статуса.
type Service interface {
	Status(ctx context.Context, uid string) (*models.UserView, error)
}

// New создает новый Handler с переданным логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Статус пользователя
// @Description Возвращает премиум-статус пользователя и последние транзакции. Без параметра uid берётся пользователь из JWT сессии.
// @Tags Users
// @Produce  json
// @Security BearerAuth
// @Param uid path string false "Идентификатор пользователя в сети Pi"
// @Success 200 {object} map[string]any "Статус пользователя"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /users/{uid} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.status"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	uid := chi.URLParam(r, "uid")
	if uid == "" {
		ctxUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
		if !ok || ctxUID == "" {
			log.Error("user uid not found in context")
			w.WriteHeader(http.StatusUnauthorized)
			render.JSON(w, r, response.Error("unauthorized"))
			return
		}
		uid = ctxUID
	}

	view, err := h.service.Status(r.Context(), uid)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			log.Error("user not found", slog.String("user_uid", uid))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to get user status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not get user status"))
		return
	}

	log.Info("user status composed", slog.String("user_uid", uid))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"user": view,
	}))
}
