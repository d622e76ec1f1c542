// Package resetconfirm реализует HTTP-обработчик погашения токена
// восстановления и установки нового пароля.
package resetconfirm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/services/reset"
)

// Request — структура входных данных для погашения токена.
type Request struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// Service описывает интерфейс погашения токенов восстановления.
type Service interface {
	Redeem(ctx context.Context, tokenStr, newPassword string) error
}

// Handler обрабатывает HTTP-запросы погашения токена.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Установка нового пароля по токену восстановления
// @Description Гасит одноразовый токен и устанавливает новый пароль. Все сессии пользователя инвалидируются.
// @Tags Reset
// @Accept  json
// @Produce  json
// @Param request body Request true "Токен и новый пароль"
// @Success 200 {object} response.Response "Пароль изменён"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 410 {object} response.ErrorResponse "Токен не существует, использован или истёк"
// @Failure 422 {object} response.ErrorResponse "Слабый новый пароль"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /reset/confirm [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.reset.confirm"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
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

	if err := h.service.Redeem(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, reset.ErrTokenNotFound),
			errors.Is(err, reset.ErrTokenUsed),
			errors.Is(err, reset.ErrTokenExpired):
			// Наружу причины не различаются: знание о том, что токен
			// существовал, тоже информация.
			w.WriteHeader(http.StatusGone)
			render.JSON(w, r, response.Error("invalid or expired reset token"))
		case errors.Is(err, reset.ErrWeakPassword):
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.Error(err.Error()))
		default:
			log.Error("failed to redeem reset token", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal service error"))
		}
		return
	}

	render.JSON(w, r, response.OK())
}
