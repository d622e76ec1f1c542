// Package resetrequest реализует HTTP-обработчик запроса восстановления
// пароля. Ответ одинаков для существующих и несуществующих учётных
// записей, чтобы исключить перебор имён и адресов.
package resetrequest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/metrics"
)

// Request — структура входных данных запроса восстановления.
// Идентификатором может быть имя пользователя или email.
type Request struct {
	Identifier string `json:"identifier" validate:"required,min=3,max=254"`
}

// Service описывает интерфейс выпуска токенов восстановления.
type Service interface {
	Issue(ctx context.Context, identifier string) error
}

// Handler обрабатывает HTTP-запросы восстановления пароля.
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
// @Summary Запрос восстановления пароля
// @Description Отправляет письмо со ссылкой восстановления, если учётная запись существует.
// @Tags Reset
// @Accept  json
// @Produce  json
// @Param request body Request true "Имя пользователя или email"
// @Success 200 {object} response.Response "Запрос принят"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /reset/request [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.reset.request"

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

	metrics.ResetRequests.Inc()
	if err := h.service.Issue(r.Context(), req.Identifier); err != nil {
		log.Error("failed to issue reset token", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}

	render.JSON(w, r, response.OKWithData(
		"if this account exists, a reset link has been sent"))
}
