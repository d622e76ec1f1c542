// Package status реализует HTTP-обработчик чтения состояния подписки.
//
// Чтение идёт через ленивую сверку: отменённая подписка с истёкшим
// оплаченным периодом вернётся уже переведённой на бесплатный план.
package status

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/squeezeai/account-service/internal/http/middlewarectx"
	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/models"
)

// Service описывает интерфейс чтения подписки.
type Service interface {
	Get(ctx context.Context, userUID string) (*models.Subscription, error)
	NextBillingDate(sub *models.Subscription) (time.Time, error)
}

// Handler обрабатывает HTTP-запросы состояния подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Состояние подписки
// @Description Возвращает план, статус и дату следующего списания текущего пользователя.
// @Tags Subscription
// @Produce  json
// @Success 200 {object} map[string]any "Состояние подписки"
// @Failure 401 {object} response.ErrorResponse "Нет действующей сессии"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Security BearerAuth
// @Router /subscription [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.status"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	sub, err := h.service.Get(r.Context(), userUID)
	if err != nil {
		log.Error("failed to read subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}

	data := map[string]any{
		"plan":      sub.PlanType,
		"status":    sub.Status,
		"cancelled": sub.Cancelled,
	}
	if next, err := h.service.NextBillingDate(sub); err == nil {
		data["next_billing_date"] = next.UTC().Format(time.RFC3339)
	}

	render.JSON(w, r, response.OKWithData(data))
}
