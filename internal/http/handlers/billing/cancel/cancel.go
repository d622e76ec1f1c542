// Package cancel реализует HTTP-обработчик отмены подписки.
//
// Отмена просит провайдера не продлевать подписку; доступ сохраняется
// до конца оплаченного периода. Локальный флаг cancelled поставит
// webhook customer.subscription.updated.
package cancel

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/squeezeai/account-service/internal/billing"
	"github.com/squeezeai/account-service/internal/http/middlewarectx"
	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/models"
)

// Repository описывает доступ к подпискам.
type Repository interface {
	GetSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
}

// BillingClient отменяет продление подписки у провайдера.
type BillingClient interface {
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) (*billing.ProviderSubscription, error)
}

// Handler обрабатывает HTTP-запросы отмены подписки.
type Handler struct {
	log    *slog.Logger
	repo   Repository
	client BillingClient
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, repo Repository, client BillingClient) *Handler {
	return &Handler{log: log, repo: repo, client: client}
}

// ServeHTTP godoc
// @Summary Отмена подписки
// @Description Отключает продление у провайдера. Доступ сохраняется до конца оплаченного периода.
// @Tags Billing
// @Produce  json
// @Success 200 {object} response.Response "Продление отключено"
// @Failure 401 {object} response.ErrorResponse "Нет активной сессии"
// @Failure 409 {object} response.ErrorResponse "Нет действующей подписки"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /billing/cancel [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.cancel"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("authentication required"))
		return
	}

	sub, err := h.repo.GetSubscription(r.Context(), userUID)
	if err != nil {
		log.Error("failed to load subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}
	if sub.ExternalSubscriptionID == "" ||
		(sub.Status != models.StatusTrialing && sub.Status != models.StatusActive) {
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("no active subscription"))
		return
	}
	if sub.Cancelled {
		render.JSON(w, r, response.OK())
		return
	}

	if _, err := h.client.CancelAtPeriodEnd(r.Context(), sub.ExternalSubscriptionID); err != nil {
		log.Error("failed to cancel subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("billing provider unavailable"))
		return
	}

	log.Info("subscription cancellation requested", slog.String("user_uid", userUID))
	render.JSON(w, r, response.OK())
}
