// Package portal реализует HTTP-обработчик создания сессии личного
// кабинета управления подпиской у провайдера.
package portal

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

// BillingClient создает сессию кабинета у провайдера.
type BillingClient interface {
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*billing.PortalSession, error)
}

// Handler обрабатывает HTTP-запросы кабинета управления подпиской.
type Handler struct {
	log     *slog.Logger
	repo    Repository
	client  BillingClient
	baseURL string
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, repo Repository, client BillingClient, baseURL string) *Handler {
	return &Handler{log: log, repo: repo, client: client, baseURL: baseURL}
}

// ServeHTTP godoc
// @Summary Кабинет управления подпиской
// @Description Создает сессию кабинета провайдера и возвращает её URL.
// @Tags Billing
// @Produce  json
// @Success 200 {object} map[string]any "URL кабинета"
// @Failure 401 {object} response.ErrorResponse "Нет активной сессии"
// @Failure 409 {object} response.ErrorResponse "Нет платёжного профиля"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /billing/portal [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.portal"

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
	if sub.ExternalCustomerID == "" {
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("no billing profile"))
		return
	}

	session, err := h.client.CreatePortalSession(r.Context(), sub.ExternalCustomerID, h.baseURL)
	if err != nil {
		log.Error("failed to create portal session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("billing provider unavailable"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"portal_url": session.URL,
	}))
}
