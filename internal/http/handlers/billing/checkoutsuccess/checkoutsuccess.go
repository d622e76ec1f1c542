// Package checkoutsuccess реализует HTTP-обработчик возврата после
// оплаты.
//
// Ссылка возврата проходит через браузер, поэтому личность пользователя
// устанавливается по подписанному серверному токену, а состояние
// оплаты — запросом к провайдеру. Параметры запроса сами по себе
// ничего не доказывают.
package checkoutsuccess

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/squeezeai/account-service/internal/billing"
	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/checkouttoken"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/models"
)

// Repository описывает доступ к подпискам.
type Repository interface {
	GetSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
	StartTrial(ctx context.Context, userUID, customerID, externalID string, startedAt, periodEnd time.Time) error
}

// BillingClient возвращает checkout-сессию по идентификатору.
type BillingClient interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*billing.CheckoutSession, error)
}

// TokenParser проверяет подписанную ссылку возврата.
type TokenParser interface {
	Parse(tokenStr string) (*checkouttoken.Claims, error)
}

// EntitlementInvalidator сбрасывает кеш доступа после перехода.
type EntitlementInvalidator interface {
	InvalidateEntitlement(ctx context.Context, userUID string)
}

// Handler обрабатывает возврат после успешной оплаты.
type Handler struct {
	log          *slog.Logger
	repo         Repository
	client       BillingClient
	tokens       TokenParser
	entitlements EntitlementInvalidator
	trialDays    int
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, repo Repository, client BillingClient, tokens TokenParser,
	entitlements EntitlementInvalidator, trialDays int) *Handler {
	return &Handler{
		log:          log,
		repo:         repo,
		client:       client,
		tokens:       tokens,
		entitlements: entitlements,
		trialDays:    trialDays,
	}
}

// ServeHTTP godoc
// @Summary Возврат после оплаты
// @Description Проверяет подписанную ссылку возврата и состояние оплаты у провайдера.
// @Tags Billing
// @Produce  json
// @Param session_id query string true "Идентификатор checkout-сессии"
// @Param ref query string true "Подписанная ссылка возврата"
// @Success 200 {object} map[string]any "Подписка оформлена"
// @Failure 400 {object} response.ErrorResponse "Отсутствуют параметры"
// @Failure 403 {object} response.ErrorResponse "Ссылка не прошла проверку"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /billing/success [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkoutsuccess"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	sessionID := r.URL.Query().Get("session_id")
	refToken := r.URL.Query().Get("ref")
	if sessionID == "" || refToken == "" {
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing checkout parameters"))
		return
	}

	claims, err := h.tokens.Parse(refToken)
	if err != nil {
		log.Warn("checkout reference rejected", sl.Err(err))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("invalid checkout reference"))
		return
	}

	session, err := h.client.GetCheckoutSession(r.Context(), sessionID)
	if err != nil {
		log.Error("failed to fetch checkout session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("billing provider unavailable"))
		return
	}

	// Сессия у провайдера должна принадлежать той же попытке оформления,
	// что и подписанный токен.
	if session.Metadata["user_uid"] != claims.UserUID ||
		session.Metadata["checkout_ref"] != claims.CheckoutRef {
		log.Warn("checkout session does not match signed reference",
			slog.String("session_id", sessionID))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("invalid checkout reference"))
		return
	}
	if session.Status != "complete" {
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("payment is not completed"))
		return
	}

	// Webhook мог ещё не дойти: оформляем триал здесь, повторный
	// checkout.session.completed запишет те же значения.
	sub, err := h.repo.GetSubscription(r.Context(), claims.UserUID)
	if err != nil {
		log.Error("failed to load subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}
	if sub.Status != models.StatusTrialing && sub.Status != models.StatusActive {
		now := time.Now().UTC()
		err := h.repo.StartTrial(r.Context(), claims.UserUID, session.Customer,
			session.Subscription, now, now.AddDate(0, 0, h.trialDays))
		if err != nil {
			log.Error("failed to start trial", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal service error"))
			return
		}
		h.entitlements.InvalidateEntitlement(r.Context(), claims.UserUID)
	}

	log.Info("checkout confirmed", slog.String("user_uid", claims.UserUID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"plan":   models.PlanPro,
		"status": models.StatusTrialing,
	}))
}
