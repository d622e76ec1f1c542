// Package checkoutcreate реализует HTTP-обработчик создания сессии
// оформления платной подписки.
//
// Объекты у провайдера создаются до локальных изменений; локальная
// подписка перейдёт в trialing только из проверенного webhook или
// валидированной ссылки возврата.
package checkoutcreate

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/squeezeai/account-service/internal/billing"
	"github.com/squeezeai/account-service/internal/http/middlewarectx"
	"github.com/squeezeai/account-service/internal/http/response"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/models"
)

// Repository описывает доступ к пользователям и подпискам.
type Repository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	GetSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
	SetExternalCustomerID(ctx context.Context, userUID, customerID string) error
}

// BillingClient описывает интерфейс клиента платёжного провайдера.
type BillingClient interface {
	FindCustomerByEmail(ctx context.Context, email string) (*billing.Customer, error)
	CreateCustomer(ctx context.Context, email, name, userUID string) (*billing.Customer, error)
	CreateCheckoutSession(ctx context.Context, customerID, userUID, checkoutRef, successURL, cancelURL string) (*billing.CheckoutSession, error)
}

// TokenMaker выпускает подписанную ссылку проверки возврата.
type TokenMaker interface {
	Generate(userUID, checkoutRef string) (string, error)
}

// Handler обрабатывает HTTP-запросы создания checkout-сессии.
type Handler struct {
	log     *slog.Logger
	repo    Repository
	client  BillingClient
	tokens  TokenMaker
	baseURL string
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, repo Repository, client BillingClient, tokens TokenMaker, baseURL string) *Handler {
	return &Handler{
		log:     log,
		repo:    repo,
		client:  client,
		tokens:  tokens,
		baseURL: baseURL,
	}
}

// ServeHTTP godoc
// @Summary Создание checkout-сессии
// @Description Создает сессию оформления подписки у провайдера и возвращает URL оплаты.
// @Tags Billing
// @Produce  json
// @Success 200 {object} map[string]any "URL сессии оформления"
// @Failure 401 {object} response.ErrorResponse "Нет активной сессии"
// @Failure 409 {object} response.ErrorResponse "Подписка уже оформлена"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /billing/checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkoutcreate"

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
	if sub.Status == models.StatusTrialing || sub.Status == models.StatusActive {
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("subscription already active"))
		return
	}

	customerID := sub.ExternalCustomerID
	if customerID == "" {
		user, err := h.repo.GetUser(r.Context(), userUID)
		if err != nil {
			log.Error("failed to load user", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal service error"))
			return
		}

		customer, err := h.client.FindCustomerByEmail(r.Context(), user.Email)
		if err != nil {
			log.Error("failed to look up provider customer", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("billing provider unavailable"))
			return
		}
		if customer == nil {
			name := user.FirstName + " " + user.LastName
			customer, err = h.client.CreateCustomer(r.Context(), user.Email, name, userUID)
			if err != nil {
				log.Error("failed to create provider customer", sl.Err(err))
				w.WriteHeader(http.StatusInternalServerError)
				render.JSON(w, r, response.Error("billing provider unavailable"))
				return
			}
		}
		customerID = customer.ID
		if err := h.repo.SetExternalCustomerID(r.Context(), userUID, customerID); err != nil {
			log.Error("failed to store customer id", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("internal service error"))
			return
		}
	}

	checkoutRef := uuid.NewString()
	refToken, err := h.tokens.Generate(userUID, checkoutRef)
	if err != nil {
		log.Error("failed to sign checkout reference", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}

	// Идентификатор сессии подставит провайдер; ref — единственное,
	// чему доверяет обработчик возврата.
	successURL := h.baseURL + "/api/v1/billing/success?session_id={CHECKOUT_SESSION_ID}&ref=" + url.QueryEscape(refToken)
	cancelURL := h.baseURL + "/api/v1/billing/cancelled"

	session, err := h.client.CreateCheckoutSession(r.Context(), customerID, userUID, checkoutRef, successURL, cancelURL)
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("billing provider unavailable"))
		return
	}

	log.Info("checkout session created", slog.String("user_uid", userUID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"checkout_url": session.URL,
	}))
}
