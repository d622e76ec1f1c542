// Package accountservice предоставляет маршруты основного приложения.
package accountservice

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/squeezeai/account-service/internal/billing"
	"github.com/squeezeai/account-service/internal/config"
	"github.com/squeezeai/account-service/internal/http/handlers/auth/changepassword"
	"github.com/squeezeai/account-service/internal/http/handlers/auth/login"
	"github.com/squeezeai/account-service/internal/http/handlers/auth/logout"
	"github.com/squeezeai/account-service/internal/http/handlers/auth/register"
	"github.com/squeezeai/account-service/internal/http/handlers/billing/cancel"
	"github.com/squeezeai/account-service/internal/http/handlers/billing/checkoutcreate"
	"github.com/squeezeai/account-service/internal/http/handlers/billing/checkoutsuccess"
	"github.com/squeezeai/account-service/internal/http/handlers/billing/portal"
	webhookhandler "github.com/squeezeai/account-service/internal/http/handlers/billing/webhook"
	"github.com/squeezeai/account-service/internal/http/handlers/health"
	"github.com/squeezeai/account-service/internal/http/handlers/reset/resetconfirm"
	"github.com/squeezeai/account-service/internal/http/handlers/reset/resetrequest"
	"github.com/squeezeai/account-service/internal/http/handlers/subscription/entitlement"
	"github.com/squeezeai/account-service/internal/http/handlers/subscription/status"
	"github.com/squeezeai/account-service/internal/http/middlewarectx"
	"github.com/squeezeai/account-service/internal/lib/checkouttoken"
	"github.com/squeezeai/account-service/internal/services/auth"
	"github.com/squeezeai/account-service/internal/services/loginlimit"
	"github.com/squeezeai/account-service/internal/services/notify"
	"github.com/squeezeai/account-service/internal/services/reset"
	"github.com/squeezeai/account-service/internal/services/session"
	"github.com/squeezeai/account-service/internal/services/subscription"
	"github.com/squeezeai/account-service/internal/services/webhook"
	"github.com/squeezeai/account-service/internal/storage/repository"
)

// Services зависимости HTTP-слоя.
type Services struct {
	DB            *repository.Storage
	Auth          *auth.Service
	Limiter       *loginlimit.Limiter
	Sessions      *session.Registry
	Reset         *reset.Service
	Subscriptions *subscription.Service
	Webhooks      *webhook.Processor
	Billing       *billing.Client
	Checkout      *checkouttoken.Maker
	Mail          *notify.Publisher
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, s *Services) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	limiter := rate.NewLimiter(50, 100)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger, limiter))
			r.Post("/register", register.New(logger, s.Auth, s.Mail).ServeHTTP)
			r.Post("/login", login.New(logger, s.Auth, s.Sessions, s.Limiter, cfg.SessionTTL).ServeHTTP)
			r.Post("/reset/request", resetrequest.New(logger, s.Reset).ServeHTTP)
			r.Post("/reset/confirm", resetconfirm.New(logger, s.Reset).ServeHTTP)
		})

		// Возврат после оплаты: личность устанавливает подписанная ссылка,
		// сессия не требуется.
		r.Get("/billing/success", checkoutsuccess.New(logger, s.DB, s.Billing,
			s.Checkout, s.Subscriptions, cfg.TrialDays).ServeHTTP)

		// Группа с аутентификацией по сессии
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.SessionMiddleware(s.Sessions, logger))
			r.Post("/logout", logout.New(logger, s.Sessions, s.Auth).ServeHTTP)
			r.Post("/change-password", changepassword.New(logger, s.Auth).ServeHTTP)
			r.Get("/subscription", status.New(logger, s.Subscriptions).ServeHTTP)
			r.Post("/billing/checkout", checkoutcreate.New(logger, s.DB, s.Billing,
				s.Checkout, cfg.BaseURL).ServeHTTP)
			r.Post("/billing/portal", portal.New(logger, s.DB, s.Billing, cfg.BaseURL).ServeHTTP)
			r.Post("/billing/cancel", cancel.New(logger, s.DB, s.Billing).ServeHTTP)
		})

		// Проверка доступа для смежных сервисов: отказ выдаёт middleware
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.SessionMiddleware(s.Sessions, logger))
			r.Use(middlewarectx.EntitlementMiddleware(logger, s.Subscriptions))
			r.Get("/entitlement", entitlement.New(logger).ServeHTTP)
		})

		// Webhook endpoint (подпись вместо сессии)
		r.Post("/billing/webhook", webhookhandler.New(logger, s.Webhooks).ServeHTTP)
	})

	r.Get("/health", health.New(logger, s.DB).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
