// Package accountservice собирает и запускает основной HTTP-сервис
// учётных записей: хранилище, кеш, очередь писем, бизнес-сервисы и
// маршруты.
package accountservice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/squeezeai/account-service/internal/billing"
	"github.com/squeezeai/account-service/internal/cache"
	"github.com/squeezeai/account-service/internal/config"
	"github.com/squeezeai/account-service/internal/lib/checkouttoken"
	"github.com/squeezeai/account-service/internal/lib/password"
	"github.com/squeezeai/account-service/internal/lib/rabbitmq"
	"github.com/squeezeai/account-service/internal/migrations"
	authservice "github.com/squeezeai/account-service/internal/services/auth"
	"github.com/squeezeai/account-service/internal/services/loginlimit"
	"github.com/squeezeai/account-service/internal/services/maintenance"
	"github.com/squeezeai/account-service/internal/services/notify"
	resetservice "github.com/squeezeai/account-service/internal/services/reset"
	sessionservice "github.com/squeezeai/account-service/internal/services/session"
	subscriptionservice "github.com/squeezeai/account-service/internal/services/subscription"
	webhookservice "github.com/squeezeai/account-service/internal/services/webhook"
	"github.com/squeezeai/account-service/internal/storage/repository"
)

// App основное приложение сервиса учётных записей.
type App struct {
	server  *http.Server
	sweeper *maintenance.Sweeper
	db      *repository.Storage
	amqp    *amqp.Connection
	ch      *amqp.Channel
	logger  *slog.Logger
}

// New собирает приложение из конфигурации: подключения, миграции,
// сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetEmailQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	hasher := password.NewHasher(cfg.BcryptCost)
	mail := notify.New(ch)

	authSvc := authservice.New(db, hasher, cfg.StrictPasswordRules, logger)
	limiter := loginlimit.New(db, cfg.MaxLoginAttempts, cfg.LoginAttemptWindow, logger)
	sessions := sessionservice.New(db, cfg.SessionTTL, cfg.SessionRetention, logger)
	resetSvc := resetservice.New(db, mail, hasher, cfg.BaseURL, cfg.ResetTokenTTL,
		cfg.StrictPasswordRules, logger)
	subscriptions := subscriptionservice.New(db, cacheRedis, cfg.TrialDays, logger)
	webhooks := webhookservice.New(db, subscriptions, cfg.WebhookSecret,
		cfg.SignatureTolerance, cfg.TrialDays, cfg.DowngradeAfterFails, logger)

	billingClient := billing.NewClient(cfg.Billing)
	checkoutTokens := checkouttoken.NewMaker(cfg.CheckoutTokenSecret, cfg.CheckoutTokenTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, &Services{
		DB:            db,
		Auth:          authSvc,
		Limiter:       limiter,
		Sessions:      sessions,
		Reset:         resetSvc,
		Subscriptions: subscriptions,
		Webhooks:      webhooks,
		Billing:       billingClient,
		Checkout:      checkoutTokens,
		Mail:          mail,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	sweeper := maintenance.New(sessions, limiter, db, time.Hour, logger)

	return &App{
		server:  srv,
		sweeper: sweeper,
		db:      db,
		amqp:    conn,
		ch:      ch,
		logger:  logger,
	}, nil
}

// Run запускает HTTP-сервер и цикл плановых чисток, останавливая их
// по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	go a.sweeper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.ch.Close(); closeErr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", closeErr))
		}
		if closeErr := a.amqp.Close(); closeErr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		a.db.DB.Close()
		return err
	}
}
