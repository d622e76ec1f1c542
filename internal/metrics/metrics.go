// Package metrics регистрирует счётчики Prometheus для событий безопасности
// и обработки webhook-событий. Сами значения отдаются через /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FailedLogins количество неудачных попыток входа.
	FailedLogins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "account_failed_logins_total",
		Help: "Number of failed login attempts.",
	})

	// RateLimitedLogins количество входов, отклонённых лимитером до проверки пароля.
	RateLimitedLogins = promauto.NewCounter(prometheus.CounterOpts{
		Name: "account_rate_limited_logins_total",
		Help: "Number of login attempts rejected by the rate limiter.",
	})

	// ResetRequests количество запросов на сброс пароля.
	ResetRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "account_password_reset_requests_total",
		Help: "Number of password reset requests.",
	})

	// WebhookSignatureFailures количество отклонённых подписей webhook.
	WebhookSignatureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_webhook_signature_failures_total",
		Help: "Number of webhook deliveries rejected due to bad signature.",
	})

	// WebhookEvents обработанные webhook-события по типам.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Number of processed webhook events by type.",
	}, []string{"type"})
)
