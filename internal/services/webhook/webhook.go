// Package webhook обрабатывает события платёжного провайдера.
//
// Подпись проверяется до разбора тела и при любом сомнении запрос
// отклоняется. Дедупликация и переход состояния подписки выполняются
// одной транзакцией: строка журнала событий и изменение подписки либо
// фиксируются вместе, либо не фиксируются вовсе.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/squeezeai/account-service/internal/metrics"
	"github.com/squeezeai/account-service/internal/models"
	"github.com/squeezeai/account-service/internal/storage/repository"
)

// Ошибки проверки подписи и разбора события.
var (
	ErrBadSignature = errors.New("webhook signature verification failed")
	ErrBadPayload   = errors.New("malformed webhook payload")
)

// Event верхний уровень события провайдера. Разбирается только то,
// что нужно диспетчеру; остальные поля игнорируются.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object eventObject `json:"object"`
	} `json:"data"`
}

type eventObject struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	PeriodEnd         int64             `json:"period_end"`
	Metadata          map[string]string `json:"metadata"`
}

// EventRepository описывает контракт хранилища для обработки событий.
type EventRepository interface {
	// ProcessEvent выполняет apply в одной транзакции со вставкой строки
	// журнала; повторный event id возвращает (false, nil) без apply.
	ProcessEvent(ctx context.Context, eventID, eventType string, apply func(db repository.DBTX) error) (bool, error)
	GetSubscriptionByExternalID(ctx context.Context, externalID string) (*models.Subscription, error)
}

// EntitlementInvalidator сбрасывает кеш доступа после перехода.
type EntitlementInvalidator interface {
	InvalidateEntitlement(ctx context.Context, userUID string)
}

// Processor проверяет подписи и применяет события к подписке.
type Processor struct {
	repo           EventRepository
	entitlements   EntitlementInvalidator
	secret         []byte
	tolerance      time.Duration
	trialDays      int
	downgradeAfter int // 0 — не понижать автоматически
	log            *slog.Logger
}

// New создает Processor. tolerance — допустимый возраст метки времени
// в подписи, downgradeAfter — порог неуспешных списаний до перевода
// на бесплатный план (0 отключает понижение).
func New(repo EventRepository, entitlements EntitlementInvalidator, secret string,
	tolerance time.Duration, trialDays, downgradeAfter int, log *slog.Logger) *Processor {
	return &Processor{
		repo:           repo,
		entitlements:   entitlements,
		secret:         []byte(secret),
		tolerance:      tolerance,
		trialDays:      trialDays,
		downgradeAfter: downgradeAfter,
		log:            log,
	}
}

// VerifySignature проверяет заголовок вида "t=<unix>,v1=<hex>".
// Допускается несколько значений v1 (ротация секрета на стороне
// провайдера); достаточно совпадения любого. Сравнение — за
// постоянное время, любой дефект формата отклоняет запрос.
func (p *Processor) VerifySignature(payload []byte, header string, now time.Time) error {
	var timestamp int64
	var signatures [][]byte

	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				metrics.WebhookSignatureFailures.Inc()
				return ErrBadSignature
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(v)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		metrics.WebhookSignatureFailures.Inc()
		return ErrBadSignature
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > p.tolerance || age < -p.tolerance {
		metrics.WebhookSignatureFailures.Inc()
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	metrics.WebhookSignatureFailures.Inc()
	return ErrBadSignature
}

// ParseEvent разбирает тело события после проверки подписи.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, ErrBadPayload
	}
	return &event, nil
}

// Dispatch применяет событие к подписке. Неизвестные типы принимаются
// и игнорируются без строки в журнале — провайдер не должен повторять
// их доставку. Ошибка возвращается, когда событие не удалось применить
// (в том числе когда подписка ещё не существует из-за переупорядоченной
// доставки): провайдер повторит доставку позже.
func (p *Processor) Dispatch(ctx context.Context, event *Event) error {
	const op = "webhook.Dispatch"

	metrics.WebhookEvents.WithLabelValues(event.Type).Inc()
	obj := event.Data.Object

	var userUID string
	var apply func(db repository.DBTX) error

	switch event.Type {
	case "checkout.session.completed":
		uid := obj.Metadata["user_uid"]
		if uid == "" {
			return fmt.Errorf("%s: %w: checkout session without user_uid metadata", op, ErrBadPayload)
		}
		startedAt := time.Unix(event.Created, 0).UTC()
		periodEnd := startedAt.AddDate(0, 0, p.trialDays)
		userUID = uid
		apply = func(db repository.DBTX) error {
			return repository.StartTrialTx(ctx, db, uid, obj.Customer, obj.Subscription, startedAt, periodEnd)
		}

	case "customer.subscription.updated":
		uid, err := p.ownerOf(ctx, obj.ID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		userUID = uid
		if obj.CancelAtPeriodEnd {
			apply = func(db repository.DBTX) error {
				return repository.MarkCancelledTx(ctx, db, obj.ID)
			}
		} else {
			var periodEnd *time.Time
			if obj.CurrentPeriodEnd > 0 {
				t := time.Unix(obj.CurrentPeriodEnd, 0).UTC()
				periodEnd = &t
			}
			apply = func(db repository.DBTX) error {
				return repository.MarkActiveTx(ctx, db, obj.ID, periodEnd)
			}
		}

	case "customer.subscription.deleted":
		uid, err := p.ownerOf(ctx, obj.ID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		userUID = uid
		apply = func(db repository.DBTX) error {
			return repository.ResetToFreeTx(ctx, db, uid)
		}

	case "invoice.payment_succeeded":
		if obj.Subscription == "" {
			return fmt.Errorf("%s: %w: invoice without subscription id", op, ErrBadPayload)
		}
		uid, err := p.ownerOf(ctx, obj.Subscription)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		userUID = uid
		periodEnd := time.Unix(obj.PeriodEnd, 0).UTC()
		apply = func(db repository.DBTX) error {
			return repository.ExtendPeriodTx(ctx, db, obj.Subscription, periodEnd)
		}

	case "invoice.payment_failed":
		if obj.Subscription == "" {
			return fmt.Errorf("%s: %w: invoice without subscription id", op, ErrBadPayload)
		}
		uid, err := p.ownerOf(ctx, obj.Subscription)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		userUID = uid
		apply = func(db repository.DBTX) error {
			failures, err := repository.IncrementPaymentFailuresTx(ctx, db, obj.Subscription)
			if err != nil {
				return err
			}
			p.log.Warn("payment failed",
				slog.String("subscription", obj.Subscription),
				slog.Int("failures", failures))
			if p.downgradeAfter > 0 && failures >= p.downgradeAfter {
				return repository.ResetToFreeTx(ctx, db, uid)
			}
			return nil
		}

	default:
		p.log.Info("ignoring webhook event", slog.String("type", event.Type))
		return nil
	}

	applied, err := p.repo.ProcessEvent(ctx, event.ID, event.Type, apply)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !applied {
		p.log.Info("duplicate webhook event",
			slog.String("event_id", event.ID), slog.String("type", event.Type))
		return nil
	}

	p.entitlements.InvalidateEntitlement(ctx, userUID)
	p.log.Info("webhook event applied",
		slog.String("event_id", event.ID), slog.String("type", event.Type))
	return nil
}

func (p *Processor) ownerOf(ctx context.Context, externalID string) (string, error) {
	sub, err := p.repo.GetSubscriptionByExternalID(ctx, externalID)
	if err != nil {
		return "", err
	}
	return sub.UserUID, nil
}
