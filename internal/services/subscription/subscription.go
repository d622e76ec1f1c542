// Package subscription реализует машину состояний подписки.
//
// Переходы состояния выполняет хранилище (в том числе внутри транзакций
// обработчика webhook); этот пакет отвечает за чтение: вычисление даты
// следующего списания, ленивую сверку при чтении и проверку права
// доступа с кешем Redis перед базой.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/squeezeai/account-service/internal/cache"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/models"
)

// ErrMissingAnchor у триальной подписки отсутствует сохранённая дата
// начала. Дата списания в этом случае не вычисляется и не
// аппроксимируется: это повреждение данных, а не повод угадывать.
var ErrMissingAnchor = errors.New("trial subscription has no started_at anchor")

// ErrNoBillingDate подписка не находится в оплачиваемом состоянии.
var ErrNoBillingDate = errors.New("subscription has no billing date")

// SubscriptionRepository описывает контракт хранилища подписок.
type SubscriptionRepository interface {
	GetSubscription(ctx context.Context, userUID string) (*models.Subscription, error)
	ResetToFree(ctx context.Context, userUID string) error
}

const entitlementCacheTTL = 5 * time.Minute

// Service читает и сверяет состояние подписки.
type Service struct {
	repo      SubscriptionRepository
	cache     *cache.Cache
	trialDays int
	log       *slog.Logger
}

// New создает Service. trialDays — длительность триала в днях.
func New(repo SubscriptionRepository, c *cache.Cache, trialDays int, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		cache:     c,
		trialDays: trialDays,
		log:       log,
	}
}

// NextBillingDate вычисляет дату следующего списания как чистую функцию
// сохранённых полей. Для триала это started_at плюс длительность триала,
// для оплаченной подписки — конец периода по данным провайдера.
func (s *Service) NextBillingDate(sub *models.Subscription) (time.Time, error) {
	switch sub.Status {
	case models.StatusTrialing:
		if sub.StartedAt == nil {
			return time.Time{}, ErrMissingAnchor
		}
		return sub.StartedAt.AddDate(0, 0, s.trialDays), nil
	case models.StatusActive:
		if sub.CurrentPeriodEnd == nil {
			return time.Time{}, ErrNoBillingDate
		}
		return *sub.CurrentPeriodEnd, nil
	}
	return time.Time{}, ErrNoBillingDate
}

// Get возвращает подписку пользователя после ленивой сверки: отменённая
// подписка с истёкшим оплаченным периодом переводится в {free, inactive}
// прямо при чтении, отдельного планировщика для этого нет.
func (s *Service) Get(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "subscription.Get"

	sub, err := s.repo.GetSubscription(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s.needsDowngrade(sub, time.Now().UTC()) {
		if err := s.repo.ResetToFree(ctx, userUID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.InvalidateEntitlement(ctx, userUID)
		s.log.Info("subscription lapsed to free", slog.String("user_uid", userUID))
		sub, err = s.repo.GetSubscription(ctx, userUID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return sub, nil
}

// needsDowngrade: отменённая подписка теряет доступ только после конца
// оплаченного периода, до того отмена — лишь флаг.
func (s *Service) needsDowngrade(sub *models.Subscription, now time.Time) bool {
	if !sub.Cancelled {
		return false
	}
	if sub.Status != models.StatusTrialing && sub.Status != models.StatusActive {
		return false
	}
	end, err := s.NextBillingDate(sub)
	if err != nil {
		// Повреждённый якорь не чинится молчаливым даунгрейдом.
		return false
	}
	return now.After(end)
}

// Entitled сообщает, есть ли у пользователя доступ к платным функциям.
// Ответ сначала ищется в кеше; промах ведёт к чтению со сверкой и
// записи результата с коротким TTL.
func (s *Service) Entitled(ctx context.Context, userUID string) (bool, error) {
	const op = "subscription.Entitled"

	key := entitlementKey(userUID)
	var cached bool
	if s.cache != nil {
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("entitlement cache read failed", sl.Err(err))
		} else if found {
			return cached, nil
		}
	}

	sub, err := s.Get(ctx, userUID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	entitled := sub.PlanType == models.PlanPro &&
		(sub.Status == models.StatusTrialing || sub.Status == models.StatusActive)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, entitled, entitlementCacheTTL); err != nil {
			s.log.Warn("entitlement cache write failed", sl.Err(err))
		}
	}
	return entitled, nil
}

// InvalidateEntitlement сбрасывает кеш доступа. Вызывается на каждом
// переходе состояния подписки.
func (s *Service) InvalidateEntitlement(ctx context.Context, userUID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, entitlementKey(userUID)); err != nil {
		s.log.Warn("entitlement cache invalidation failed", sl.Err(err))
	}
}

func entitlementKey(userUID string) string {
	return "entitlement:" + userUID
}
