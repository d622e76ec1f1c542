package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/squeezeai/account-service/internal/models"
)

const subscriptionColumns = `user_uid, plan_type, status, external_customer_id, external_subscription_id,
			      started_at, current_period_end, cancelled, auto_renew, payment_failures, updated_at`

func scanSubscription(row *sql.Row) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var startedAt, periodEnd sql.NullTime
	if err := row.Scan(&sub.UserUID, &sub.PlanType, &sub.Status,
		&sub.ExternalCustomerID, &sub.ExternalSubscriptionID,
		&startedAt, &periodEnd, &sub.Cancelled, &sub.AutoRenew,
		&sub.PaymentFailures, &sub.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if startedAt.Valid {
		sub.StartedAt = &startedAt.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	return sub, nil
}

// GetSubscription возвращает подписку пользователя.
func (s *Storage) GetSubscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_uid = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetSubscriptionByExternalID возвращает подписку по идентификатору
// подписки у платёжного провайдера.
func (s *Storage) GetSubscriptionByExternalID(ctx context.Context, externalID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByExternalID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE external_subscription_id = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, externalID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// SetExternalCustomerID привязывает идентификатор клиента провайдера.
func (s *Storage) SetExternalCustomerID(ctx context.Context, userUID, customerID string) error {
	const op = "storage.SetExternalCustomerID"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET external_customer_id = $2, updated_at = now()
			  WHERE user_uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID, customerID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Переходы машины состояний ниже принимают DBTX: обработчик webhook
// выполняет их в одной транзакции с записью в журнал событий, остальные
// вызывающие передают обычное соединение через s.DB.

// StartTrialTx переводит подписку в {trialing, pro} с якорем started_at.
func StartTrialTx(ctx context.Context, db DBTX, userUID, customerID, externalID string, startedAt, periodEnd time.Time) error {
	const op = "storage.StartTrialTx"
	query := `UPDATE subscriptions
			  SET plan_type = $2,
			      status = $3,
			      external_customer_id = $4,
			      external_subscription_id = $5,
			      started_at = $6,
			      current_period_end = $7,
			      cancelled = FALSE,
			      auto_renew = TRUE,
			      payment_failures = 0,
			      updated_at = now()
			  WHERE user_uid = $1`
	res, err := db.ExecContext(ctx, query, userUID, models.PlanPro, models.StatusTrialing,
		customerID, externalID, startedAt, periodEnd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}

// MarkActiveTx подтверждает оплату: статус active, период по данным провайдера.
func MarkActiveTx(ctx context.Context, db DBTX, externalID string, periodEnd *time.Time) error {
	const op = "storage.MarkActiveTx"
	query := `UPDATE subscriptions
			  SET status = $2,
			      current_period_end = COALESCE($3, current_period_end),
			      updated_at = now()
			  WHERE external_subscription_id = $1`
	res, err := db.ExecContext(ctx, query, externalID, models.StatusActive, periodEnd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}

// MarkCancelledTx ставит флаг cancelled, не трогая статус и доступ:
// право пользования сохраняется до конца оплаченного периода.
func MarkCancelledTx(ctx context.Context, db DBTX, externalID string) error {
	const op = "storage.MarkCancelledTx"
	query := `UPDATE subscriptions
			  SET cancelled = TRUE,
			      auto_renew = FALSE,
			      updated_at = now()
			  WHERE external_subscription_id = $1`
	res, err := db.ExecContext(ctx, query, externalID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}

// ExtendPeriodTx продлевает оплаченный период и сбрасывает счётчик
// неуспешных списаний.
func ExtendPeriodTx(ctx context.Context, db DBTX, externalID string, periodEnd time.Time) error {
	const op = "storage.ExtendPeriodTx"
	query := `UPDATE subscriptions
			  SET status = $2,
			      current_period_end = $3,
			      payment_failures = 0,
			      updated_at = now()
			  WHERE external_subscription_id = $1`
	res, err := db.ExecContext(ctx, query, externalID, models.StatusActive, periodEnd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}

// IncrementPaymentFailuresTx фиксирует неуспешное списание и возвращает
// новое значение счётчика.
func IncrementPaymentFailuresTx(ctx context.Context, db DBTX, externalID string) (int, error) {
	const op = "storage.IncrementPaymentFailuresTx"
	query := `UPDATE subscriptions
			  SET payment_failures = payment_failures + 1,
			      updated_at = now()
			  WHERE external_subscription_id = $1
			  RETURNING payment_failures`
	var failures int
	if err := db.QueryRowContext(ctx, query, externalID).Scan(&failures); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return failures, nil
}

// ResetToFreeTx возвращает подписку в исходное состояние {free, inactive}.
func ResetToFreeTx(ctx context.Context, db DBTX, userUID string) error {
	const op = "storage.ResetToFreeTx"
	query := `UPDATE subscriptions
			  SET plan_type = $2,
			      status = $3,
			      cancelled = FALSE,
			      auto_renew = FALSE,
			      started_at = NULL,
			      current_period_end = NULL,
			      external_subscription_id = '',
			      payment_failures = 0,
			      updated_at = now()
			  WHERE user_uid = $1`
	res, err := db.ExecContext(ctx, query, userUID, models.PlanFree, models.StatusInactive)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}

// StartTrial версия StartTrialTx вне внешней транзакции.
func (s *Storage) StartTrial(ctx context.Context, userUID, customerID, externalID string, startedAt, periodEnd time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return StartTrialTx(ctx, s.DB, userUID, customerID, externalID, startedAt, periodEnd)
}

// ResetToFree версия ResetToFreeTx вне внешней транзакции.
func (s *Storage) ResetToFree(ctx context.Context, userUID string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return ResetToFreeTx(ctx, s.DB, userUID)
}
