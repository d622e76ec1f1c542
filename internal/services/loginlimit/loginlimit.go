// Package loginlimit ограничивает неудачные попытки входа по скользящему окну.
//
// Счётчик всегда вычисляется заново по журналу попыток на момент запроса,
// отдельного задания сброса нет. Гонка двух одновременных запросов может
// пропустить на одну-две попытки больше лимита — это допустимо; потерять
// запись журнала или заблокировать пользователя навсегда — нет.
package loginlimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/squeezeai/account-service/internal/models"
)

// AttemptRepository описывает журнал попыток входа в хранилище.
type AttemptRepository interface {
	CreateLoginAttempt(ctx context.Context, attempt models.LoginAttempt) error
	CountRecentFailures(ctx context.Context, username, ipAddress string, since time.Time) (int, error)
	DeleteOldLoginAttempts(ctx context.Context, before time.Time) (int64, error)
}

// Limiter проверяет лимит неудачных входов до проверки пароля.
type Limiter struct {
	repo        AttemptRepository
	maxAttempts int
	window      time.Duration
	log         *slog.Logger
}

// New создает Limiter с лимитом maxAttempts за окно window.
func New(repo AttemptRepository, maxAttempts int, window time.Duration, log *slog.Logger) *Limiter {
	return &Limiter{
		repo:        repo,
		maxAttempts: maxAttempts,
		window:      window,
		log:         log,
	}
}

// Allowed сообщает, разрешена ли очередная попытка входа. Неудачи
// считаются и по имени пользователя, и по IP: превышение по любой из
// осей блокирует попытку.
func (l *Limiter) Allowed(ctx context.Context, username, ipAddress string) (bool, error) {
	const op = "loginlimit.Allowed"
	since := time.Now().UTC().Add(-l.window)
	count, err := l.repo.CountRecentFailures(ctx, username, ipAddress, since)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return count < l.maxAttempts, nil
}

// Record добавляет запись о попытке входа. Журнал только дополняется,
// поэтому параллельные записи не теряются.
func (l *Limiter) Record(ctx context.Context, username, ipAddress string, success bool) error {
	const op = "loginlimit.Record"
	err := l.repo.CreateLoginAttempt(ctx, models.LoginAttempt{
		Username:    username,
		IPAddress:   ipAddress,
		Success:     success,
		AttemptTime: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Sweep удаляет записи журнала, вышедшие за горизонт хранения
// (десятикратное окно, чтобы журнал оставался полезным для аудита).
func (l *Limiter) Sweep(ctx context.Context) error {
	const op = "loginlimit.Sweep"
	before := time.Now().UTC().Add(-10 * l.window)
	deleted, err := l.repo.DeleteOldLoginAttempts(ctx, before)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if deleted > 0 {
		l.log.Info("swept old login attempts", slog.Int64("deleted", deleted))
	}
	return nil
}
