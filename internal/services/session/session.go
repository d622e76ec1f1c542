// Package session реализует реестр серверных сессий с непрозрачными токенами.
//
// Полезная нагрузка сессии — сериализованный блоб, реестр его не разбирает.
// Истечение обнаруживается лениво при чтении; погашенные и истёкшие сессии
// удаляются только плановой очисткой. Обратного пути в Active нет: новый
// вход всегда создаёт новый session_id.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/squeezeai/account-service/internal/lib/token"
	"github.com/squeezeai/account-service/internal/models"
	"github.com/squeezeai/account-service/internal/storage/repository"
)

// ErrNotFound сессия отсутствует, погашена или истекла — снаружи
// эти случаи неразличимы.
var ErrNotFound = errors.New("session not found")

// SessionRepository описывает контракт хранилища сессий.
type SessionRepository interface {
	CreateSession(ctx context.Context, session models.Session) error
	TouchSession(ctx context.Context, sessionID string, now time.Time) (*models.Session, error)
	UpdateSessionPayload(ctx context.Context, sessionID string, payload []byte, now time.Time) error
	ExtendSession(ctx context.Context, sessionID string, expiresAt, now time.Time) error
	InvalidateSession(ctx context.Context, sessionID string) error
	InvalidateUserSessions(ctx context.Context, username string) error
	CleanupSessions(ctx context.Context, now time.Time, createdBefore time.Time) (int64, error)
}

// Registry выдаёт, читает, продлевает и гасит сессии.
type Registry struct {
	repo      SessionRepository
	ttl       time.Duration
	retention time.Duration
	log       *slog.Logger
}

// New создает Registry. ttl — срок жизни новой сессии, retention —
// горизонт хранения строк для очистки.
func New(repo SessionRepository, ttl, retention time.Duration, log *slog.Logger) *Registry {
	return &Registry{
		repo:      repo,
		ttl:       ttl,
		retention: retention,
		log:       log,
	}
}

// Create выпускает криптографически случайный токен и сохраняет сессию.
func (r *Registry) Create(ctx context.Context, username string, payload json.RawMessage) (string, error) {
	const op = "session.Create"
	sessionID, err := token.New(token.DefaultLength)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	sess := models.Session{
		SessionID: sessionID,
		Username:  username,
		Payload:   payload,
		ExpiresAt: time.Now().UTC().Add(r.ttl),
	}
	if err := r.repo.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	r.log.Info("session created", slog.String("username", username))
	return sessionID, nil
}

// Get возвращает полезную нагрузку живой сессии, обновляя updated_at.
func (r *Registry) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	const op = "session.Get"
	sess, err := r.repo.TouchSession(ctx, sessionID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// Update перезаписывает полезную нагрузку живой сессии.
func (r *Registry) Update(ctx context.Context, sessionID string, payload json.RawMessage) error {
	const op = "session.Update"
	if err := r.repo.UpdateSessionPayload(ctx, sessionID, payload, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Extend сдвигает срок действия сессии вперёд; нулевой ttl означает
// срок по умолчанию.
func (r *Registry) Extend(ctx context.Context, sessionID string, ttl time.Duration) error {
	const op = "session.Extend"
	if ttl <= 0 {
		ttl = r.ttl
	}
	now := time.Now().UTC()
	if err := r.repo.ExtendSession(ctx, sessionID, now.Add(ttl), now); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Invalidate гасит одну сессию.
func (r *Registry) Invalidate(ctx context.Context, sessionID string) error {
	return r.repo.InvalidateSession(ctx, sessionID)
}

// InvalidateAllFor гасит все активные сессии пользователя.
func (r *Registry) InvalidateAllFor(ctx context.Context, username string) error {
	return r.repo.InvalidateUserSessions(ctx, username)
}

// Cleanup удаляет истёкшие сессии и строки старше горизонта хранения.
func (r *Registry) Cleanup(ctx context.Context) error {
	const op = "session.Cleanup"
	now := time.Now().UTC()
	deleted, err := r.repo.CleanupSessions(ctx, now, now.Add(-r.retention))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if deleted > 0 {
		r.log.Info("cleaned up old sessions", slog.Int64("deleted", deleted))
	}
	return nil
}
