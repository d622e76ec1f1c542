package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/squeezeai/account-service/internal/models"
)

// CreateSession сохраняет новую сессию.
func (s *Storage) CreateSession(ctx context.Context, session models.Session) error {
	const op = "storage.CreateSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO user_sessions (session_id, username, payload, expires_at, is_active)
			  VALUES ($1, $2, $3, $4, TRUE)`
	if _, err := s.DB.ExecContext(ctx, query,
		session.SessionID, session.Username, session.Payload, session.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TouchSession возвращает живую сессию и обновляет updated_at одним запросом.
// Предикат "жива" (is_active и срок не истёк) существует только здесь:
// истечение обнаруживается лениво, при чтении, а не фоновой задачей.
func (s *Storage) TouchSession(ctx context.Context, sessionID string, now time.Time) (*models.Session, error) {
	const op = "storage.TouchSession"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_sessions
			  SET updated_at = $2
			  WHERE session_id = $1 AND is_active = TRUE AND expires_at > $2
			  RETURNING session_id, username, payload, created_at, updated_at, expires_at, is_active`
	sess := &models.Session{}
	if err := s.DB.QueryRowContext(ctx, query, sessionID, now).Scan(
		&sess.SessionID, &sess.Username, &sess.Payload,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt, &sess.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sess, nil
}

// UpdateSessionPayload перезаписывает полезную нагрузку живой сессии.
func (s *Storage) UpdateSessionPayload(ctx context.Context, sessionID string, payload []byte, now time.Time) error {
	const op = "storage.UpdateSessionPayload"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_sessions
			  SET payload = $2, updated_at = $3
			  WHERE session_id = $1 AND is_active = TRUE AND expires_at > $3`
	res, err := s.DB.ExecContext(ctx, query, sessionID, payload, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	return nil
}

// ExtendSession сдвигает срок действия живой сессии вперёд.
func (s *Storage) ExtendSession(ctx context.Context, sessionID string, expiresAt, now time.Time) error {
	const op = "storage.ExtendSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_sessions
			  SET expires_at = $2, updated_at = $3
			  WHERE session_id = $1 AND is_active = TRUE AND expires_at > $3`
	res, err := s.DB.ExecContext(ctx, query, sessionID, expiresAt, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	return nil
}

// InvalidateSession гасит сессию, не удаляя строку: погашенные сессии
// остаются доступными для аудита до плановой очистки.
func (s *Storage) InvalidateSession(ctx context.Context, sessionID string) error {
	const op = "storage.InvalidateSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_sessions
			  SET is_active = FALSE, updated_at = now()
			  WHERE session_id = $1`
	if _, err := s.DB.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// InvalidateUserSessions гасит все активные сессии пользователя.
func (s *Storage) InvalidateUserSessions(ctx context.Context, username string) error {
	const op = "storage.InvalidateUserSessions"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_sessions
			  SET is_active = FALSE, updated_at = now()
			  WHERE LOWER(username) = LOWER($1) AND is_active = TRUE`
	if _, err := s.DB.ExecContext(ctx, query, username); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CleanupSessions удаляет истёкшие сессии и строки старше горизонта хранения.
func (s *Storage) CleanupSessions(ctx context.Context, now time.Time, createdBefore time.Time) (int64, error) {
	const op = "storage.CleanupSessions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM user_sessions
			  WHERE expires_at < $1 OR created_at < $2`
	res, err := s.DB.ExecContext(ctx, query, now, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
