package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/squeezeai/account-service/internal/models"
)

// CreateResetToken сохраняет новый токен сброса пароля. Несколько живых
// токенов на пользователя допустимы; погашается только предъявленный.
func (s *Storage) CreateResetToken(ctx context.Context, token models.ResetToken) error {
	const op = "storage.CreateResetToken"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO reset_tokens (token, username, expires_at)
			  VALUES ($1, $2, $3)`
	if _, err := s.DB.ExecContext(ctx, query, token.Token, token.Username, token.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RedeemResetToken погашает токен и меняет пароль пользователя одной
// транзакцией; активные сессии пользователя гасятся там же. Проверки идут
// строго по порядку: строка существует, токен не использован, срок не истёк.
func (s *Storage) RedeemResetToken(ctx context.Context, tokenStr, newPasswordHash string, now time.Time) (string, error) {
	const op = "storage.RedeemResetToken"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var token models.ResetToken
	query := `SELECT token, username, created_at, expires_at, used
			  FROM reset_tokens
			  WHERE token = $1
			  FOR UPDATE`
	if err := tx.QueryRowContext(ctx, query, tokenStr).Scan(
		&token.Token, &token.Username, &token.CreatedAt, &token.ExpiresAt, &token.Used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if token.Used {
		return "", fmt.Errorf("%s: %w", op, ErrTokenUsed)
	}
	if !token.ExpiresAt.After(now) {
		return "", fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE reset_tokens SET used = TRUE WHERE token = $1`, tokenStr); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE users
			  SET password_hash = $2, updated_at = now()
			  WHERE LOWER(username) = LOWER($1)`, token.Username, newPasswordHash)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE user_sessions
			  SET is_active = FALSE, updated_at = now()
			  WHERE LOWER(username) = LOWER($1) AND is_active = TRUE`, token.Username); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return token.Username, nil
}

// DeleteExpiredResetTokens удаляет токены с истёкшим сроком.
func (s *Storage) DeleteExpiredResetTokens(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.DeleteExpiredResetTokens"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM reset_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
