package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/squeezeai/account-service/internal/models"
)

// CreateLoginAttempt добавляет неизменяемую запись в журнал попыток входа.
func (s *Storage) CreateLoginAttempt(ctx context.Context, attempt models.LoginAttempt) error {
	const op = "storage.CreateLoginAttempt"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO login_attempts (username, ip_address, success, attempt_time)
			  VALUES ($1, $2, $3, $4)`
	if _, err := s.DB.ExecContext(ctx, query,
		attempt.Username, attempt.IPAddress, attempt.Success, attempt.AttemptTime); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CountRecentFailures считает неудачные попытки в скользящем окне.
// Совпадение идёт по username ИЛИ по IP, так что лимит срабатывает по любой
// из двух осей отдельно.
func (s *Storage) CountRecentFailures(ctx context.Context, username, ipAddress string, since time.Time) (int, error) {
	const op = "storage.CountRecentFailures"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT COUNT(*) FROM login_attempts
			  WHERE (LOWER(username) = LOWER($1) OR ip_address = $2)
			  AND success = FALSE
			  AND attempt_time > $3`
	var count int
	if err := s.DB.QueryRowContext(ctx, query, username, ipAddress, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// DeleteOldLoginAttempts удаляет записи журнала старше горизонта хранения.
func (s *Storage) DeleteOldLoginAttempts(ctx context.Context, before time.Time) (int64, error) {
	const op = "storage.DeleteOldLoginAttempts"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM login_attempts WHERE attempt_time < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	deleted, _ := res.RowsAffected()
	return deleted, nil
}
