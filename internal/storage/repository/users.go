package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/squeezeai/account-service/internal/models"
)

const uniqueViolation = "23505"

// translateUserConstraint переводит нарушение уникального индекса users
// в доменную ошибку. Единственная точка, где разбирается код ошибки драйвера.
func translateUserConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "users_username_lower_idx":
			return ErrUsernameTaken
		case "users_email_lower_idx":
			return ErrEmailTaken
		}
	}
	return err
}

const userColumns = `uid, username, email, password_hash, first_name, last_name, role,
			      is_active, logged_in, failed_login_attempts, last_login, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var lastLogin sql.NullTime
	if err := row.Scan(&u.UID, &u.Username, &u.Email, &u.PasswordHash,
		&u.FirstName, &u.LastName, &u.Role, &u.IsActive, &u.LoggedIn,
		&u.FailedLoginAttempts, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return u, nil
}

// RegisterUser сохраняет нового пользователя и в той же транзакции создаёт
// для него подписку {free, inactive}. Возвращает UID пользователя.
func (s *Storage) RegisterUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUser"
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

	var newUID string
	query := `INSERT INTO users (username, email, password_hash, first_name, last_name, role)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING uid;`
	if err := tx.QueryRowContext(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.FirstName,
		user.LastName, user.Role).Scan(&newUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, translateUserConstraint(err))
	}

	subQuery := `INSERT INTO subscriptions (user_uid, plan_type, status)
			  VALUES ($1, $2, $3);`
	if _, err := tx.ExecContext(ctx, subQuery, newUID, models.PlanFree, models.StatusInactive); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

// GetUserByUsername возвращает пользователя по username без учёта регистра.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE LOWER(username) = LOWER($1)`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.GetUserByEmail"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE LOWER(email) = LOWER($1)`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// MarkLoginSuccess сбрасывает счётчик неудачных входов, ставит logged_in
// и отметку последнего входа.
func (s *Storage) MarkLoginSuccess(ctx context.Context, userUID string, at time.Time) error {
	const op = "storage.MarkLoginSuccess"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET failed_login_attempts = 0,
			      logged_in = TRUE,
			      last_login = $2,
			      updated_at = now()
			  WHERE uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID, at); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IncrementFailedLogins увеличивает информационный счётчик неудачных входов.
// Блокирующий механизм — лимитер попыток, а не этот счётчик.
func (s *Storage) IncrementFailedLogins(ctx context.Context, userUID string) error {
	const op = "storage.IncrementFailedLogins"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET failed_login_attempts = failed_login_attempts + 1,
			      updated_at = now()
			  WHERE uid = $1`
	if _, err := s.DB.ExecContext(ctx, query, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkLoggedOut снимает признак выполненного входа.
func (s *Storage) MarkLoggedOut(ctx context.Context, username string) error {
	const op = "storage.MarkLoggedOut"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET logged_in = FALSE,
			      updated_at = now()
			  WHERE LOWER(username) = LOWER($1)`
	if _, err := s.DB.ExecContext(ctx, query, username); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdatePasswordHash заменяет хэш пароля пользователя.
func (s *Storage) UpdatePasswordHash(ctx context.Context, username, passwordHash string) error {
	const op = "storage.UpdatePasswordHash"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET password_hash = $2,
			      updated_at = now()
			  WHERE LOWER(username) = LOWER($1)`
	res, err := s.DB.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	return nil
}

// DeactivateUser помечает учётную запись неактивной и гасит её сессии.
func (s *Storage) DeactivateUser(ctx context.Context, username string) error {
	const op = "storage.DeactivateUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `UPDATE users
			  SET is_active = FALSE, logged_in = FALSE, updated_at = now()
			  WHERE LOWER(username) = LOWER($1)`, username)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrUserNotFound)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE user_sessions
			  SET is_active = FALSE, updated_at = now()
			  WHERE LOWER(username) = LOWER($1)`, username); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteUser удаляет пользователя вместе с принадлежащими ему сессиями,
// токенами сброса и строкой подписки. Владение исключительное, поэтому
// удаление всегда идёт одной транзакцией.
func (s *Storage) DeleteUser(ctx context.Context, username string) error {
	const op = "storage.DeleteUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var uid string
	if err := tx.QueryRowContext(ctx,
		`SELECT uid FROM users WHERE LOWER(username) = LOWER($1)`, username).Scan(&uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	for _, query := range []string{
		`DELETE FROM user_sessions WHERE LOWER(username) = LOWER($1)`,
		`DELETE FROM reset_tokens WHERE LOWER(username) = LOWER($1)`,
	} {
		if _, err := tx.ExecContext(ctx, query, username); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE user_uid = $1`, uid); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE uid = $1`, uid); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
