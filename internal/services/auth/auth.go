// Package auth содержит логику бизнес-уровня для работы с учётными записями:
// регистрацию, проверку учётных данных, смену пароля, выход и удаление.
// Это единственный путь работы с учётными данными в сервисе.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/squeezeai/account-service/internal/lib/password"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/models"
	"github.com/squeezeai/account-service/internal/storage/repository"
)

// Ошибки валидации и аутентификации, различимые через errors.Is.
var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidEmail    = errors.New("invalid email")
	ErrWeakPassword    = errors.New("weak password")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrEmailTaken      = errors.New("email already taken")

	ErrNotFound    = errors.New("user not found")
	ErrBadPassword = errors.New("invalid credentials")
	ErrDeactivated = errors.New("account is deactivated")
)

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{3,30}$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// Зарезервированные имена, запрещённые к регистрации.
var reservedUsernames = map[string]struct{}{
	"admin": {}, "root": {}, "system": {}, "api": {},
	"www": {}, "mail": {}, "ftp": {}, "test": {},
}

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// RegisterUser сохраняет пользователя вместе с бесплатной подпиской и возвращает его UID.
	RegisterUser(ctx context.Context, user models.User) (string, error)
	// GetUserByUsername возвращает пользователя по имени без учёта регистра.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	// GetUserByEmail возвращает пользователя по email без учёта регистра.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	MarkLoginSuccess(ctx context.Context, userUID string, at time.Time) error
	IncrementFailedLogins(ctx context.Context, userUID string) error
	MarkLoggedOut(ctx context.Context, username string) error
	UpdatePasswordHash(ctx context.Context, username, passwordHash string) error
	DeactivateUser(ctx context.Context, username string) error
	DeleteUser(ctx context.Context, username string) error
}

// Hasher описывает интерфейс для хэширования паролей.
type Hasher interface {
	Hash(password string) (string, error)
}

// Service отвечает за регистрацию и проверку учётных данных.
type Service struct {
	users  UserRepository
	hasher Hasher
	strict bool
	log    *slog.Logger
}

// New создает новый экземпляр Service. strict управляет строгостью
// парольной политики (см. password.ValidatePolicy).
func New(users UserRepository, hasher Hasher, strict bool, log *slog.Logger) *Service {
	return &Service{
		users:  users,
		hasher: hasher,
		strict: strict,
		log:    log,
	}
}

// ValidateUsername проверяет формат имени и список зарезервированных имён.
func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return ErrInvalidUsername
	}
	if _, ok := reservedUsernames[strings.ToLower(username)]; ok {
		return ErrInvalidUsername
	}
	return nil
}

// ValidateEmail проверяет форму адреса и ограничение длины.
func ValidateEmail(email string) error {
	if len(email) > 254 || !emailRe.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// Register создает нового пользователя с дефолтной ролью "user".
// Бесплатная подписка создаётся хранилищем в той же транзакции.
func (s *Service) Register(ctx context.Context, username, email, rawPassword string, profile models.Profile) (*models.User, error) {
	const op = "auth.Register"

	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := password.ValidatePolicy(rawPassword, s.strict); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}

	hashed, err := s.hasher.Hash(rawPassword)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		Role:         "user", // дефолтная роль при регистрации
		IsActive:     true,
	}
	uid, err := s.users.RegisterUser(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameTaken):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrEmailTaken):
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.UID = uid

	s.log.Info("user registered", slog.String("username", username))
	return &user, nil
}

// Verify проверяет учётные данные. Идентификатором может быть и имя
// пользователя, и email: поиск идёт сначала по имени, затем по адресу.
// При успехе сбрасывается счётчик неудачных входов и ставится отметка
// последнего входа; при неверном пароле счётчик увеличивается.
func (s *Service) Verify(ctx context.Context, identifier, rawPassword string) (*models.User, error) {
	const op = "auth.Verify"

	user, err := s.users.GetUserByUsername(ctx, identifier)
	if errors.Is(err, repository.ErrUserNotFound) {
		user, err = s.users.GetUserByEmail(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		if incErr := s.users.IncrementFailedLogins(ctx, user.UID); incErr != nil {
			s.log.Error("failed to increment failed logins", sl.Err(incErr))
		}
		return nil, ErrBadPassword
	}
	if !user.IsActive {
		return nil, ErrDeactivated
	}

	now := time.Now().UTC()
	if err := s.users.MarkLoginSuccess(ctx, user.UID, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.FailedLoginAttempts = 0
	user.LoggedIn = true
	user.LastLogin = &now
	return user, nil
}

// ChangePassword меняет пароль после успешной повторной проверки текущего.
func (s *Service) ChangePassword(ctx context.Context, username, current, newPassword string) error {
	const op = "auth.ChangePassword"

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, current); err != nil {
		return ErrBadPassword
	}
	if err := password.ValidatePolicy(newPassword, s.strict); err != nil {
		return fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.users.UpdatePasswordHash(ctx, username, hashed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("password changed", slog.String("username", username))
	return nil
}

// Logout снимает признак выполненного входа.
func (s *Service) Logout(ctx context.Context, username string) error {
	return s.users.MarkLoggedOut(ctx, username)
}

// Deactivate помечает учётную запись неактивной.
func (s *Service) Deactivate(ctx context.Context, username string) error {
	const op = "auth.Deactivate"
	if err := s.users.DeactivateUser(ctx, username); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete удаляет учётную запись вместе с её сессиями и подпиской.
func (s *Service) Delete(ctx context.Context, username string) error {
	const op = "auth.Delete"
	if err := s.users.DeleteUser(ctx, username); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("user deleted", slog.String("username", username))
	return nil
}
