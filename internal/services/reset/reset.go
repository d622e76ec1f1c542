// Package reset реализует восстановление пароля по одноразовым токенам.
package reset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/squeezeai/account-service/internal/lib/password"
	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/lib/token"
	"github.com/squeezeai/account-service/internal/models"
	"github.com/squeezeai/account-service/internal/storage/repository"
)

// Ошибки погашения токена.
var (
	ErrTokenNotFound = errors.New("reset token not found")
	ErrTokenUsed     = errors.New("reset token already used")
	ErrTokenExpired  = errors.New("reset token expired")
	ErrWeakPassword  = errors.New("weak password")
)

// TokenRepository описывает контракт хранилища токенов сброса.
type TokenRepository interface {
	CreateResetToken(ctx context.Context, token models.ResetToken) error
	RedeemResetToken(ctx context.Context, tokenStr, newPasswordHash string, now time.Time) (string, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// MailPublisher ставит письмо со ссылкой восстановления в очередь отправки.
type MailPublisher interface {
	PublishPasswordReset(email, username, resetURL string) error
}

// Hasher описывает интерфейс для хэширования паролей.
type Hasher interface {
	Hash(password string) (string, error)
}

// Service выпускает и погашает токены восстановления пароля.
type Service struct {
	repo    TokenRepository
	mail    MailPublisher
	hasher  Hasher
	baseURL string
	ttl     time.Duration
	strict  bool
	log     *slog.Logger
}

// New создает Service. baseURL — адрес, на который указывает ссылка
// восстановления; ttl — срок жизни токена.
func New(repo TokenRepository, mail MailPublisher, hasher Hasher, baseURL string, ttl time.Duration, strict bool, log *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		mail:    mail,
		hasher:  hasher,
		baseURL: baseURL,
		ttl:     ttl,
		strict:  strict,
		log:     log,
	}
}

// Issue создаёт токен восстановления и ставит письмо в очередь отправки.
// Исход для вызывающего всегда одинаков, существует учётная запись или
// нет: ответ наружу не должен позволять перебор имён и адресов.
func (s *Service) Issue(ctx context.Context, identifier string) error {
	const op = "reset.Issue"

	user, err := s.repo.GetUserByUsername(ctx, identifier)
	if errors.Is(err, repository.ErrUserNotFound) {
		user, err = s.repo.GetUserByEmail(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.log.Info("reset requested for unknown identifier")
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	tokenStr, err := token.New(token.DefaultLength)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	resetToken := models.ResetToken{
		Username:  user.Username,
		Token:     tokenStr,
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}
	if err := s.repo.CreateResetToken(ctx, resetToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resetURL := s.baseURL + "?reset_token=" + url.QueryEscape(tokenStr)
	if err := s.mail.PublishPasswordReset(user.Email, user.Username, resetURL); err != nil {
		// Письмо не ушло в очередь, но токен уже создан: наружу это
		// неразличимо, внутрь — в лог для расследования.
		s.log.Error("failed to enqueue reset email", sl.Err(err))
	}

	s.log.Info("reset token issued", slog.String("username", user.Username))
	return nil
}

// Redeem погашает токен и устанавливает новый пароль. Токен гасится
// не более одного раза; активные сессии пользователя инвалидируются
// той же транзакцией хранилища.
func (s *Service) Redeem(ctx context.Context, tokenStr, newPassword string) error {
	const op = "reset.Redeem"

	if err := password.ValidatePolicy(newPassword, s.strict); err != nil {
		return fmt.Errorf("%w: %w", ErrWeakPassword, err)
	}
	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	username, err := s.repo.RedeemResetToken(ctx, tokenStr, hashed, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTokenNotFound):
			return ErrTokenNotFound
		case errors.Is(err, repository.ErrTokenUsed):
			return ErrTokenUsed
		case errors.Is(err, repository.ErrTokenExpired):
			return ErrTokenExpired
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("password reset completed", slog.String("username", username))
	return nil
}
