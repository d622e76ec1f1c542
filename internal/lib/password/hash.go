// Package password реализует функции для безопасного хеширования и проверки паролей,
// а также проверку парольной политики.
//
// Hasher создает bcrypt-хеш пароля с настраиваемой стоимостью для безопасного хранения.
// CompareHash сравнивает исходный bcrypt-хеш с введённым паролем, проверяя их соответствие.
package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinCost минимально допустимая стоимость bcrypt для продакшена.
const MinCost = 12

// Ошибки парольной политики.
var (
	ErrTooShort  = errors.New("password must be at least 8 characters long")
	ErrNoUpper   = errors.New("password must contain at least one uppercase letter")
	ErrNoLower   = errors.New("password must contain at least one lowercase letter")
	ErrNoDigit   = errors.New("password must contain at least one number")
	ErrNoSpecial = errors.New("password must contain at least one special character")
)

const specialChars = `!@#$%^&*(),.?":{}|<>`

// Hasher хэширует пароли с фиксированной стоимостью bcrypt.
// Хэширование намеренно дорогое; в HTTP-сервере каждый запрос обслуживается
// собственной горутиной, так что ожидание одного хэша не блокирует остальных.
type Hasher struct {
	cost int
}

// NewHasher создает Hasher. Стоимость ниже MinCost поднимается до MinCost.
func NewHasher(cost int) *Hasher {
	if cost < MinCost {
		cost = MinCost
	}
	return &Hasher{cost: cost}
}

// Hash принимает пароль пользователя и возвращает его bcrypt‑хэш.
func (h *Hasher) Hash(password string) (string, error) {
	const op = "password.Hash"
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(hashedPassword), nil
}

// CompareHash сравнивает bcrypt‑хэш с введённым паролем.
//
// Возвращает nil, если пароль соответствует хэшу, иначе — ошибку.
func CompareHash(originalHash, externalPassword string) error {
	const op = "password.CompareHash"
	if err := bcrypt.CompareHashAndPassword([]byte(originalHash), []byte(externalPassword)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ValidatePolicy проверяет пароль на соответствие политике.
// При strict=false требуется только минимальная длина, при strict=true —
// дополнительно заглавная и строчная буквы, цифра и спецсимвол.
func ValidatePolicy(password string, strict bool) error {
	if len(password) < 8 {
		return ErrTooShort
	}
	if !strict {
		return nil
	}
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}
	switch {
	case !hasUpper:
		return ErrNoUpper
	case !hasLower:
		return ErrNoLower
	case !hasDigit:
		return ErrNoDigit
	case !hasSpecial:
		return ErrNoSpecial
	}
	return nil
}
