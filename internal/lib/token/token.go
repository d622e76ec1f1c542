// Package token генерирует непрозрачные криптографически случайные токены
// для сессий и ссылок восстановления пароля.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DefaultLength длина токена в байтах до кодирования. 48 байт дают
// 64 URL-безопасных символа, с запасом выше требуемых 32 байт энтропии.
const DefaultLength = 48

// New возвращает URL-безопасный случайный токен из length байт энтропии.
func New(length int) (string, error) {
	const op = "token.New"
	if length <= 0 {
		length = DefaultLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
