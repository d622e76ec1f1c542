// Package checkouttoken реализует подписанную серверную ссылку на checkout-сессию.
//
// Ссылка возврата после оплаты проходит через браузер пользователя и может
// быть изменена, поэтому идентификация после редиректа опирается не на
// параметры запроса, а на подписанный сервером токен, который выдаётся при
// создании checkout-сессии и проверяется при возврате.
package checkouttoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims данные, зашиваемые в подписанную ссылку: пользователь и
// локальный идентификатор попытки оформления. Тот же идентификатор
// кладётся в метаданные checkout-сессии у провайдера, что позволяет
// сверить обе стороны при возврате.
type Claims struct {
	UserUID     string `json:"user_uid"`
	CheckoutRef string `json:"checkout_ref"`
	jwt.RegisteredClaims
}

// Maker создает и проверяет подписанные checkout-токены.
type Maker struct {
	secretKey string
	ttl       time.Duration
}

// NewMaker создаёт Maker с секретным ключом и временем жизни токена.
func NewMaker(secretKey string, ttl time.Duration) *Maker {
	return &Maker{secretKey: secretKey, ttl: ttl}
}

// Generate выпускает токен для пары (пользователь, попытка оформления).
func (m *Maker) Generate(userUID, checkoutRef string) (string, error) {
	claims := Claims{
		UserUID:     userUID,
		CheckoutRef: checkoutRef,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.secretKey))
}

// Parse проверяет подпись и срок действия токена, возвращает claims.
func (m *Maker) Parse(tokenStr string) (*Claims, error) {
	const op = "checkouttoken.Parse"
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	return claims, nil
}
