package models

import "time"

// ResetToken одноразовый токен восстановления пароля.
// Поле Used переходит из false в true ровно один раз и не сбрасывается.
type ResetToken struct {
	Username  string
	Token     string // Уникальный непрозрачный токен
	CreatedAt time.Time
	ExpiresAt time.Time // created_at + TTL (по умолчанию 1 час)
	Used      bool
}
