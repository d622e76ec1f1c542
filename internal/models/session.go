package models

import "time"

// Session представляет серверную сессию пользователя.
// Payload хранится как непрозрачный JSON-блоб, реестр сессий его не разбирает.
type Session struct {
	SessionID string // Непрозрачный токен, выдаётся при создании
	Username  string
	Payload   []byte // Сериализованные данные сессии
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
	IsActive  bool
}
