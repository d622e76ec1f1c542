// Package models содержит доменные структуры сервиса аккаунтов:
// пользователей, сессии, токены сброса пароля, подписки и задачи
// отправки почты. Структуры используются в бизнес‑логике и при
// работе с хранилищем.
package models

import "time"

// User представляет зарегистрированного пользователя системы.
type User struct {
	UID                 string     // Уникальный идентификатор пользователя
	Username            string     // Имя пользователя (уникальное, без учёта регистра)
	Email               string     // Электронная почта (уникальная)
	PasswordHash        string     // bcrypt-хэш пароля
	FirstName           string     // Имя
	LastName            string     // Фамилия
	Role                string     // Роль пользователя, admin или user
	IsActive            bool       // Учётная запись активна
	LoggedIn            bool       // Признак выполненного входа
	FailedLoginAttempts int        // Счётчик неудачных входов (информационный)
	LastLogin           *time.Time // Время последнего успешного входа
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Profile дополнительные данные учётной записи, передаваемые при регистрации.
type Profile struct {
	FirstName string `json:"first_name" validate:"max=50"`
	LastName  string `json:"last_name" validate:"max=50"`
}
