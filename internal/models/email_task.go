package models

// Типы почтовых задач, публикуемых в очередь.
const (
	EmailTaskWelcome       = "welcome"
	EmailTaskPasswordReset = "password_reset"
)

// EmailTask задача на отправку письма, передаётся через RabbitMQ
// сервису notification-sender.
type EmailTask struct {
	Type     string `json:"type"`
	Email    string `json:"email"`
	Username string `json:"username"`
	ResetURL string `json:"reset_url,omitempty"`
}
