// Package notify публикует почтовые задачи в очередь RabbitMQ.
// Доставкой занимается отдельный сервис notification-sender.
package notify

import (
	"fmt"

	"github.com/streadway/amqp"

	"github.com/squeezeai/account-service/internal/lib/rabbitmq"
	"github.com/squeezeai/account-service/internal/models"
)

// Publisher кладёт почтовые задачи в очередь исходящих писем.
type Publisher struct {
	ch *amqp.Channel
}

// New создает Publisher поверх открытого канала RabbitMQ.
func New(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// PublishWelcome ставит в очередь приветственное письмо.
func (p *Publisher) PublishWelcome(email, username string) error {
	const op = "notify.PublishWelcome"
	task := models.EmailTask{
		Type:     models.EmailTaskWelcome,
		Email:    email,
		Username: username,
	}
	if err := rabbitmq.PublishMessage(p.ch, rabbitmq.ExchangeEmails, "outgoing", task); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PublishPasswordReset ставит в очередь письмо со ссылкой восстановления.
func (p *Publisher) PublishPasswordReset(email, username, resetURL string) error {
	const op = "notify.PublishPasswordReset"
	task := models.EmailTask{
		Type:     models.EmailTaskPasswordReset,
		Email:    email,
		Username: username,
		ResetURL: resetURL,
	}
	if err := rabbitmq.PublishMessage(p.ch, rabbitmq.ExchangeEmails, "outgoing", task); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
