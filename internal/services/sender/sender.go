// Package sender доставляет письма из очереди RabbitMQ по SMTP.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/squeezeai/account-service/internal/lib/sl"
	"github.com/squeezeai/account-service/internal/lib/smtp"
	"github.com/squeezeai/account-service/internal/models"
)

// SenderService собирает письма по типу задачи и отправляет их
// через SMTP транспорт.
type SenderService struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, log *slog.Logger) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// HandleEmailTask разбирает сообщение очереди и отправляет письмо
// соответствующего типа. Ошибка ведёт к возврату сообщения в очередь.
func (s *SenderService) HandleEmailTask(body []byte) error {
	var task models.EmailTask
	if err := json.Unmarshal(body, &task); err != nil {
		s.log.Error("failed to unmarshal email task", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	switch task.Type {
	case models.EmailTaskWelcome:
		return s.sendWelcome(task)
	case models.EmailTaskPasswordReset:
		return s.sendPasswordReset(task)
	default:
		// Неизвестный тип не вернётся в очередь: повторная доставка
		// не сделает его известным.
		s.log.Warn("unknown email task type", slog.String("type", task.Type))
		return nil
	}
}

func (s *SenderService) sendWelcome(task models.EmailTask) error {
	subject := "Добро пожаловать в Squeeze Ai"
	bodyText := fmt.Sprintf(`Здравствуйте, %s!

Ваша учётная запись создана. Бесплатный тариф уже активен,
оформить Pro с пробным периодом можно в личном кабинете.`,
		task.Username)
	return s.sendEmail([]string{task.Email}, subject, bodyText)
}

func (s *SenderService) sendPasswordReset(task models.EmailTask) error {
	subject := "Восстановление пароля Squeeze Ai"
	bodyText := fmt.Sprintf(`Здравствуйте, %s!

Для вашей учётной записи запрошено восстановление пароля.
Перейдите по ссылке, чтобы задать новый пароль: %s

Ссылка действует один час и может быть использована один раз.
Если вы не запрашивали восстановление, просто игнорируйте это письмо.`,
		task.Username, task.ResetURL)
	return s.sendEmail([]string{task.Email}, subject, bodyText)
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent", slog.String("to", strings.Join(to, ";")))
	return nil
}
