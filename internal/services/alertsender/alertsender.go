// Package alertsender реализует доставку писем по сообщениям из RabbitMQ:
// алерты операторам о проблемах конфигурации цен и уведомления пользователям
// об изменении тарифа.
package alertsender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/billing-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/billing-reconciler/internal/lib/smtp"
	"github.com/magabrotheeeer/billing-reconciler/internal/models"
)

// SenderService отправляет письма по сообщениям из очередей алертов.
type SenderService struct {
	transport     smtp.TransportInterface
	operatorEmail string
	log           *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, operatorEmail string, log *slog.Logger) *SenderService {
	return &SenderService{
		transport:     transport,
		operatorEmail: operatorEmail,
		log:           log,
	}
}

// SendOperatorAlert отправляет оператору письмо о проблеме конфигурации цен.
func (s *SenderService) SendOperatorAlert(body []byte) error {
	var alert models.OperatorAlert
	if err := json.Unmarshal(body, &alert); err != nil {
		s.log.Error("failed to unmarshal operator alert", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	to := []string{s.operatorEmail}
	subject := "Алерт биллинга: неизвестная цена в событии Stripe"
	bodyText := fmt.Sprintf(`Источник: %s
Событие: %s
Price ID: %s
Время: %s

%s

Добавьте цену в каталог тарифов и дождитесь повторной доставки события.`,
		alert.Source, alert.EventID, alert.PriceID,
		alert.CreatedAt.Format("2006-01-02 15:04:05 MST"), alert.Message)

	return s.sendEmail(to, subject, bodyText)
}

// SendTierChangeNotice отправляет пользователю письмо об изменении тарифа.
func (s *SenderService) SendTierChangeNotice(body []byte) error {
	var notice models.TierChangeNotice
	if err := json.Unmarshal(body, &notice); err != nil {
		s.log.Error("failed to unmarshal tier change notice", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}
	if notice.Email == "" {
		s.log.Warn("tier change notice without email, skipping",
			slog.String("user_uid", notice.UserUID))
		return nil
	}

	to := []string{notice.Email}
	subject := "Ваш тариф изменён"
	bodyText := fmt.Sprintf(`Здравствуйте, %s!

Ваш тариф изменён: %s -> %s.

Если вы не совершали это действие, свяжитесь с поддержкой.`,
		notice.Username, notice.OldTier, notice.NewTier)

	return s.sendEmail(to, subject, bodyText)
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
		s.log.Error("failed to set MAIL FROM", slog.String("from", s.transport.GetSMTPUser()), sl.Err(err))
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
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}
