// Package alertsender собирает сервис доставки писем: соединение с RabbitMQ,
// SMTP-транспорт и потребителей очередей алертов.
package alertsender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/billing-reconciler/internal/config"
	"github.com/magabrotheeeer/billing-reconciler/internal/lib/smtp"
	"github.com/magabrotheeeer/billing-reconciler/internal/rabbitmq"
	senderservice "github.com/magabrotheeeer/billing-reconciler/internal/services/alertsender"
)

// App инкапсулирует соединения и сервис отправки писем.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// New инициализирует зависимости сервиса.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetAlertQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	transport := smtp.NewTransport(cfg, logger)
	senderService := senderservice.NewSenderService(transport, cfg.OperatorEmail, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run запускает потребителей очередей и блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.QueueOperatorAlerts, a.senderService.SendOperatorAlert)
	if err != nil {
		a.logger.Error("failed to start operator alerts consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.QueueTierChanges, a.senderService.SendTierChangeNotice)
	if err != nil {
		a.logger.Error("failed to start tier changes consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("alert-sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
