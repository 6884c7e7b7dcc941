// Package alerts публикует алерты операторам и уведомления об изменении
// тарифа в обменник RabbitMQ. Доставкой занимается сервис alert-sender.
package alerts

import (
	"context"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/billing-reconciler/internal/models"
	"github.com/magabrotheeeer/billing-reconciler/internal/rabbitmq"
)

// Publisher публикует сообщения в обменник alerts.
type Publisher struct {
	ch *amqp.Channel
}

// New создаёт Publisher поверх готового канала RabbitMQ.
func New(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

// PublishOperatorAlert отправляет алерт об ошибке конфигурации операторам.
func (p *Publisher) PublishOperatorAlert(ctx context.Context, alert models.OperatorAlert) error {
	const op = "alerts.PublishOperatorAlert"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if err := rabbitmq.PublishMessage(p.ch, rabbitmq.AlertsExchange, rabbitmq.RoutingKeyOperator, alert); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// PublishTierChange отправляет уведомление об изменении тарифа пользователя.
func (p *Publisher) PublishTierChange(ctx context.Context, notice models.TierChangeNotice) error {
	const op = "alerts.PublishTierChange"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if err := rabbitmq.PublishMessage(p.ch, rabbitmq.AlertsExchange, rabbitmq.RoutingKeyTierChange, notice); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
