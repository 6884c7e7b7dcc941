package rabbitmq

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Ключи маршрутизации обменника alerts.
const (
	RoutingKeyOperator   = "operator"
	RoutingKeyTierChange = "tier.changed"
)

// Очереди, привязанные к обменнику alerts.
const (
	QueueOperatorAlerts = "alerts.operator"
	QueueTierChanges    = "alerts.tier"
)

func GetAlertQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueOperatorAlerts, RoutingKey: RoutingKeyOperator},
		{QueueName: QueueTierChanges, RoutingKey: RoutingKeyTierChange},
	}
}
