// Package rabbitmq содержит подключение к RabbitMQ, объявление топологии,
// публикацию и потребление JSON-сообщений.
package rabbitmq

// Ключи маршрутизации событий сервиса.
const (
	RoutingPaymentConfirmed    = "payment.confirmed"
	RoutingEntitlementGranted  = "entitlement.granted"
	RoutingEntitlementExpiring = "entitlement.expiring"
)

const prefetch = 10

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// EntitlementQueues возвращает очереди сервиса: входящие подтверждения оплаты
// и события для чат-бота.
func EntitlementQueues(confirmationsQueue string) []QueueConfig {
	return []QueueConfig{
		{QueueName: confirmationsQueue, RoutingKey: RoutingPaymentConfirmed},
		{QueueName: RoutingEntitlementGranted, RoutingKey: RoutingEntitlementGranted},
		{QueueName: RoutingEntitlementExpiring, RoutingKey: RoutingEntitlementExpiring},
	}
}
