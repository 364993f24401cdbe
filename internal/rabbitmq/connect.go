// Package rabbitmq содержит подключение к брокеру и публикацию
// событий о платежах. События payment.completed уведомляют внешних
// потребителей об успешном начислении, события payment.credit_failed
// служат каналом сверки для оператора: платёж подтверждён провайдером,
// но локально не зачислен.
package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// Connect устанавливает соединение с RabbitMQ и открывает канал.
func Connect(address string) (*amqp.Connection, *amqp.Channel, error) {
	const op = "rabbitmq.Connect"
	conn, err := amqp.Dial(address)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return conn, ch, nil
}

// SetupQueues объявляет exchange и очереди событий платежей.
func SetupQueues(ch *amqp.Channel, exchange string) error {
	const op = "rabbitmq.SetupQueues"

	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, key := range []string{RouteCompleted, RouteCreditFailed} {
		q, err := ch.QueueDeclare(key, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
