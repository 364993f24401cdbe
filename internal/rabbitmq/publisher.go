package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

const (
	// RouteCompleted — ключ маршрутизации событий успешного начисления.
	RouteCompleted = "payment.completed"
	// RouteCreditFailed — ключ маршрутизации событий для сверки.
	RouteCreditFailed = "payment.credit_failed"
)

// PaymentEvent — событие обработки платежа для внешних потребителей.
type PaymentEvent struct {
	EventID     string    `json:"event_id"`
	UserUID     string    `json:"user_uid"`
	PaymentID   string    `json:"payment_id"`
	Amount      float64   `json:"amount"`
	DaysGranted int       `json:"days_granted"`
	Reason      string    `json:"reason,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventBus публикует события платежей в заданный exchange.
type EventBus struct {
	ch       *amqp.Channel
	exchange string
}

// NewEventBus создаёт публикатор поверх открытого канала.
func NewEventBus(ch *amqp.Channel, exchange string) *EventBus {
	return &EventBus{
		ch:       ch,
		exchange: exchange,
	}
}

// Publish отправляет событие с заданным ключом маршрутизации.
// Идентификатор и время события проставляются при публикации.
func (b *EventBus) Publish(routingKey string, event PaymentEvent) error {
	const op = "rabbitmq.Publish"

	event.EventID = uuid.New().String()
	event.OccurredAt = time.Now().UTC()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = b.ch.Publish(
		b.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
