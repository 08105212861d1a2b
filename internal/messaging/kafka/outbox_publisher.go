package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// Заголовки события витрины: по ним потребитель фильтрует сообщения без разбора тела.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// ErrUnroutableEvent — событие нельзя отправить: неизвестный тип или чужой агрегат.
var ErrUnroutableEvent = errors.New("unroutable outbox event")

// eventAggregates задаёт агрегат для каждого публикуемого типа события.
var eventAggregates = map[string]string{
	domain.EventOrderPlaced:         domain.AggregateOrder,
	domain.EventOrderCompleted:      domain.AggregateOrder,
	domain.EventOrderCanceled:       domain.AggregateOrder,
	domain.EventOrderDeleted:        domain.AggregateOrder,
	domain.EventProductStockChanged: domain.AggregateProduct,
}

// OrderEventPublisher отправляет события заказов и остатков из outbox в топик витрины.
type OrderEventPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OrderEventPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish отправляет событие с ключом "<агрегат>:<id>": события одного заказа
// или одного товара попадают в одну партицию и читаются по порядку.
func (p *OrderEventPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	key, err := PartitionKey(event)
	if err != nil {
		return err
	}
	return p.producer.PublishEvent(p.topic, key, NewEnvelope(event, p.now()),
		sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(event.EventType)},
		sarama.RecordHeader{Key: []byte(HeaderAggregateType), Value: []byte(event.AggregateType)},
		sarama.RecordHeader{Key: []byte(HeaderOutboxID), Value: []byte(event.ID)},
	)
}

// PartitionKey проверяет маршрут события и возвращает ключ партиции.
func PartitionKey(event domain.OutboxMessage) (string, error) {
	aggregate, ok := eventAggregates[event.EventType]
	if !ok {
		return "", fmt.Errorf("%w: event type %q", ErrUnroutableEvent, event.EventType)
	}
	if event.AggregateType != aggregate {
		return "", fmt.Errorf("%w: %s belongs to %s, got %q", ErrUnroutableEvent, event.EventType, aggregate, event.AggregateType)
	}
	if event.AggregateID == "" {
		return "", fmt.Errorf("%w: %s %s has no aggregate id", ErrUnroutableEvent, event.EventType, event.ID)
	}
	return aggregate + ":" + event.AggregateID, nil
}

// eventTypeHeader возвращает тип события из заголовков или "".
func eventTypeHeader(message *sarama.ConsumerMessage) string {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == HeaderEventType {
			return string(header.Value)
		}
	}
	return ""
}

var _ domain.OutboxPublisher = (*OrderEventPublisher)(nil)
