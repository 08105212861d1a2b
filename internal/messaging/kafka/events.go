package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "canteen.order.events"
	TopicDeadLetterQueue = "canteen.order.events.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// Envelope — формат события из outbox в топике заказов.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   publishedAt,
	}
}

// ParseEnvelope разбирает событие из сообщения Kafka.
func ParseEnvelope(message *sarama.ConsumerMessage) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("event envelope %q has no event type", env.ID)
	}
	return &env, nil
}

// ParseOrderPayload разбирает тело события заказа.
func (e *Envelope) ParseOrderPayload() (domain.OrderEventPayload, error) {
	var payload domain.OrderEventPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return domain.OrderEventPayload{}, fmt.Errorf("failed to unmarshal %s payload: %w", e.EventType, err)
	}
	return payload, nil
}

// AffectsProjections — меняет ли событие остатки, выручку или списки заказов.
func AffectsProjections(eventType string) bool {
	switch eventType {
	case domain.EventOrderPlaced,
		domain.EventOrderCompleted,
		domain.EventOrderCanceled,
		domain.EventOrderDeleted,
		domain.EventProductStockChanged:
		return true
	default:
		return false
	}
}
