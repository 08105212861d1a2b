package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
	"github.com/vladislavdragonenkov/canteen/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/canteen/internal/service/outbox"
)

// initKafkaProducer создаёт producer, если брокеры заданы.
// Без брокеров возвращает nil, nil: события пишутся только в лог.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers возвращает основной публикатор и DLQ для outbox worker.
func outboxPublishers(producer *kafka.Producer, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		return outbox.NewLogPublisher(logger.WithField("component", "outbox-log")), nil
	}
	return kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents),
		kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
}

// startProjectionConsumer подписывает Hub на события заказов из Kafka.
func startProjectionConsumer(ctx context.Context, cfg Config, producer *kafka.Producer, target kafka.Invalidator, logger *log.Entry) (*kafka.Consumer, error) {
	brokers := cfg.KafkaBrokerList()
	if len(brokers) == 0 {
		return nil, nil
	}

	consumerLogger := logger.WithField("component", "kafka-consumer")
	opts := []kafka.ConsumerOption{kafka.WithConsumerLogger(consumerLogger)}
	if producer != nil {
		opts = append(opts, kafka.WithDLQ(producer))
	}

	consumer, err := kafka.NewConsumer(
		brokers,
		cfg.KafkaConsumerGroup,
		[]string{kafka.TopicOrderEvents},
		kafka.NewProjectionHandler(target, consumerLogger),
		opts...,
	)
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return nil, err
	}
	return consumer, nil
}

// closeKafkaProducer закрывает producer, если он есть.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// stopKafkaConsumer останавливает consumer, если он есть.
func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
