package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/billing/internal/metrics"
	"github.com/vladislavdragonenkov/billing/internal/service/payment"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitList(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initPaymentIntake подписывается на billing.payment.settled.
// Сообщения, которые не удалось записать, уходят в DLQ через тот же producer.
func initPaymentIntake(cfg Config, recorder payment.Recorder, dlq *kafka.Producer, m *metrics.BillingMetrics, logger *log.Entry) (*kafka.Consumer, error) {
	brokerList := cfg.brokerList()
	if len(brokerList) == 0 {
		return nil, nil
	}

	options := []kafka.ConsumerOption{
		kafka.WithMaxRetries(cfg.KafkaIntakeRetries),
		kafka.WithConsumerMetrics(m),
		kafka.WithConsumerLogger(logger.WithField("component", "payment-intake")),
	}
	if dlq != nil {
		options = append(options, kafka.WithDLQ(dlq))
	}

	consumer, err := kafka.NewConsumer(
		brokerList,
		cfg.KafkaConsumerGroup,
		[]string{kafka.TopicPaymentSettled},
		payment.NewSettledHandler(recorder, logger.WithField("component", "payment-intake")),
		options...,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create payment intake consumer, continuing without it")
		return nil, err
	}
	return consumer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// stopConsumer останавливает consumer если он не nil.
func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop payment intake consumer")
	}
}
