package kafka

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/vladislavdragonenkov/billing/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope outboxEnvelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if envelope.EventType != "invoice.issued" || envelope.AggregateID != "42" {
			return fmt.Errorf("unexpected envelope: %+v", envelope)
		}
		if string(envelope.Payload) != `{"number":"00000001"}` {
			return fmt.Errorf("unexpected payload: %s", envelope.Payload)
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer))

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: domain.AggregateInvoice,
		AggregateID:   "42",
		EventType:     "invoice.issued",
		Payload:       []byte(`{"number":"00000001"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_Routing(t *testing.T) {
	t.Parallel()

	routed := NewOutboxPublisher(nil)
	if got := routed.topicFor(domain.OutboxMessage{AggregateType: domain.AggregateShipment}); got != TopicShipmentEvents {
		t.Fatalf("expected %s, got %s", TopicShipmentEvents, got)
	}

	fixed := NewFixedTopicPublisher(nil, TopicDeadLetterQueue)
	if got := fixed.topicFor(domain.OutboxMessage{AggregateType: domain.AggregateShipment}); got != TopicDeadLetterQueue {
		t.Fatalf("expected %s, got %s", TopicDeadLetterQueue, got)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer))

	err := publisher.Publish(domain.OutboxMessage{
		ID:            "outbox-2",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "7",
		EventType:     "order.status_changed",
		Payload:       []byte(`{"status":"PAID"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_InvalidPayloadBecomesNull(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var envelope outboxEnvelope
		if err := json.Unmarshal(val, &envelope); err != nil {
			return err
		}
		if string(envelope.Payload) != "null" {
			return fmt.Errorf("expected null payload, got %s", envelope.Payload)
		}
		return nil
	})

	publisher := NewOutboxPublisher(NewProducerFromSync(mockProducer))
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-4", AggregateID: "1", Payload: []byte("{broken")}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}
