package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// KafkaNotifier publishes loved book events to a topic keyed by user, so one user's
// events stay ordered within a partition.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	config := NewProducerConfig()

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	slog.Info("Kafka notifier started", "brokers", brokers, "topic", topic)

	return NewKafkaNotifierWithProducer(producer, topic), nil
}

func NewKafkaNotifierWithProducer(producer sarama.SyncProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
	}
}

func NewProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V3_6_0_0
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	return config
}

func (n *KafkaNotifier) NotifyLoved(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(e.UserID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte("book.loved")},
		},
	}

	partition, offset, err := n.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish event for item %s: %w", e.ItemID, err)
	}

	slog.Debug("Event published", "topic", n.topic, "partition", partition, "offset", offset, "item", e.ItemID)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
