package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// KafkaConfig holds producer settings.
type KafkaConfig struct {
	Brokers        []string
	ClientID       string
	TopicInventory string
	TopicLoans     string
	Retries        int
}

// KafkaPublisher publishes ledger events with a sync producer.
// Inventory and loan events go to separate topics, keyed by item id.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	cfg      KafkaConfig
	logger   *zap.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.Retries
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return newKafkaPublisher(producer, cfg, logger), nil
}

func newKafkaPublisher(producer sarama.SyncProducer, cfg KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, cfg: cfg, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topicFor(e),
		Key:   sarama.StringEncoder(e.ItemID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(e.Type)},
			{Key: []byte("event-id"), Value: []byte(uuid.NewString())},
			{Key: []byte("timestamp"), Value: []byte(e.OccurredAt.Format(time.RFC3339))},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	p.logger.Debug("Event published to Kafka",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("event-type", string(e.Type)),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func (p *KafkaPublisher) topicFor(e Event) string {
	if e.IsLoanEvent() {
		return p.cfg.TopicLoans
	}
	return p.cfg.TopicInventory
}
