package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"
)

// KafkaPublisher produces events to one topic keyed by doctor id so a
// doctor's events stay ordered within a partition.
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	done     chan struct{}
}

func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) (*KafkaPublisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(brokers, ","),
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := &KafkaPublisher{producer: producer, topic: topic, done: make(chan struct{})}
	go p.deliveryReports(logger.With().Str("component", "kafka").Logger())
	return p, nil
}

func (p *KafkaPublisher) deliveryReports(log zerolog.Logger) {
	defer close(p.done)
	for ev := range p.producer.Events() {
		switch e := ev.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				log.Warn().Err(e.TopicPartition.Error).Str("key", string(e.Key)).Msg("kafka delivery failed")
			}
		case kafka.Error:
			log.Error().Err(e).Msg("kafka producer error")
		}
	}
}

func (p *KafkaPublisher) Publish(_ context.Context, event Event) error {
	msg, err := p.message(event)
	if err != nil {
		return err
	}
	if err := p.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("produce %s: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) message(event Event) (*kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.DoctorID.String()),
		Value:          payload,
		Headers:        []kafka.Header{{Key: "event_type", Value: []byte(event.Type)}},
	}, nil
}

// Close flushes outstanding messages for up to five seconds.
func (p *KafkaPublisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
	<-p.done
}
