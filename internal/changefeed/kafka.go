package changefeed

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes changes to a Kafka topic keyed by patient, so a patient's
// changes stay on one partition.
type KafkaPublisher struct {
	writer MessageWriter
	origin string
}

// NewKafkaWriter builds the default writer for a topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

// NewKafkaPublisher wraps a writer.
func NewKafkaPublisher(writer MessageWriter, origin string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, origin: origin}
}

func (p *KafkaPublisher) Publish(ctx context.Context, changes ...Change) error {
	msgs := make([]kafka.Message, 0, len(changes))
	for _, c := range changes {
		c.Origin = p.origin
		data, err := encode(c)
		if err != nil {
			return fmt.Errorf("encode change: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(c.PatientID),
			Value: data,
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write kafka messages: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
