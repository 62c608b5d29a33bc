package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes rule-change notifications with one writer per topic.
// Messages are hashed on their partition key (field:pattern), so every change
// to one rule lands on the same partition in commit order.
type KafkaProducer struct {
	brokers      []string
	acks         kafka.RequiredAcks
	batchTimeout time.Duration

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// ProducerOption tunes a KafkaProducer.
type ProducerOption func(*KafkaProducer)

// WithRequiredAcks sets how many replicas must confirm a write. Rule changes
// default to every in-sync replica.
func WithRequiredAcks(acks kafka.RequiredAcks) ProducerOption {
	return func(p *KafkaProducer) { p.acks = acks }
}

// WithBatchTimeout bounds how long a writer holds a partial batch.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *KafkaProducer) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

// NewKafkaProducer creates a KafkaProducer. Writers are opened lazily on first use.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	p := &KafkaProducer{
		brokers:      brokers,
		acks:         kafka.RequireAll,
		batchTimeout: 50 * time.Millisecond,
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseRequiredAcks maps none, one or all to the kafka-go setting.
func ParseRequiredAcks(raw string) (kafka.RequiredAcks, error) {
	switch raw {
	case "none":
		return kafka.RequireNone, nil
	case "one":
		return kafka.RequireOne, nil
	case "all", "":
		return kafka.RequireAll, nil
	}
	return 0, fmt.Errorf("unknown required acks %q (want none, one or all)", raw)
}

// WriteMessages publishes msgs to topic.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerForTopic(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: p.acks,
		Compression:  kafka.Snappy,
		BatchTimeout: p.batchTimeout,
	}
	p.writers[topic] = writer
	return writer
}

// Close flushes and releases every writer, returning the first failure.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close writer for %s: %w", topic, err)
		}
		delete(p.writers, topic)
	}
	return firstErr
}
