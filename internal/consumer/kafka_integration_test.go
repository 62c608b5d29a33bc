//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/Bhavikpatel576/timely/internal/domain"
	"github.com/Bhavikpatel576/timely/internal/events"
	"github.com/Bhavikpatel576/timely/internal/persistence/memory"
)

func TestKafkaCaptureIsIngested(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]
	topic := "activity_captured"

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))

	store := memory.NewStore()
	svc := domain.NewService(store)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "timely-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = NewProcessor(reader, NewIngestHandler(svc), WithLogger(quiet)).Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	app := "Code"
	evt := events.ActivityCaptured{
		EventID:   "capture-1",
		DeviceID:  "laptop",
		Timestamp: time.Now().UTC().Add(-time.Minute),
		App:       &app,
		Duration:  60,
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	msg := kafka.Message{
		Key:     []byte(evt.EventID),
		Value:   payload,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(events.ActivityCapturedType)}},
	}
	// the second copy is a redelivery and must not create a second event
	require.NoError(t, writer.WriteMessages(context.Background(), msg, msg))

	require.Eventually(t, func() bool {
		latest, err := store.LatestEvent(ctx)
		return err == nil && latest != nil && latest.SourceEventID == evt.EventID
	}, 30*time.Second, 500*time.Millisecond)

	require.Eventually(t, func() bool {
		page, err := store.Timeline(ctx, svc.Period(evt.Timestamp.Format(domain.DateLayout), evt.Timestamp.Format(domain.DateLayout)), nil, 10)
		return err == nil && len(page) == 1
	}, 10*time.Second, 500*time.Millisecond)
}
