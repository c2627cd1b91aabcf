package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Sink receives flushed batches from an OfflineProvider. A non-nil error
// keeps the whole batch queued for the next flush.
type Sink interface {
	Send(ctx context.Context, batch []Record) error
}

// LogSink logs each record and always succeeds.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging to logger (slog.Default() when nil).
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, batch []Record) error {
	for _, r := range batch {
		s.logger.InfoContext(ctx, "analytics record",
			"type", r.Type, "data", string(r.Data), "timestamp", r.Timestamp)
	}
	return nil
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaSink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink publishes each record as one message keyed by record type.
// A batch is written with a single WriteMessages call, so it is delivered
// or failed as a whole.
type KafkaSink struct {
	topic  string
	writer messageWriter
}

// NewKafkaSink creates a sink writing to cfg.Topic. No connection is made
// until the first Send.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers cannot be empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic cannot be empty")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSink{topic: cfg.Topic, writer: w}, nil
}

func (s *KafkaSink) Send(ctx context.Context, batch []Record) error {
	if len(batch) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(batch))
	for _, r := range batch {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode analytics record: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.Type),
			Value: value,
			Time:  time.UnixMilli(r.Timestamp),
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d analytics records to %s: %w", len(msgs), s.topic, err)
	}
	return nil
}

// Close flushes pending writes and releases the connection.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
