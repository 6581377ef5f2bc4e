// Package activity turns search session callbacks into events and ships them
// to Kafka for the indexing worker.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/parcel-search/internal/models"
)

// Publisher delivers activity events.
type Publisher interface {
	Publish(ctx context.Context, ev models.ActivityEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON, keyed by session so one session's
// events stay ordered on a partition.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher writes to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.ActivityEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
		Time: ev.Timestamp,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// LogPublisher only logs events. It is used when no brokers are configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev models.ActivityEvent) error {
	p.log.Info("activity",
		slog.String("kind", string(ev.Kind)),
		slog.String("session", ev.SessionID),
		slog.String("query", ev.Query),
		slog.String("pin", ev.PIN),
		slog.Int("results", ev.ResultCount),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
