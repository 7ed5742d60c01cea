// Package notify publishes finished runs to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/teetime-scheduler/internal/domain/booking"
	"github.com/segmentio/kafka-go"
)

const EventRunFinished = "teetime.run.finished"

// Event is the message envelope. Data carries the run summary.
type Event struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Time time.Time       `json:"time"`
	Data booking.Summary `json:"data"`
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w   MessageWriter
	now func() time.Time
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	})
}

func NewPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, now: time.Now}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

// Record publishes the run summary keyed by run id.
func (p *KafkaPublisher) Record(ctx context.Context, r booking.RunResult) error {
	evt := Event{Type: EventRunFinished, ID: r.RunID, Time: p.now().UTC(), Data: r.Summary()}
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: encode: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(r.RunID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte(EventRunFinished)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("notify: publish run %s: %w", r.RunID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
