package appkafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"example.com/postfeed/internal/logger"
	"example.com/postfeed/internal/models"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

// Publisher emits domain events after a write has been committed.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// EventPublisher encodes events as JSON onto a Kafka topic, keyed by actor
// so one user's events stay ordered within a partition.
type EventPublisher struct {
	writer KafkaWriter
}

func NewEventPublisher(w KafkaWriter) *EventPublisher {
	return &EventPublisher{writer: w}
}

func (p *EventPublisher) Publish(ctx context.Context, ev models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

func (p *EventPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, ev models.Event) error {
	logg.Debug("broker", "Event dropped, no broker configured", "kind", string(ev.Kind))
	return nil
}

func EncodeEvent(ev models.Event) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.ActorID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}, nil
}

// DecodeEvent rejects payloads that are not events or carry no actor.
func DecodeEvent(data []byte) (models.Event, error) {
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return models.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Kind == "" || ev.ActorID == 0 {
		return models.Event{}, fmt.Errorf("decode event: missing kind or actor")
	}
	return ev, nil
}
