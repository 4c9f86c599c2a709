package worker

import (
	"context"
	"testing"
	"time"

	appkafka "example.com/postfeed/internal/broker"
	"example.com/postfeed/internal/journal"
	"example.com/postfeed/internal/models"
	"github.com/segmentio/kafka-go"
)

// runWorkerOnce processes a single Kafka message for testing.
func runWorkerOnce(ctx context.Context, j journal.Journal, reader appkafka.KafkaReader) error {
	msg, err := reader.ReadMessage(ctx)
	if err != nil {
		return err
	}
	if len(msg.Value) == 0 {
		return nil
	}

	ev, err := appkafka.DecodeEvent(msg.Value)
	if err != nil {
		return err
	}

	w := New(j, reader, 1, 1)
	return w.handle(ctx, ev)
}

func encode(t *testing.T, ev models.Event) kafka.Message {
	t.Helper()
	msg, err := appkafka.EncodeEvent(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return msg
}

// ---------- Positive tests ----------

func TestWorker_FollowJournaledForBothUsers(t *testing.T) {
	j := journal.NewMock()
	ev := models.Event{
		Kind:         models.EventFollowed,
		ActorID:      2,
		Actor:        "han",
		TargetUserID: 1,
		OccurredAt:   time.Now().UTC(),
	}

	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{encode(t, ev)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := runWorkerOnce(ctx, j, mockKafka); err != nil {
		t.Fatalf("worker failed: %v", err)
	}

	if j.Len(2) != 1 || j.Len(1) != 1 {
		t.Fatalf("expected one entry each for actor and target, got: %+v", j.Entries)
	}
}

func TestWorker_PostCreatedJournaledForActorOnly(t *testing.T) {
	j := journal.NewMock()
	ev := models.Event{Kind: models.EventPostCreated, ActorID: 1, PostID: 10, Summary: "May the Force be with you!"}

	mockKafka := &appkafka.MockKafka{ReadMessages: []kafka.Message{encode(t, ev)}}

	if err := runWorkerOnce(context.Background(), j, mockKafka); err != nil {
		t.Fatalf("worker failed: %v", err)
	}
	if len(j.Entries) != 1 || j.Len(1) != 1 {
		t.Fatalf("unexpected journal entries: %+v", j.Entries)
	}
	if got := j.Entries[1][0].Summary; got != ev.Summary {
		t.Fatalf("summary not preserved, got %q", got)
	}
}

// ---------- Negative tests ----------

// Simulate Kafka read error
func TestWorker_KafkaReadError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := runWorkerOnce(ctx, journal.NewMock(), &appkafka.MockKafkaFail{})
	if err == nil {
		t.Fatalf("expected error from Kafka read")
	}
}

// Simulate invalid event JSON
func TestWorker_InvalidEventJSON(t *testing.T) {
	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{
			{Value: []byte("{invalid-json}")},
		},
	}

	err := runWorkerOnce(context.Background(), journal.NewMock(), mockKafka)
	if err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

// Simulate journal failure when appending
func TestWorker_JournalAppendFail(t *testing.T) {
	j := journal.NewMock()
	j.ShouldFail = true

	ev := models.Event{Kind: models.EventCommentAdded, ActorID: 2, TargetUserID: 1, PostID: 5}
	mockKafka := &appkafka.MockKafka{ReadMessages: []kafka.Message{encode(t, ev)}}

	err := runWorkerOnce(context.Background(), j, mockKafka)
	if err == nil {
		t.Fatalf("expected error from journal Append")
	}
}

func TestWorker_EmptyKafkaMessage(t *testing.T) {
	mockKafka := &appkafka.MockKafka{
		ReadMessages: []kafka.Message{{Value: nil}},
	}

	err := runWorkerOnce(context.Background(), journal.NewMock(), mockKafka)
	if err != nil {
		t.Fatalf("expected no error for empty Kafka message, got: %v", err)
	}
}

func TestWorker_HandleCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(journal.NewMock(), &appkafka.MockKafka{}, 1, 1)
	err := w.handle(ctx, models.Event{Kind: models.EventFollowed, ActorID: 2, TargetUserID: 1})
	if err == nil {
		t.Fatalf("expected context error")
	}
}
