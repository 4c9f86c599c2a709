package worker

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/postfeed/internal/broker"
	"example.com/postfeed/internal/journal"
	"example.com/postfeed/internal/logger"
	"example.com/postfeed/internal/models"
)

var logg = logger.New()

// fanoutLimit caps concurrent journal writes per event.
const fanoutLimit = 20

// Worker consumes domain events from Kafka and appends them to the
// activity journal of every user they concern.
type Worker struct {
	journal      journal.Journal
	reader       appkafka.KafkaReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(j journal.Journal, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		journal:      j,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan []byte, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- []byte) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
			logg.Error("worker", "Kafka read error, backing off", err)
			if !waitWithContext(ctx, backoff) {
				return
			}
			retry++
			continue
		}
		retry = 0

		if len(msg.Value) == 0 {
			if !waitWithContext(ctx, 50*time.Millisecond) {
				return
			}
			continue
		}

		// block until a worker frees a slot; dropping would lose the event
		for enqueued := false; !enqueued; {
			select {
			case jobs <- msg.Value:
				enqueued = true
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
				logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
			}
		}
	}
}

// processLoop decodes events and journals them.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-jobs:
			if !ok {
				return
			}
			ev, err := appkafka.DecodeEvent(data)
			if err != nil {
				logg.Error("worker", "Invalid event in Kafka message", err)
				continue
			}
			if err := w.handle(ctx, ev); err != nil {
				logg.Error("worker", "Failed to journal event", err, "kind", string(ev.Kind))
			}
		}
	}
}

// handle appends ev to each recipient's journal, at most fanoutLimit at a time.
// The first append error is returned after all appends finish.
func (w *Worker) handle(ctx context.Context, ev models.Event) error {
	recipients := journal.Recipients(ev)

	var (
		fanoutWG sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	semaphore := make(chan struct{}, fanoutLimit)

	for _, uid := range recipients {
		if err := ctx.Err(); err != nil {
			fanoutWG.Wait()
			return err
		}
		select {
		case <-ctx.Done():
			fanoutWG.Wait()
			return ctx.Err()
		case semaphore <- struct{}{}:
		}
		fanoutWG.Add(1)
		go func(u int64) {
			defer fanoutWG.Done()
			defer func() { <-semaphore }()
			if err := w.journal.Append(ctx, u, ev); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(uid)
	}

	fanoutWG.Wait()
	if firstErr == nil {
		logg.Debug("worker", "Event journaled", "kind", string(ev.Kind), "recipients", len(recipients))
	}
	return firstErr
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down Kafka reader and Cassandra session.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing Cassandra session")
	w.journal.Close()
	return nil
}
