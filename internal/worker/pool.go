package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueReceipt = "jobs:receipt"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Attempts int             `json:"attempts"`
	Payload  json.RawMessage `json:"payload"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// ReceiptJobPayload is the envelope for receipt notification jobs. The
// transaction id is the deduplication key on the collaborator side.
type ReceiptJobPayload struct {
	TransactionID string `json:"transaction_id"`
}

// NotifyCompleted enqueues a receipt notification; it satisfies the engine's
// ReceiptNotifier port and is called strictly after the completion commit.
func (d *Dispatcher) NotifyCompleted(ctx context.Context, transactionID uuid.UUID) error {
	return d.enqueue(ctx, QueueReceipt, "receipt", 0, ReceiptJobPayload{TransactionID: transactionID.String()})
}

// Requeue puts a failed job back with its attempt count bumped.
func (d *Dispatcher) Requeue(ctx context.Context, queue string, job Job) error {
	job.Attempts++
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, attempts int, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Attempts: attempts, Payload: data}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Handler processes one job; a returned error requeues or dead-letters it
// depending on the attempt count.
type Handler interface {
	Process(ctx context.Context, job Job) error
}

// WorkerHandlers maps queue names to their handlers.
type WorkerHandlers struct {
	Receipt Handler
}

const maxAttempts = 3

// StartWorkerPool launches numWorkers goroutines consuming the job queues.
// Each goroutine blocks on BRPOP — zero CPU when idle.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, dispatcher *Dispatcher, handlers *WorkerHandlers, numWorkers int) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, dispatcher, handlers, i)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, dispatcher *Dispatcher, handlers *WorkerHandlers, id int) {
	queues := []string{QueueReceipt}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop — waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, rdb, dispatcher, handlers, result[0], result[1])
		}
	}
}

func processJob(ctx context.Context, rdb *redis.Client, dispatcher *Dispatcher, handlers *WorkerHandlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}

	var handler Handler
	switch queue {
	case QueueReceipt:
		handler = handlers.Receipt
	}
	if handler == nil {
		log.Error().Str("queue", queue).Str("type", job.Type).Msg("no handler for queue")
		return
	}

	err := handler.Process(ctx, job)
	if err == nil {
		return
	}

	if job.Attempts+1 >= maxAttempts {
		SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, err.Error(), job.Attempts+1)
		return
	}
	log.Warn().Str("queue", queue).Int("attempts", job.Attempts+1).Err(err).Msg("job failed, requeueing")
	if reqErr := dispatcher.Requeue(ctx, queue, job); reqErr != nil {
		SendToDLQ(ctx, rdb, queue, job.Type, job.Payload, reqErr.Error(), job.Attempts+1)
	}
}
