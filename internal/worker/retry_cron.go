package worker

// retry_cron.go
// Background goroutine that periodically drains dead-lettered receipt jobs
// back onto the main queue once the collaborator's circuit breaker has
// closed again. Attempt counts reset on requeue: the DLQ entry already
// represents an exhausted round against a collaborator that was down.

import (
	"context"
	"time"

	"tillpos/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	retryTickInterval = 30 * time.Second
	retryBatchSize    = 10
)

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	RDB        *redis.Client
	Dispatcher *Dispatcher
	HookCB     *infra.CircuitBreaker
}

// StartRetryCron launches a background goroutine that ticks every 30s and
// requeues dead-lettered receipt jobs while the breaker is closed.
// It respects the context for graceful shutdown.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	go func() {
		ticker := time.NewTicker(retryTickInterval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				drainDLQ(ctx, cfg)
			}
		}
	}()
}

func drainDLQ(ctx context.Context, cfg RetryCronConfig) {
	// If the breaker is not closed the collaborator is still unhealthy —
	// requeueing would just bounce the jobs straight back.
	if cfg.HookCB.State() != infra.CBClosed {
		log.Debug().Str("state", cfg.HookCB.State().String()).Msg("retry_cron: breaker not closed, skipping tick")
		return
	}

	for i := 0; i < retryBatchSize; i++ {
		entry, err := PopDLQ(ctx, cfg.RDB, QueueReceipt)
		if err != nil {
			log.Error().Err(err).Msg("retry_cron: failed to pop DLQ")
			return
		}
		if entry == nil {
			return
		}
		job := Job{Type: entry.JobType, Attempts: 0, Payload: entry.Payload}
		if err := cfg.Dispatcher.Requeue(ctx, entry.OriginalQueue, job); err != nil {
			log.Error().Err(err).Msg("retry_cron: requeue failed")
			return
		}
		log.Info().Str("queue", entry.OriginalQueue).Str("type", entry.JobType).
			Msg("retry_cron: dead-lettered job requeued")
	}
}
