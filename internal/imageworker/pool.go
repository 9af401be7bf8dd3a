package imageworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stop requested",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}

			err := w.processJob(ctx, msg)

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("worker_name", workerName),
					slog.String("listing_key", msg.Job.ListingKey),
				)
				continue
			}

			if err != nil {
				// A redelivered job gets one retry at most. The listing stays
				// stale in the cache, so the next read dispatches it again.
				requeue := shouldRequeue(err) && !msg.Redelivered

				w.logger.Error("Image job failed",
					slog.String("worker_name", workerName),
					slog.String("listing_key", msg.Job.ListingKey),
					slog.String("kind", msg.Job.Kind),
					slog.Bool("requeue", requeue),
					slog.String("error", err.Error()),
				)

				if nackErr := channel.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("worker_name", workerName),
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
				w.logger.Error("Failed to ACK message",
					slog.String("worker_name", workerName),
					slog.String("error", ackErr.Error()),
				)
			} else {
				w.logger.Info("Image job completed",
					slog.String("worker_name", workerName),
					slog.String("listing_key", msg.Job.ListingKey),
					slog.String("kind", msg.Job.Kind),
				)
			}
		}
	}
}

// shouldRequeue determines if a failed job should go back on the queue.
// Only errors wrapped as retryable do; everything else is permanent.
func shouldRequeue(err error) bool {
	if errors.Is(err, ErrMalformedJob) {
		return false
	}
	if errors.Is(err, ErrUnknownListing) {
		return false
	}
	if errors.Is(err, ErrSourceGone) {
		return false
	}

	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
