package imageworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/carlito03/rets/internal/assets"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer configures QoS and starts consuming from the image job queue.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	// prefetch bounds unacknowledged deliveries per consumer, so a slow
	// build cannot pull the whole queue into memory
	err := channel.Qos(
		w.prefetchCount, // prefetch count
		0,               // prefetch size
		false,           // global
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := w.rabbitClient.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.Int("prefetch_count", w.prefetchCount),
	)

	return deliveries, nil
}

// dispatchDeliveries reads queue deliveries, validates them, and hands the
// decoded jobs to the worker pool.
func (w *Worker) dispatchDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			job, err := decodeJob(delivery.Body)
			if err != nil {
				w.logger.Error("Dropping malformed image job",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages can never succeed; nack without requeue.
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.String("error", nackErr.Error()),
					)
				}
				continue
			}

			msg := &jobMessage{
				Job:         job,
				DeliveryTag: delivery.DeliveryTag,
				Redelivered: delivery.Redelivered,
			}

			select {
			case w.jobsChan <- msg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("listing_key", job.ListingKey),
					slog.String("kind", job.Kind),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				// Requeue so another worker picks the job up.
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return
			}
		}
	}
}

// decodeJob parses and validates a queue message body.
func decodeJob(body []byte) (assets.ImageBuildJob, error) {
	var job assets.ImageBuildJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	if job.Kind != assets.KindPrimary && job.Kind != assets.KindGallery {
		return job, fmt.Errorf("%w: unknown kind %q", ErrMalformedJob, job.Kind)
	}
	if job.ListingKey == "" {
		return job, fmt.Errorf("%w: missing listing_key", ErrMalformedJob)
	}
	if job.Width <= 0 {
		return job, fmt.Errorf("%w: width %d", ErrMalformedJob, job.Width)
	}

	return job, nil
}
