package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/carlito03/rets/internal/listing"
)

const (
	defaultBatchSize  = 10
	defaultBatchDelay = 100 * time.Millisecond
	defaultJobWidth   = 400

	detachedTimeout = 30 * time.Second
)

// BatchPublisher sends a group of messages in one call and reports how many
// entries the broker rejected. A non-nil error means the transport itself
// failed and nothing published after it can be assumed delivered.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, bodies [][]byte, contentType string) (int, error)
}

// DispatcherConfig tunes job batching. Zero values fall back to defaults.
type DispatcherConfig struct {
	BatchSize  int
	BatchDelay time.Duration
	Width      int
	GalleryMax int
}

// Dispatcher hands image build jobs to the queue in fixed-size batches with
// a short pause between them, so one hot search page cannot flood the
// broker in a single call.
type Dispatcher struct {
	publisher BatchPublisher
	logger    *slog.Logger

	batchSize  int
	batchDelay time.Duration
	width      int
	galleryMax int
}

// NewDispatcher creates a dispatcher over the given publisher.
func NewDispatcher(cfg DispatcherConfig, publisher BatchPublisher, logger *slog.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = defaultBatchDelay
	}
	if cfg.Width <= 0 {
		cfg.Width = defaultJobWidth
	}

	return &Dispatcher{
		publisher:  publisher,
		logger:     logger,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
		width:      cfg.Width,
		galleryMax: cfg.GalleryMax,
	}
}

// StaleJobs collects the rebuild jobs for every stale record in the page.
func (d *Dispatcher) StaleJobs(records []listing.Record) []ImageBuildJob {
	var jobs []ImageBuildJob
	for i := range records {
		rec := &records[i]
		if !Stale(rec) {
			continue
		}
		jobs = append(jobs, JobsFor(rec, d.width, d.galleryMax)...)
	}

	return jobs
}

// Enqueue publishes the jobs in batches and returns how many the broker
// accepted. Entries the broker rejects are counted and logged without
// failing the call; a transport error aborts the remaining batches and is
// returned alongside the count accepted so far.
func (d *Dispatcher) Enqueue(ctx context.Context, jobs []ImageBuildJob) (int, error) {
	accepted := 0
	for start := 0; start < len(jobs); start += d.batchSize {
		end := start + d.batchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		batch := jobs[start:end]

		bodies := make([][]byte, 0, len(batch))
		for i := range batch {
			body, err := json.Marshal(batch[i])
			if err != nil {
				return accepted, fmt.Errorf("failed to encode image job: %w", err)
			}
			bodies = append(bodies, body)
		}

		if start > 0 {
			select {
			case <-ctx.Done():
				return accepted, ctx.Err()
			case <-time.After(d.batchDelay):
			}
		}

		failed, err := d.publisher.PublishBatch(ctx, bodies, "application/json")
		if err != nil {
			return accepted, fmt.Errorf("failed to publish image job batch: %w", err)
		}
		if failed > 0 {
			d.logger.Warn("Queue rejected image jobs from batch",
				slog.Int("failed", failed),
				slog.Int("batch_size", len(batch)),
			)
		}
		accepted += len(batch) - failed
	}

	return accepted, nil
}

// EnqueueDetached schedules jobs from a read path without blocking the
// response. Failures are logged and dropped; the listing stays stale, so
// the next read or ingest pass schedules it again.
func (d *Dispatcher) EnqueueDetached(jobs []ImageBuildJob) {
	if len(jobs) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), detachedTimeout)
		defer cancel()

		accepted, err := d.Enqueue(ctx, jobs)
		if err != nil {
			d.logger.Error("Failed to dispatch image jobs",
				slog.Any("error", err),
				slog.Int("accepted", accepted),
				slog.Int("total", len(jobs)),
			)
			return
		}

		d.logger.Debug("Dispatched image jobs",
			slog.Int("accepted", accepted),
			slog.Int("total", len(jobs)),
		)
	}()
}
