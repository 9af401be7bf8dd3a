package imageworker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/carlito03/rets/internal/listing"
	"github.com/carlito03/rets/shared/rabbitmq"
	"github.com/google/uuid"
)

const (
	defaultConcurrency = 4
	defaultPrefetch    = 8
	defaultJobTimeout  = 2 * time.Minute
)

// RecordStore is the slice of the listing cache the worker needs: record
// lookup plus the bookkeeping writes that record finished builds.
type RecordStore interface {
	GetByKey(ctx context.Context, listingKey string) (*listing.Record, error)
	MarkPrimaryBuilt(ctx context.Context, listingKey, cdnPrimary string, builtAt int64) error
	MarkGalleryBuilt(ctx context.Context, listingKey string, galleryCount int, builtAt int64) error
}

// ObjectStore uploads derived images and reports their public URLs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	PublicURL(key string) string
}

// Builder turns one source photo URL into resized JPEG bytes.
type Builder interface {
	Build(ctx context.Context, srcURL string, width int) ([]byte, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         RecordStore
	Objects       ObjectStore
	Builder       Builder
	RabbitClient  *rabbitmq.Client
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
}

// Worker consumes image build jobs from the queue and processes them
// concurrently. Acking is manual: a job is only acked once its derivative
// is uploaded and recorded, so a crash mid-build loses nothing.
type Worker struct {
	logger        *slog.Logger
	store         RecordStore
	objects       ObjectStore
	builder       Builder
	rabbitClient  *rabbitmq.Client
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration

	workerID string
	jobsChan chan *jobMessage
	stopChan chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}

	return &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		objects:       cfg.Objects,
		builder:       cfg.Builder,
		rabbitClient:  cfg.RabbitClient,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		jobTimeout:    jobTimeout,
		workerID:      uuid.New().String(),
		jobsChan:      make(chan *jobMessage, concurrency),
		stopChan:      make(chan struct{}),
		now:           time.Now,
	}
}

// Start begins consuming and processing jobs. It blocks until the context
// is canceled or the broker connection drops.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting image worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	go w.dispatchDeliveries(ctx, deliveries)

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
		return nil
	case amqpErr := <-w.rabbitClient.NotifyClose():
		if amqpErr != nil {
			return fmt.Errorf("rabbitmq connection closed: %w", amqpErr)
		}
		return nil
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping image worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Image worker stopped")
}
