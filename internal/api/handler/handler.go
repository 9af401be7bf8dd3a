package handler

import (
	"context"
	"log/slog"

	"github.com/carlito03/rets/internal/assets"
	"github.com/carlito03/rets/internal/ingest"
	"github.com/carlito03/rets/internal/listing"
	"github.com/carlito03/rets/internal/store"
)

// ListingStore is the slice of the listing store the read handlers need.
type ListingStore interface {
	QueryByCity(ctx context.Context, filter store.ListingFilter) ([]listing.Record, string, error)
	GetByKey(ctx context.Context, listingKey string) (*listing.Record, error)
}

// Ingester runs one ingest pass over a scope.
type Ingester interface {
	Ingest(ctx context.Context, scope ingest.Scope) (ingest.Result, error)
}

// ImageDispatcher finds stale listings and queues rebuild jobs for them.
type ImageDispatcher interface {
	StaleJobs(records []listing.Record) []assets.ImageBuildJob
	EnqueueDetached(jobs []assets.ImageBuildJob)
}

// GalleryResolver maps records to their serveable CDN URLs.
type GalleryResolver interface {
	Resolve(ctx context.Context, records []listing.Record) []assets.Gallery
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Store      ListingStore
	Ingester   Ingester
	Dispatcher ImageDispatcher
	Resolver   GalleryResolver

	// Health probes for the readiness endpoint.
	DBHealth    func(ctx context.Context) error
	QueueHealth func() bool

	// APIKey gates /api/v1 when non-empty.
	APIKey string
}

// ListingHandler handles listing read requests
type ListingHandler struct {
	logger     *slog.Logger
	store      ListingStore
	dispatcher ImageDispatcher
	resolver   GalleryResolver
}

// NewListingHandler creates a new ListingHandler instance
func NewListingHandler(deps *Dependencies) *ListingHandler {
	return &ListingHandler{
		logger:     deps.Logger,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		resolver:   deps.Resolver,
	}
}

// IngestHandler handles manual ingest triggers
type IngestHandler struct {
	logger   *slog.Logger
	ingester Ingester
}

// NewIngestHandler creates a new IngestHandler instance
func NewIngestHandler(deps *Dependencies) *IngestHandler {
	return &IngestHandler{
		logger:   deps.Logger,
		ingester: deps.Ingester,
	}
}
