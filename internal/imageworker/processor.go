package imageworker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/carlito03/rets/internal/assets"
	"github.com/carlito03/rets/internal/listing"
	"github.com/carlito03/rets/internal/store"
)

// processJob executes one image build job under the configured timeout.
func (w *Worker) processJob(ctx context.Context, msg *jobMessage) error {
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	job := msg.Job

	rec, err := w.store.GetByKey(jobCtx, job.ListingKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownListing, job.ListingKey)
		}
		// A cache read failing is a database hiccup, not a bad job.
		return NewRetryableError(fmt.Errorf("failed to load listing %s: %w", job.ListingKey, err))
	}

	if len(rec.PhotoURLs) == 0 {
		// The listing lost its photos since the job was queued. Nothing to
		// build, so ack and move on.
		w.logger.Info("Listing has no photo URLs, skipping build",
			slog.String("listing_key", job.ListingKey),
			slog.String("kind", job.Kind),
		)
		return nil
	}

	switch job.Kind {
	case assets.KindPrimary:
		return w.buildPrimary(jobCtx, job, rec)
	case assets.KindGallery:
		return w.buildGallery(jobCtx, job, rec)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedJob, job.Kind)
	}
}

// buildPrimary resizes the listing's first photo and records its public URL.
func (w *Worker) buildPrimary(ctx context.Context, job assets.ImageBuildJob, rec *listing.Record) error {
	data, err := w.builder.Build(ctx, rec.PhotoURLs[0], job.Width)
	if err != nil {
		return err
	}

	key := assets.ObjectKey(assets.KindPrimary, job.ListingKey, job.Width, 0)
	if err := w.objects.Upload(ctx, key, bytes.NewReader(data), "image/jpeg"); err != nil {
		return NewRetryableError(fmt.Errorf("failed to upload %s: %w", key, err))
	}

	url := w.objects.PublicURL(key)
	if err := w.store.MarkPrimaryBuilt(ctx, job.ListingKey, url, w.now().Unix()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownListing, job.ListingKey)
		}
		return NewRetryableError(fmt.Errorf("failed to record primary build: %w", err))
	}

	w.logger.Info("Primary image built",
		slog.String("listing_key", job.ListingKey),
		slog.String("object_key", key),
	)

	return nil
}

// buildGallery resizes up to job.Count photos and records how many exist.
func (w *Worker) buildGallery(ctx context.Context, job assets.ImageBuildJob, rec *listing.Record) error {
	n := job.Count
	if n > len(rec.PhotoURLs) {
		n = len(rec.PhotoURLs)
	}

	for i := 0; i < n; i++ {
		data, err := w.builder.Build(ctx, rec.PhotoURLs[i], job.Width)
		if err != nil {
			return fmt.Errorf("gallery image %d: %w", i, err)
		}

		key := assets.ObjectKey(assets.KindGallery, job.ListingKey, job.Width, i)
		if err := w.objects.Upload(ctx, key, bytes.NewReader(data), "image/jpeg"); err != nil {
			return NewRetryableError(fmt.Errorf("failed to upload %s: %w", key, err))
		}
	}

	if err := w.store.MarkGalleryBuilt(ctx, job.ListingKey, n, w.now().Unix()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownListing, job.ListingKey)
		}
		return NewRetryableError(fmt.Errorf("failed to record gallery build: %w", err))
	}

	w.logger.Info("Gallery images built",
		slog.String("listing_key", job.ListingKey),
		slog.Int("count", n),
	)

	return nil
}
