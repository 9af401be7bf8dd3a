package assets

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/carlito03/rets/internal/listing"
)

const defaultLookupLimit = 8

// ObjectChecker is the slice of the object store the resolver needs.
type ObjectChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

// Gallery is the decorated image set for one listing. Empty URLs mean no
// derivative is available yet.
type Gallery struct {
	PrimaryURL  string   `json:"primary_url"`
	GalleryURLs []string `json:"gallery_urls,omitempty"`
}

// Resolver turns image bookkeeping into serveable URLs. Listings whose
// build state is recorded resolve without I/O. The rest fall back to
// probing the object store for a derivative left behind by a build whose
// bookkeeping write was lost; those probes run concurrently but bounded, so
// a large result page cannot stampede the store.
type Resolver struct {
	objects ObjectChecker
	logger  *slog.Logger

	width       int
	lookupLimit int
}

// NewResolver creates a resolver for derivatives of the given width.
func NewResolver(objects ObjectChecker, width, lookupLimit int, logger *slog.Logger) *Resolver {
	if width <= 0 {
		width = defaultJobWidth
	}
	if lookupLimit <= 0 {
		lookupLimit = defaultLookupLimit
	}

	return &Resolver{
		objects:     objects,
		logger:      logger,
		width:       width,
		lookupLimit: lookupLimit,
	}
}

// Resolve returns one gallery per input record, in input order. Probe
// failures degrade to an empty gallery for that listing; a search response
// never fails because the object store hiccuped.
func (r *Resolver) Resolve(ctx context.Context, records []listing.Record) []Gallery {
	galleries := make([]Gallery, len(records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.lookupLimit)

	for i := range records {
		i := i
		rec := &records[i]

		if rec.CdnPrimary400 != "" {
			galleries[i] = r.fromBookkeeping(rec)
			continue
		}
		if !rec.HasPhotos() {
			continue
		}

		g.Go(func() error {
			key := ObjectKey(KindPrimary, rec.ListingKey, r.width, 0)

			ok, err := r.objects.Exists(ctx, key)
			if err != nil {
				r.logger.Warn("Failed to probe derived image",
					slog.String("listing_key", rec.ListingKey),
					slog.Any("error", err),
				)
				return nil
			}
			if ok {
				galleries[i] = Gallery{PrimaryURL: r.objects.PublicURL(key)}
			}

			return nil
		})
	}

	_ = g.Wait()

	return galleries
}

func (r *Resolver) fromBookkeeping(rec *listing.Record) Gallery {
	gallery := Gallery{PrimaryURL: rec.CdnPrimary400}
	for i := 0; i < rec.Gallery400Count; i++ {
		gallery.GalleryURLs = append(gallery.GalleryURLs, r.objects.PublicURL(ObjectKey(KindGallery, rec.ListingKey, r.width, i)))
	}

	return gallery
}
