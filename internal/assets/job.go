package assets

import (
	"fmt"

	"github.com/carlito03/rets/internal/listing"
)

// Job kinds understood by the image build worker.
const (
	KindPrimary = "primary"
	KindGallery = "gallery"
)

// ImageBuildJob asks the worker to rebuild one kind of derivative for one
// listing. Count is how many images the kind covers: always 1 for primary,
// the gallery length otherwise.
type ImageBuildJob struct {
	Kind       string `json:"kind"`
	ListingKey string `json:"listing_key"`
	Width      int    `json:"width"`
	Count      int    `json:"count"`
}

// JobsFor expands one stale record into its rebuild jobs: a primary job,
// plus a gallery job when the listing has more than the primary photo.
// Records without photos expand to nothing; there is nothing to build.
func JobsFor(rec *listing.Record, width, galleryMax int) []ImageBuildJob {
	if !rec.HasPhotos() {
		return nil
	}

	jobs := []ImageBuildJob{{
		Kind:       KindPrimary,
		ListingKey: rec.ListingKey,
		Width:      width,
		Count:      1,
	}}

	gallery := len(rec.PhotoURLs)
	if gallery == 0 {
		gallery = rec.PhotosCount
	}
	if galleryMax > 0 && gallery > galleryMax {
		gallery = galleryMax
	}
	if gallery > 1 {
		jobs = append(jobs, ImageBuildJob{
			Kind:       KindGallery,
			ListingKey: rec.ListingKey,
			Width:      width,
			Count:      gallery,
		})
	}

	return jobs
}

// ObjectKey is the storage key of one derived image. Index is zero based;
// the primary derivative is always index 0. The resolver and the worker
// must agree on this layout, so it lives in one place.
func ObjectKey(kind, listingKey string, width, index int) string {
	return fmt.Sprintf("listings/%s/%s_%d_%d.jpg", listingKey, kind, width, index)
}
