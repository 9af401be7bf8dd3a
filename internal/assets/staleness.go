package assets

import "github.com/carlito03/rets/internal/listing"

// Stale reports whether a listing's derived images lag its source photos.
// A record that never completed a build is always stale; after that the
// photo change timestamp decides. Equal timestamps count as fresh.
func Stale(rec *listing.Record) bool {
	if rec.CdnPrimary400 == "" || rec.ImagesUpdatedAt == 0 {
		return true
	}

	return rec.PhotosChangeTimestamp > rec.ImagesUpdatedAt
}
