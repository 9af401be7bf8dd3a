package store

import (
	"github.com/lib/pq"

	"github.com/carlito03/rets/internal/listing"
)

// listingRow is the sqlx scan target for the listings table. It mirrors
// listing.Record with pq array wrappers for the TEXT[] columns.
type listingRow struct {
	ListingKey      string  `db:"listing_key"`
	CityNorm        string  `db:"city_norm"`
	ModEpoch        int64   `db:"mod_epoch"`
	StandardStatus  string  `db:"standard_status"`
	ListPrice       float64 `db:"list_price"`
	BedroomsTotal   int     `db:"bedrooms_total"`
	BathroomsTotal  int     `db:"bathrooms_total"`
	LivingArea      int     `db:"living_area"`
	YearBuilt       int     `db:"year_built"`
	PropertyType    string  `db:"property_type"`
	PropertySubType string  `db:"property_sub_type"`

	City            string   `db:"city"`
	StateOrProvince string   `db:"state_or_province"`
	PostalCode      string   `db:"postal_code"`
	UnparsedAddress *string  `db:"unparsed_address"`
	Latitude        *float64 `db:"latitude"`
	Longitude       *float64 `db:"longitude"`
	PublicRemarks   string   `db:"public_remarks"`
	ListOfficeName  string   `db:"list_office_name"`

	SpecialListingConditions pq.StringArray `db:"special_listing_conditions"`
	PhotoURLs                pq.StringArray `db:"photo_urls"`
	PhotosCount              int            `db:"photos_count"`

	LastSeenAt     int64 `db:"last_seen_at"`
	PhotosChangeTS int64 `db:"photos_change_ts"`

	ImagesUpdatedAt int64  `db:"images_updated_at"`
	CdnPrimary400   string `db:"cdn_primary_400"`
	Gallery400Count int    `db:"gallery_400_count"`
}

func (r *listingRow) toRecord() *listing.Record {
	rec := &listing.Record{
		ListingKey:      r.ListingKey,
		CityNorm:        r.CityNorm,
		ModEpoch:        r.ModEpoch,
		StandardStatus:  r.StandardStatus,
		ListPrice:       r.ListPrice,
		BedroomsTotal:   r.BedroomsTotal,
		BathroomsTotal:  r.BathroomsTotal,
		LivingArea:      r.LivingArea,
		YearBuilt:       r.YearBuilt,
		PropertyType:    r.PropertyType,
		PropertySubType: r.PropertySubType,

		City:            r.City,
		StateOrProvince: r.StateOrProvince,
		PostalCode:      r.PostalCode,
		UnparsedAddress: r.UnparsedAddress,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		PublicRemarks:   r.PublicRemarks,
		ListOfficeName:  r.ListOfficeName,

		SpecialListingConditions: []string(r.SpecialListingConditions),
		PhotoURLs:                []string(r.PhotoURLs),
		PhotosCount:              r.PhotosCount,

		LastSeenAt:            r.LastSeenAt,
		PhotosChangeTimestamp: r.PhotosChangeTS,

		ImagesUpdatedAt: r.ImagesUpdatedAt,
		CdnPrimary400:   r.CdnPrimary400,
		Gallery400Count: r.Gallery400Count,
	}

	// pq scans empty arrays to nil; keep the collections non-nil so they
	// serialize as [] all the way out.
	if rec.SpecialListingConditions == nil {
		rec.SpecialListingConditions = []string{}
	}
	if rec.PhotoURLs == nil {
		rec.PhotoURLs = []string{}
	}

	return rec
}
