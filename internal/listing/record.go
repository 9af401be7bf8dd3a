package listing

import "strings"

// Standard status values carried by upstream records. The cache stores
// whatever status the upstream reports; these constants cover the values the
// ingestion scopes and route filters work with.
const (
	StatusActive              = "Active"
	StatusActiveUnderContract = "Active Under Contract"
	StatusPending             = "Pending"
	StatusClosed              = "Closed"
	StatusCanceled            = "Canceled"
	StatusExpired             = "Expired"
)

// Record is the canonical cached listing. The field set is closed: the
// normalizer maps a whitelisted subset of the upstream record into this shape
// and drops everything else.
type Record struct {
	// Key and derived index fields.
	ListingKey string `json:"listing_key"`
	CityNorm   string `json:"city_norm"`
	ModEpoch   int64  `json:"mod_epoch"`

	// Payload fields (upstream vocabulary).
	StandardStatus  string   `json:"standard_status"`
	ListPrice       float64  `json:"list_price"`
	BedroomsTotal   int      `json:"bedrooms_total"`
	BathroomsTotal  int      `json:"bathrooms_total"`
	LivingArea      int      `json:"living_area"`
	YearBuilt       int      `json:"year_built"`
	PropertyType    string   `json:"property_type"`
	PropertySubType string   `json:"property_sub_type"`
	City            string   `json:"city"`
	StateOrProvince string   `json:"state_or_province"`
	PostalCode      string   `json:"postal_code"`
	UnparsedAddress *string  `json:"unparsed_address"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	PublicRemarks   string   `json:"public_remarks"`
	ListOfficeName  string   `json:"list_office_name"`

	// Collection payload fields; empty slices when absent upstream, never nil.
	SpecialListingConditions []string `json:"special_listing_conditions"`
	PhotoURLs                []string `json:"photo_urls"`
	PhotosCount              int      `json:"photos_count"`

	// Bookkeeping fields. Epoch seconds; zero means "never".
	LastSeenAt            int64 `json:"last_seen_at"`
	PhotosChangeTimestamp int64 `json:"photos_change_timestamp"`

	// Image-build bookkeeping, owned by the image worker. The ingest upsert
	// never touches these columns on update.
	ImagesUpdatedAt int64  `json:"images_updated_at"`
	CdnPrimary400   string `json:"cdn_primary_400"`
	Gallery400Count int    `json:"gallery_400_count"`
}

// PrimaryPhotoURL returns the raw upstream URL of the primary photo, or ""
// when the record carries no photos.
func (r *Record) PrimaryPhotoURL() string {
	if len(r.PhotoURLs) == 0 {
		return ""
	}
	return r.PhotoURLs[0]
}

// HasPhotos reports whether the upstream record carries any photo references.
func (r *Record) HasPhotos() bool {
	return len(r.PhotoURLs) > 0 || r.PhotosCount > 0
}

// NormalizeCity lowercases and collapses whitespace so "San  Diego " and
// "san diego" land on the same cache rows. Both the normalizer and the read
// path derive CityNorm through here.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.Join(strings.Fields(city), " "))
}
