package dto

// ListListingsRequest carries the query parameters for listing searches
type ListListingsRequest struct {
	City         string `form:"city" binding:"required"`
	Status       string `form:"status"`
	PropertyType string `form:"property_type"`
	PageSize     int    `form:"page_size"`
	Cursor       string `form:"cursor"`
}

// ListingImagesDTO carries the CDN derivative set for one listing. Empty
// fields mean the derivative has not been built yet.
type ListingImagesDTO struct {
	PrimaryURL  string   `json:"primary_url"`
	GalleryURLs []string `json:"gallery_urls"`
}

// ListingDTO is the API representation of a cached listing
type ListingDTO struct {
	ListingKey      string   `json:"listing_key"`
	City            string   `json:"city"`
	StateOrProvince string   `json:"state_or_province"`
	PostalCode      string   `json:"postal_code"`
	UnparsedAddress *string  `json:"unparsed_address"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`

	StandardStatus  string  `json:"standard_status"`
	ListPrice       float64 `json:"list_price"`
	BedroomsTotal   int     `json:"bedrooms_total"`
	BathroomsTotal  int     `json:"bathrooms_total"`
	LivingArea      int     `json:"living_area"`
	YearBuilt       int     `json:"year_built"`
	PropertyType    string  `json:"property_type"`
	PropertySubType string  `json:"property_sub_type"`
	PublicRemarks   string  `json:"public_remarks"`
	ListOfficeName  string  `json:"list_office_name"`

	SpecialListingConditions []string `json:"special_listing_conditions"`
	PhotosCount              int      `json:"photos_count"`
	ModifiedAt               string   `json:"modified_at"`

	Images ListingImagesDTO `json:"images"`
}

// ListListingsResponse is the paginated search response
type ListListingsResponse struct {
	Listings   []ListingDTO `json:"listings"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// IngestRequest carries the parameters for a manual ingest trigger
type IngestRequest struct {
	City               string   `json:"city" binding:"required"`
	Statuses           []string `json:"statuses"`
	PropertyType       string   `json:"property_type"`
	SpecialCondition   string   `json:"special_condition"`
	ModifiedSinceHours int      `json:"modified_since_hours"`
}

// IngestResponse reports what one ingest pass did
type IngestResponse struct {
	Fetched int `json:"fetched"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`
	Dropped int `json:"dropped"`
}
