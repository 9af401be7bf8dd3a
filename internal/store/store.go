package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/carlito03/rets/internal/listing"
	"github.com/carlito03/rets/shared/postgresql"
)

// ErrNotFound is returned when no listing exists for the requested key.
var ErrNotFound = errors.New("listing not found")

// Outcome reports what an upsert did with the incoming record.
type Outcome string

const (
	// OutcomeWritten means the row was inserted or replaced.
	OutcomeWritten Outcome = "written"
	// OutcomeSkipped means an equal or newer version was already cached, so
	// the row was left untouched.
	OutcomeSkipped Outcome = "skipped"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

const listingColumns = `
		listing_key, city_norm, mod_epoch, standard_status,
		list_price, bedrooms_total, bathrooms_total, living_area,
		year_built, property_type, property_sub_type, city,
		state_or_province, postal_code, unparsed_address, latitude,
		longitude, public_remarks, list_office_name, special_listing_conditions,
		photo_urls, photos_count, last_seen_at, photos_change_ts,
		images_updated_at, cdn_primary_400, gallery_400_count`

// Store persists normalized listings in PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// New creates a Store on the shared database client.
func New(pg *postgresql.Client) *Store {
	return &Store{
		db: pg.GetDB(),
	}
}

// EnsureSchema creates the listings table and its indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS listings (
			listing_key        TEXT PRIMARY KEY,
			city_norm          TEXT NOT NULL,
			mod_epoch          BIGINT NOT NULL,
			standard_status    TEXT NOT NULL DEFAULT '',
			list_price         DOUBLE PRECISION NOT NULL DEFAULT 0,
			bedrooms_total     INTEGER NOT NULL DEFAULT 0,
			bathrooms_total    INTEGER NOT NULL DEFAULT 0,
			living_area        INTEGER NOT NULL DEFAULT 0,
			year_built         INTEGER NOT NULL DEFAULT 0,
			property_type      TEXT NOT NULL DEFAULT '',
			property_sub_type  TEXT NOT NULL DEFAULT '',
			city               TEXT NOT NULL DEFAULT '',
			state_or_province  TEXT NOT NULL DEFAULT '',
			postal_code        TEXT NOT NULL DEFAULT '',
			unparsed_address   TEXT,
			latitude           DOUBLE PRECISION,
			longitude          DOUBLE PRECISION,
			public_remarks     TEXT NOT NULL DEFAULT '',
			list_office_name   TEXT NOT NULL DEFAULT '',

			special_listing_conditions TEXT[] NOT NULL DEFAULT '{}',
			photo_urls                 TEXT[] NOT NULL DEFAULT '{}',
			photos_count               INTEGER NOT NULL DEFAULT 0,

			last_seen_at     BIGINT NOT NULL DEFAULT 0,
			photos_change_ts BIGINT NOT NULL DEFAULT 0,

			images_updated_at BIGINT NOT NULL DEFAULT 0,
			cdn_primary_400   TEXT NOT NULL DEFAULT '',
			gallery_400_count INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_listings_city_mod
			ON listings (city_norm, mod_epoch DESC, listing_key DESC);
		CREATE INDEX IF NOT EXISTS idx_listings_city_status
			ON listings (city_norm, standard_status);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure listings schema: %w", err)
	}

	return nil
}

// Upsert writes the record unless the cached row already carries the same
// or a newer version. The gate is strict, so replaying a record reports
// skipped while staying a success for the caller. The image bookkeeping
// columns are owned by the build worker and are never written on update;
// a version bump must not erase already built derivatives.
func (s *Store) Upsert(ctx context.Context, rec *listing.Record) (Outcome, error) {
	query := `
		INSERT INTO listings (
			listing_key, city_norm, mod_epoch, standard_status,
			list_price, bedrooms_total, bathrooms_total, living_area,
			year_built, property_type, property_sub_type, city,
			state_or_province, postal_code, unparsed_address, latitude,
			longitude, public_remarks, list_office_name, special_listing_conditions,
			photo_urls, photos_count, last_seen_at, photos_change_ts,
			images_updated_at, cdn_primary_400, gallery_400_count
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22, $23, $24,
			$25, $26, $27
		)
		ON CONFLICT (listing_key) DO UPDATE SET
			city_norm = EXCLUDED.city_norm,
			mod_epoch = EXCLUDED.mod_epoch,
			standard_status = EXCLUDED.standard_status,
			list_price = EXCLUDED.list_price,
			bedrooms_total = EXCLUDED.bedrooms_total,
			bathrooms_total = EXCLUDED.bathrooms_total,
			living_area = EXCLUDED.living_area,
			year_built = EXCLUDED.year_built,
			property_type = EXCLUDED.property_type,
			property_sub_type = EXCLUDED.property_sub_type,
			city = EXCLUDED.city,
			state_or_province = EXCLUDED.state_or_province,
			postal_code = EXCLUDED.postal_code,
			unparsed_address = EXCLUDED.unparsed_address,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			public_remarks = EXCLUDED.public_remarks,
			list_office_name = EXCLUDED.list_office_name,
			special_listing_conditions = EXCLUDED.special_listing_conditions,
			photo_urls = EXCLUDED.photo_urls,
			photos_count = EXCLUDED.photos_count,
			last_seen_at = EXCLUDED.last_seen_at,
			photos_change_ts = EXCLUDED.photos_change_ts
		WHERE listings.mod_epoch < EXCLUDED.mod_epoch
		RETURNING listing_key
	`

	var key string
	err := s.db.QueryRowContext(
		ctx,
		query,
		rec.ListingKey,
		rec.CityNorm,
		rec.ModEpoch,
		rec.StandardStatus,
		rec.ListPrice,
		rec.BedroomsTotal,
		rec.BathroomsTotal,
		rec.LivingArea,
		rec.YearBuilt,
		rec.PropertyType,
		rec.PropertySubType,
		rec.City,
		rec.StateOrProvince,
		rec.PostalCode,
		rec.UnparsedAddress,
		rec.Latitude,
		rec.Longitude,
		rec.PublicRemarks,
		rec.ListOfficeName,
		pq.Array(rec.SpecialListingConditions),
		pq.Array(rec.PhotoURLs),
		rec.PhotosCount,
		rec.LastSeenAt,
		rec.PhotosChangeTimestamp,
		rec.ImagesUpdatedAt,
		rec.CdnPrimary400,
		rec.Gallery400Count,
	).Scan(&key)

	if errors.Is(err, sql.ErrNoRows) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to upsert listing %s: %w", rec.ListingKey, err)
	}

	return OutcomeWritten, nil
}

// ListingFilter narrows a city query. CityNorm is required; the rest is
// optional.
type ListingFilter struct {
	CityNorm     string
	Status       string
	PropertyType string
	PageSize     int
	Cursor       *Cursor
}

// QueryByCity returns one page of listings, newest modification first, plus
// the continuation token for the next page ("" when exhausted).
func (s *Store) QueryByCity(ctx context.Context, filter ListingFilter) ([]listing.Record, string, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE city_norm = $1
	`
	args := []interface{}{filter.CityNorm}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(" AND standard_status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.PropertyType != "" {
		query += fmt.Sprintf(" AND property_type = $%d", argIdx)
		args = append(args, filter.PropertyType)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (mod_epoch, listing_key) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.ModEpoch, filter.Cursor.ListingKey)
		argIdx += 2
	}

	// Order by mod_epoch DESC, listing_key DESC for consistent pagination
	query += " ORDER BY mod_epoch DESC, listing_key DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, pageSize+1)

	var rows []listingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, "", fmt.Errorf("failed to query listings: %w", err)
	}

	nextCursor := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		nextCursor = EncodeCursor(&Cursor{ModEpoch: last.ModEpoch, ListingKey: last.ListingKey})
	}

	records := make([]listing.Record, 0, len(rows))
	for i := range rows {
		records = append(records, *rows[i].toRecord())
	}

	return records, nextCursor, nil
}

// GetByKey returns a single listing or ErrNotFound.
func (s *Store) GetByKey(ctx context.Context, listingKey string) (*listing.Record, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE listing_key = $1
	`

	var row listingRow
	err := s.db.GetContext(ctx, &row, query, listingKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing %s: %w", listingKey, err)
	}

	return row.toRecord(), nil
}

// MarkPrimaryBuilt records a finished primary rebuild. Primary and gallery
// jobs land as separate messages, so each writes only its own column plus
// the shared freshness timestamp.
func (s *Store) MarkPrimaryBuilt(ctx context.Context, listingKey, cdnPrimary string, builtAt int64) error {
	query := `
		UPDATE listings
		SET cdn_primary_400 = $2,
			images_updated_at = $3
		WHERE listing_key = $1
	`

	return s.markBuilt(ctx, query, listingKey, cdnPrimary, builtAt)
}

// MarkGalleryBuilt records a finished gallery rebuild.
func (s *Store) MarkGalleryBuilt(ctx context.Context, listingKey string, galleryCount int, builtAt int64) error {
	query := `
		UPDATE listings
		SET gallery_400_count = $2,
			images_updated_at = $3
		WHERE listing_key = $1
	`

	return s.markBuilt(ctx, query, listingKey, galleryCount, builtAt)
}

func (s *Store) markBuilt(ctx context.Context, query, listingKey string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, append([]any{listingKey}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to record built images for %s: %w", listingKey, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
