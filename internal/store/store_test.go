package store

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlito03/rets/internal/listing"
)

// testStore connects to the database named by LISTINGS_TEST_DB_DSN and
// starts from an empty listings table. Without the variable the test is
// skipped, so the suite stays runnable on machines without PostgreSQL.
func testStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("LISTINGS_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("LISTINGS_TEST_DB_DSN not set, skipping database tests")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := &Store{db: db}
	require.NoError(t, st.EnsureSchema(context.Background()))

	_, err = db.Exec("TRUNCATE listings")
	require.NoError(t, err)

	return st
}

func sampleRecord(key string, modEpoch int64) *listing.Record {
	addr := "2204 Rio Grande St, Austin, TX 78705"
	lat := 30.2849
	lng := -97.7443

	return &listing.Record{
		ListingKey:      key,
		CityNorm:        "austin",
		ModEpoch:        modEpoch,
		StandardStatus:  listing.StatusActive,
		ListPrice:       550000,
		BedroomsTotal:   3,
		BathroomsTotal:  2,
		LivingArea:      1850,
		YearBuilt:       1998,
		PropertyType:    "Residential",
		PropertySubType: "SingleFamilyResidence",

		City:            "Austin",
		StateOrProvince: "TX",
		PostalCode:      "78705",
		UnparsedAddress: &addr,
		Latitude:        &lat,
		Longitude:       &lng,
		PublicRemarks:   "Updated bungalow close to campus.",
		ListOfficeName:  "O'Brien Realty",

		SpecialListingConditions: []string{"Standard"},
		PhotoURLs:                []string{"https://photos.example.com/a.jpg", "https://photos.example.com/b.jpg"},
		PhotosCount:              2,

		LastSeenAt:            modEpoch + 100,
		PhotosChangeTimestamp: modEpoch,
	}
}

func TestUpsert_ReplayIsSkipped(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	rec := sampleRecord("TX-1001", 1000)

	outcome, err := st.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, outcome)

	// Replaying the identical record must be accepted but change nothing.
	outcome, err = st.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	got, err := st.GetByKey(ctx, "TX-1001")
	require.NoError(t, err)
	assert.Equal(t, rec.ListPrice, got.ListPrice)
	assert.Equal(t, rec.PhotoURLs, got.PhotoURLs)
	assert.Equal(t, rec.SpecialListingConditions, got.SpecialListingConditions)
	require.NotNil(t, got.UnparsedAddress)
	assert.Equal(t, *rec.UnparsedAddress, *got.UnparsedAddress)
}

func TestUpsert_OlderVersionNeverRegresses(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	current := sampleRecord("TX-1002", 2000)
	current.ListPrice = 600000

	_, err := st.Upsert(ctx, current)
	require.NoError(t, err)

	stale := sampleRecord("TX-1002", 1500)
	stale.ListPrice = 111111

	outcome, err := st.Upsert(ctx, stale)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	got, err := st.GetByKey(ctx, "TX-1002")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.ModEpoch)
	assert.Equal(t, float64(600000), got.ListPrice)
}

func TestUpsert_NewerVersionReplaces(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	_, err := st.Upsert(ctx, sampleRecord("TX-1003", 1000))
	require.NoError(t, err)

	updated := sampleRecord("TX-1003", 1500)
	updated.StandardStatus = listing.StatusPending
	updated.ListPrice = 525000

	outcome, err := st.Upsert(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, outcome)

	got, err := st.GetByKey(ctx, "TX-1003")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.ModEpoch)
	assert.Equal(t, listing.StatusPending, got.StandardStatus)
	assert.Equal(t, float64(525000), got.ListPrice)
}

func TestUpsert_PreservesImageBookkeeping(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	_, err := st.Upsert(ctx, sampleRecord("TX-1004", 1000))
	require.NoError(t, err)

	require.NoError(t, st.MarkPrimaryBuilt(ctx, "TX-1004", "https://cdn.example.com/listings/TX-1004/primary_400_0.jpg", 4200))
	require.NoError(t, st.MarkGalleryBuilt(ctx, "TX-1004", 5, 4242))

	// A newer ingest version carries no image bookkeeping of its own.
	updated := sampleRecord("TX-1004", 2000)

	outcome, err := st.Upsert(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, OutcomeWritten, outcome)

	got, err := st.GetByKey(ctx, "TX-1004")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.ModEpoch)
	assert.Equal(t, "https://cdn.example.com/listings/TX-1004/primary_400_0.jpg", got.CdnPrimary400)
	assert.Equal(t, 5, got.Gallery400Count)
	assert.Equal(t, int64(4242), got.ImagesUpdatedAt)
}

func TestQueryByCity_PaginatesWithCursor(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		rec := sampleRecord(fmt.Sprintf("TX-2%03d", i), int64(1000+i))
		_, err := st.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	var seen []string
	cursor := ""
	pages := 0
	for {
		decoded, err := DecodeCursor(cursor)
		require.NoError(t, err)

		records, next, err := st.QueryByCity(ctx, ListingFilter{
			CityNorm: "austin",
			PageSize: 2,
			Cursor:   decoded,
		})
		require.NoError(t, err)

		for _, rec := range records {
			seen = append(seen, rec.ListingKey)
		}
		pages++

		if next == "" {
			break
		}
		cursor = next
	}

	assert.Equal(t, 3, pages)
	// Newest modification first, no overlap between pages.
	assert.Equal(t, []string{"TX-2005", "TX-2004", "TX-2003", "TX-2002", "TX-2001"}, seen)
}

func TestQueryByCity_TieBreaksOnListingKey(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for _, key := range []string{"TX-3001", "TX-3002", "TX-3003"} {
		rec := sampleRecord(key, 5000)
		_, err := st.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	firstPage, next, err := st.QueryByCity(ctx, ListingFilter{CityNorm: "austin", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, firstPage, 2)
	require.NotEmpty(t, next)
	assert.Equal(t, "TX-3003", firstPage[0].ListingKey)
	assert.Equal(t, "TX-3002", firstPage[1].ListingKey)

	decoded, err := DecodeCursor(next)
	require.NoError(t, err)

	secondPage, next, err := st.QueryByCity(ctx, ListingFilter{CityNorm: "austin", PageSize: 2, Cursor: decoded})
	require.NoError(t, err)
	require.Len(t, secondPage, 1)
	assert.Equal(t, "TX-3001", secondPage[0].ListingKey)
	assert.Empty(t, next)
}

func TestQueryByCity_Filters(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	active := sampleRecord("TX-4001", 1000)
	pending := sampleRecord("TX-4002", 1001)
	pending.StandardStatus = listing.StatusPending
	condo := sampleRecord("TX-4003", 1002)
	condo.PropertyType = "Residential Lease"

	for _, rec := range []*listing.Record{active, pending, condo} {
		_, err := st.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	records, _, err := st.QueryByCity(ctx, ListingFilter{CityNorm: "austin", Status: listing.StatusPending})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "TX-4002", records[0].ListingKey)

	records, _, err = st.QueryByCity(ctx, ListingFilter{CityNorm: "austin", Status: listing.StatusActive, PropertyType: "Residential"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "TX-4001", records[0].ListingKey)
}

func TestGetByKey_NotFound(t *testing.T) {
	st := testStore(t)

	_, err := st.GetByKey(context.Background(), "TX-9999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkBuilt_NotFound(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	err := st.MarkPrimaryBuilt(ctx, "TX-9999", "https://cdn.example.com/x.jpg", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.MarkGalleryBuilt(ctx, "TX-9999", 1, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
