package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawRecord builds the map shape FetchAll produces, going through JSON so
// numbers arrive as float64 exactly like they do in production.
func rawRecord(t *testing.T, doc string) map[string]any {
	t.Helper()

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc), &raw))

	return raw
}

func TestNormalize_FullRecord(t *testing.T) {
	t.Parallel()

	raw := rawRecord(t, `{
		"ListingKey": "TX-552291",
		"ModificationTimestamp": "2024-05-01T12:30:00Z",
		"City": "  San  Diego ",
		"StandardStatus": "Active",
		"ListPrice": 550000.0,
		"BedroomsTotal": 3,
		"BathroomsTotalInteger": 2,
		"LivingArea": 1850,
		"YearBuilt": 1998,
		"PropertyType": "Residential",
		"PropertySubType": "SingleFamilyResidence",
		"StateOrProvince": "CA",
		"PostalCode": "92101",
		"UnparsedAddress": "742 Cedar St, San Diego, CA 92101",
		"Latitude": 32.7157,
		"Longitude": -117.1611,
		"PublicRemarks": "Craftsman near the park.",
		"ListOfficeName": "O'Brien Realty",
		"InternetAddressDisplayYN": true,
		"SpecialListingConditions": ["Standard"],
		"PhotosCount": 2,
		"PhotosChangeTimestamp": "2024-04-28T09:00:00Z",
		"Media": [
			{"MediaURL": "https://photos.example.com/2.jpg", "Order": 2},
			{"MediaURL": "https://photos.example.com/0.jpg", "Order": 0},
			{"MediaURL": "https://photos.example.com/1.jpg", "Order": 1}
		],
		"TaxAnnualAmount": 9100.50
	}`)

	rec, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, "TX-552291", rec.ListingKey)
	assert.Equal(t, "san diego", rec.CityNorm)
	assert.Equal(t, "San  Diego", rec.City)
	assert.Equal(t, int64(1714566600), rec.ModEpoch)
	assert.Equal(t, "Active", rec.StandardStatus)
	assert.Equal(t, 550000.0, rec.ListPrice)
	assert.Equal(t, 3, rec.BedroomsTotal)
	assert.Equal(t, 2, rec.BathroomsTotal)
	assert.Equal(t, 1850, rec.LivingArea)
	assert.Equal(t, 1998, rec.YearBuilt)
	assert.Equal(t, "Residential", rec.PropertyType)
	assert.Equal(t, "SingleFamilyResidence", rec.PropertySubType)
	assert.Equal(t, "CA", rec.StateOrProvince)
	assert.Equal(t, "92101", rec.PostalCode)
	assert.Equal(t, "O'Brien Realty", rec.ListOfficeName)
	assert.Equal(t, []string{"Standard"}, rec.SpecialListingConditions)
	assert.Equal(t, 2, rec.PhotosCount)
	assert.Equal(t, int64(1714294800), rec.PhotosChangeTimestamp)

	require.NotNil(t, rec.UnparsedAddress)
	assert.Equal(t, "742 Cedar St, San Diego, CA 92101", *rec.UnparsedAddress)
	require.NotNil(t, rec.Latitude)
	assert.Equal(t, 32.7157, *rec.Latitude)
	require.NotNil(t, rec.Longitude)
	assert.Equal(t, -117.1611, *rec.Longitude)

	// Media ordered by the upstream Order field, not arrival order.
	assert.Equal(t, []string{
		"https://photos.example.com/0.jpg",
		"https://photos.example.com/1.jpg",
		"https://photos.example.com/2.jpg",
	}, rec.PhotoURLs)
}

func TestNormalize_SuppressesAddressWhenDisplayForbidden(t *testing.T) {
	t.Parallel()

	raw := rawRecord(t, `{
		"ListingKey": "TX-1",
		"ModificationTimestamp": "2024-05-01T12:30:00Z",
		"City": "Austin",
		"UnparsedAddress": "11 Hidden Ln",
		"Latitude": 30.1,
		"Longitude": -97.9,
		"InternetAddressDisplayYN": false
	}`)

	rec, err := Normalize(raw)
	require.NoError(t, err)

	assert.Nil(t, rec.UnparsedAddress)
	assert.Nil(t, rec.Latitude)
	assert.Nil(t, rec.Longitude)
}

func TestNormalize_AddressAllowedWhenFlagAbsent(t *testing.T) {
	t.Parallel()

	raw := rawRecord(t, `{
		"ListingKey": "TX-1",
		"ModificationTimestamp": "2024-05-01T12:30:00Z",
		"UnparsedAddress": "500 Main St"
	}`)

	rec, err := Normalize(raw)
	require.NoError(t, err)

	require.NotNil(t, rec.UnparsedAddress)
	assert.Equal(t, "500 Main St", *rec.UnparsedAddress)
}

func TestNormalize_RejectsRecordsWithoutIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "missing listing key",
			doc:  `{"ModificationTimestamp": "2024-05-01T12:30:00Z"}`,
		},
		{
			name: "missing modification timestamp",
			doc:  `{"ListingKey": "TX-1"}`,
		},
		{
			name: "garbage modification timestamp",
			doc:  `{"ListingKey": "TX-1", "ModificationTimestamp": "05/01/2024"}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Normalize(rawRecord(t, tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestNormalize_ToleratesBadPhotosTimestamp(t *testing.T) {
	t.Parallel()

	raw := rawRecord(t, `{
		"ListingKey": "TX-1",
		"ModificationTimestamp": "2024-05-01T12:30:00Z",
		"PhotosChangeTimestamp": "yesterday"
	}`)

	rec, err := Normalize(raw)
	require.NoError(t, err)
	assert.Zero(t, rec.PhotosChangeTimestamp)
}

func TestNormalize_SkipsMediaWithoutURL(t *testing.T) {
	t.Parallel()

	raw := rawRecord(t, `{
		"ListingKey": "TX-1",
		"ModificationTimestamp": "2024-05-01T12:30:00Z",
		"Media": [
			{"Order": 0},
			{"MediaURL": "https://photos.example.com/a.jpg", "Order": 1},
			"not-an-object"
		]
	}`)

	rec, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://photos.example.com/a.jpg"}, rec.PhotoURLs)
}

func TestNormalize_CollectionsNeverNil(t *testing.T) {
	t.Parallel()

	raw := rawRecord(t, `{
		"ListingKey": "TX-1",
		"ModificationTimestamp": "2024-05-01T12:30:00Z"
	}`)

	rec, err := Normalize(raw)
	require.NoError(t, err)

	// Absent upstream collections serialize as [], never null.
	require.NotNil(t, rec.SpecialListingConditions)
	require.NotNil(t, rec.PhotoURLs)
	assert.Empty(t, rec.SpecialListingConditions)
	assert.Empty(t, rec.PhotoURLs)
}
