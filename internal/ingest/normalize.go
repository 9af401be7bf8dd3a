package ingest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/carlito03/rets/internal/listing"
)

// Normalize converts one raw upstream record into the cached shape. Only
// whitelisted fields survive; whatever else the upstream sends is dropped
// here and nowhere else. A record without a ListingKey or a parseable
// ModificationTimestamp is rejected, since both drive the conditional
// write downstream.
func Normalize(raw map[string]any) (*listing.Record, error) {
	key := str(raw, "ListingKey")
	if key == "" {
		return nil, fmt.Errorf("record has no ListingKey")
	}

	modEpoch, err := timestamp(raw, "ModificationTimestamp")
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", key, err)
	}
	if modEpoch == 0 {
		return nil, fmt.Errorf("record %s has no ModificationTimestamp", key)
	}

	city := str(raw, "City")

	rec := &listing.Record{
		ListingKey:      key,
		CityNorm:        listing.NormalizeCity(city),
		ModEpoch:        modEpoch,
		StandardStatus:  str(raw, "StandardStatus"),
		ListPrice:       num(raw, "ListPrice"),
		BedroomsTotal:   integer(raw, "BedroomsTotal"),
		BathroomsTotal:  integer(raw, "BathroomsTotalInteger"),
		LivingArea:      integer(raw, "LivingArea"),
		YearBuilt:       integer(raw, "YearBuilt"),
		PropertyType:    str(raw, "PropertyType"),
		PropertySubType: str(raw, "PropertySubType"),

		City:            city,
		StateOrProvince: str(raw, "StateOrProvince"),
		PostalCode:      str(raw, "PostalCode"),
		PublicRemarks:   str(raw, "PublicRemarks"),
		ListOfficeName:  str(raw, "ListOfficeName"),

		SpecialListingConditions: strSlice(raw, "SpecialListingConditions"),
		PhotoURLs:                mediaURLs(raw),
		PhotosCount:              integer(raw, "PhotosCount"),
	}

	// Listings can forbid address display; the suppressed fields never
	// reach the cache at all.
	if flag(raw, "InternetAddressDisplayYN", true) {
		rec.UnparsedAddress = strPtr(raw, "UnparsedAddress")
		rec.Latitude = numPtr(raw, "Latitude")
		rec.Longitude = numPtr(raw, "Longitude")
	}

	// A photo timestamp that fails to parse is treated as absent rather
	// than poisoning the whole record.
	if photosEpoch, err := timestamp(raw, "PhotosChangeTimestamp"); err == nil {
		rec.PhotosChangeTimestamp = photosEpoch
	}

	return rec, nil
}

func str(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return strings.TrimSpace(v)
	}

	return ""
}

func strPtr(raw map[string]any, key string) *string {
	if v := str(raw, key); v != "" {
		return &v
	}

	return nil
}

func num(raw map[string]any, key string) float64 {
	if v, ok := raw[key].(float64); ok {
		return v
	}

	return 0
}

func numPtr(raw map[string]any, key string) *float64 {
	if v, ok := raw[key].(float64); ok {
		return &v
	}

	return nil
}

func integer(raw map[string]any, key string) int {
	return int(num(raw, key))
}

func flag(raw map[string]any, key string, def bool) bool {
	if v, ok := raw[key].(bool); ok {
		return v
	}

	return def
}

// strSlice always yields a non-nil slice; cached collections serialize as
// [] rather than null when the upstream omits them.
func strSlice(raw map[string]any, key string) []string {
	items, _ := raw[key].([]any)

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}

	return out
}

// timestamp parses an ISO-8601 field into epoch seconds. A missing or
// empty field is 0 without error; a present but unparseable one errors.
func timestamp(raw map[string]any, key string) (int64, error) {
	v, ok := raw[key]
	if !ok {
		return 0, nil
	}

	s, ok := v.(string)
	if !ok || s == "" {
		return 0, nil
	}

	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}

	return ts.Unix(), nil
}

// mediaURLs flattens the expanded Media entries into photo URLs ordered by
// the upstream's Order field. Entries without a URL are skipped, and the
// result is non-nil even when no Media survives.
func mediaURLs(raw map[string]any) []string {
	items, _ := raw["Media"].([]any)

	type entry struct {
		url   string
		order float64
	}

	entries := make([]entry, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		url, _ := m["MediaURL"].(string)
		if url == "" {
			continue
		}
		order, _ := m["Order"].(float64)
		entries = append(entries, entry{url: url, order: order})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].order < entries[j].order })

	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		urls = append(urls, e.url)
	}

	return urls
}
