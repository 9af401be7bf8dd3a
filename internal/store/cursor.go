package store

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Cursor marks a position in the (mod_epoch, listing_key) descending order
// used by listing queries. Clients only ever see its encoded form.
type Cursor struct {
	ModEpoch   int64
	ListingKey string
}

// EncodeCursor renders an opaque continuation token. A nil cursor encodes
// to the empty string.
func EncodeCursor(c *Cursor) string {
	if c == nil {
		return ""
	}

	raw := fmt.Sprintf("%d|%s", c.ModEpoch, c.ListingKey)

	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token
// decodes to nil, meaning the first page.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var modEpoch int64
	if _, err := fmt.Sscanf(parts[0], "%d", &modEpoch); err != nil {
		return nil, fmt.Errorf("invalid mod epoch in cursor: %w", err)
	}

	return &Cursor{ModEpoch: modEpoch, ListingKey: parts[1]}, nil
}
