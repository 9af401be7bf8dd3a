package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/carlito03/rets/internal/upstream"
)

// Scope describes one slice of the upstream to ingest: a city plus
// optional narrowing and a modification window. The zero time on either
// bound leaves that side of the window open.
type Scope struct {
	City             string
	Statuses         []string
	PropertyType     string
	SpecialCondition string
	ModifiedSince    time.Time
	ModifiedUntil    time.Time
}

// Describe renders the scope for logs and error messages.
func (s Scope) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "city=%q", s.City)
	if len(s.Statuses) > 0 {
		fmt.Fprintf(&sb, " statuses=%s", strings.Join(s.Statuses, ","))
	}
	if s.PropertyType != "" {
		fmt.Fprintf(&sb, " property_type=%q", s.PropertyType)
	}
	if s.SpecialCondition != "" {
		fmt.Fprintf(&sb, " special_condition=%q", s.SpecialCondition)
	}
	if !s.ModifiedSince.IsZero() {
		fmt.Fprintf(&sb, " since=%s", s.ModifiedSince.UTC().Format(time.RFC3339))
	}
	if !s.ModifiedUntil.IsZero() {
		fmt.Fprintf(&sb, " until=%s", s.ModifiedUntil.UTC().Format(time.RFC3339))
	}

	return sb.String()
}

// filter translates the scope into the upstream query grammar. The city
// match ignores case because upstream feeds disagree on capitalization.
func (s Scope) filter() upstream.Expr {
	parts := []upstream.Expr{upstream.EqFold("City", s.City)}

	if len(s.Statuses) > 0 {
		parts = append(parts, upstream.In("StandardStatus", s.Statuses...))
	}
	if s.PropertyType != "" {
		parts = append(parts, upstream.Eq("PropertyType", s.PropertyType))
	}
	if s.SpecialCondition != "" {
		parts = append(parts, upstream.AnyEq("SpecialListingConditions", s.SpecialCondition))
	}
	if !s.ModifiedSince.IsZero() {
		parts = append(parts, upstream.Ge("ModificationTimestamp", s.ModifiedSince))
	}
	if !s.ModifiedUntil.IsZero() {
		parts = append(parts, upstream.Lt("ModificationTimestamp", s.ModifiedUntil))
	}

	return upstream.And(parts...)
}
