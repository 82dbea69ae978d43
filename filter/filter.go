package filter

import (
	"fmt"
	"sort"
	"strings"

	"apartments-bot/models"
)

// SortField names a listing column the snapshot can be ordered by
type SortField string

const (
	SortDefault  SortField = ""
	SortPrice    SortField = "price"
	SortSqMeters SortField = "sqMeters"
)

// SortOrder is the direction of a sort
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Filter restricts a snapshot query. Zero values match everything.
type Filter struct {
	RoomsCount  *int
	ProjectName string
}

// Sort orders a snapshot query. The zero value keeps the stored order,
// most recently stored first.
type Sort struct {
	Field SortField
	Order SortOrder
}

// Rooms returns a filter on the number of rooms
func Rooms(n int) Filter {
	return Filter{RoomsCount: &n}
}

// Matches reports whether a listing passes the filter
func (f Filter) Matches(listing models.Listing) bool {
	if f.RoomsCount != nil && listing.RoomsCount != *f.RoomsCount {
		return false
	}
	if f.ProjectName != "" && listing.ProjectName != f.ProjectName {
		return false
	}
	return true
}

// ParseSort validates user supplied sort parameters
func ParseSort(field, order string) (Sort, error) {
	var s Sort
	switch SortField(field) {
	case SortDefault, SortPrice, SortSqMeters:
		s.Field = SortField(field)
	default:
		return Sort{}, fmt.Errorf("unknown sort field %q", field)
	}

	switch SortOrder(strings.ToLower(order)) {
	case "", Asc:
		s.Order = Asc
	case Desc:
		s.Order = Desc
	default:
		return Sort{}, fmt.Errorf("unknown sort order %q", order)
	}
	return s, nil
}

// Column returns the SQL column backing the sort field, or "" for the default order
func (s Sort) Column() string {
	switch s.Field {
	case SortPrice:
		return "price"
	case SortSqMeters:
		return "sq_meters"
	}
	return ""
}

// Direction returns the SQL keyword for the sort order
func (s Sort) Direction() string {
	if s.Order == Desc {
		return "DESC"
	}
	return "ASC"
}

// Apply filters listings and orders them. Listings are expected in stored
// order; the default sort leaves that order untouched.
func Apply(listings []models.Listing, f Filter, s Sort) []models.Listing {
	filtered := make([]models.Listing, 0, len(listings))
	for _, listing := range listings {
		if f.Matches(listing) {
			filtered = append(filtered, listing)
		}
	}

	if s.Field == SortDefault {
		return filtered
	}

	key := func(l models.Listing) float64 {
		if s.Field == SortPrice {
			return l.Price
		}
		return l.SqMeters
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if s.Order == Desc {
			return key(filtered[i]) > key(filtered[j])
		}
		return key(filtered[i]) < key(filtered[j])
	})
	return filtered
}
