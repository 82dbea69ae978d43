package filter

import (
	"testing"

	"apartments-bot/models"

	"github.com/stretchr/testify/require"
)

var sample = []models.Listing{
	{ProjectName: "Strēlnieku", RoomsCount: 2, Price: 120000, SqMeters: 48.5, Plan: "A"},
	{ProjectName: "Jaunciems", RoomsCount: 3, Price: 98000, SqMeters: 71.2, Plan: "B"},
	{ProjectName: "Strēlnieku", RoomsCount: 3, Price: 150000, SqMeters: 66, Plan: "C"},
	{ProjectName: "Jaunciems", RoomsCount: 2, Price: 87000, SqMeters: 52, Plan: "D"},
}

func plans(listings []models.Listing) []string {
	var out []string
	for _, l := range listings {
		out = append(out, l.Plan)
	}
	return out
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		sort     Sort
		expected []string
	}{
		{"empty filter keeps stored order", Filter{}, Sort{}, []string{"A", "B", "C", "D"}},
		{"rooms equality", Rooms(3), Sort{}, []string{"B", "C"}},
		{"project equality", Filter{ProjectName: "Jaunciems"}, Sort{}, []string{"B", "D"}},
		{"rooms and project", Filter{RoomsCount: intPtr(2), ProjectName: "Strēlnieku"}, Sort{}, []string{"A"}},
		{"price ascending", Filter{}, Sort{Field: SortPrice, Order: Asc}, []string{"D", "B", "A", "C"}},
		{"price descending", Filter{}, Sort{Field: SortPrice, Order: Desc}, []string{"C", "A", "B", "D"}},
		{"area descending within rooms", Rooms(2), Sort{Field: SortSqMeters, Order: Desc}, []string{"D", "A"}},
		{"studio filter matches nothing", Rooms(0), Sort{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, plans(Apply(sample, tt.filter, tt.sort)))
		})
	}
}

func TestParseSort(t *testing.T) {
	s, err := ParseSort("price", "DESC")
	require.NoError(t, err)
	require.Equal(t, Sort{Field: SortPrice, Order: Desc}, s)
	require.Equal(t, "price", s.Column())
	require.Equal(t, "DESC", s.Direction())

	s, err = ParseSort("sqMeters", "")
	require.NoError(t, err)
	require.Equal(t, "sq_meters", s.Column())
	require.Equal(t, "ASC", s.Direction())

	_, err = ParseSort("price; DROP TABLE apartments", "asc")
	require.Error(t, err)

	_, err = ParseSort("price", "sideways")
	require.Error(t, err)
}

func intPtr(n int) *int { return &n }
