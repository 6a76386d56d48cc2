package engine

import (
	"math"
	"sort"
	"strings"

	"github.com/230701390/feedr/internal/geo"
	"github.com/230701390/feedr/internal/models"
)

// SearchListings filters listings by a case-insensitive substring match
// across name, description, donor name, and address city. A blank or
// whitespace-only query returns the input unchanged. Matching is stable:
// input order is preserved.
func SearchListings(listings []models.FoodListing, query string) []models.FoodListing {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return listings
	}

	matched := make([]models.FoodListing, 0, len(listings))
	for _, l := range listings {
		if strings.Contains(strings.ToLower(l.Name), q) ||
			strings.Contains(strings.ToLower(l.Description), q) ||
			strings.Contains(strings.ToLower(l.DonorName), q) ||
			strings.Contains(strings.ToLower(l.Address.City), q) {
			matched = append(matched, l)
		}
	}
	return matched
}

// RankedListing is a listing annotated with its distance from an origin.
// DistanceKm is nil for listings without a coordinate.
type RankedListing struct {
	models.FoodListing
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// RankByDistance sorts listings by distance from origin, ascending. Listings
// without a coordinate are retained but sort after all located ones, keeping
// their relative order: their distance is treated as +Inf for comparison only
// and left unset on the result.
func RankByDistance(listings []models.FoodListing, origin geo.Coordinates) []RankedListing {
	ranked := make([]RankedListing, len(listings))
	for i, l := range listings {
		ranked[i] = RankedListing{FoodListing: l}
		if l.Location != nil {
			d := geo.DistanceKm(origin, *l.Location)
			ranked[i].DistanceKm = &d
		}
	}

	sortKey := func(r RankedListing) float64 {
		if r.DistanceKm == nil {
			return math.Inf(1)
		}
		return *r.DistanceKm
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return sortKey(ranked[i]) < sortKey(ranked[j])
	})
	return ranked
}
