package geo

import (
	"math"
	"sort"
)

// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
const EarthRadiusKm = 6371

// DefaultMaxDistanceKm bounds proximity filtering when the caller does not
// supply a radius.
const DefaultMaxDistanceKm = 10

// Coordinates is a geographic point in decimal degrees.
type Coordinates struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

// DistanceKm returns the great-circle distance between two coordinates in
// kilometers using the Haversine formula. It is symmetric and zero for equal
// inputs. NaN inputs propagate as NaN; callers must guard.
func DistanceKm(a, b Coordinates) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// Locatable is implemented by anything that may carry a coordinate.
type Locatable interface {
	Coords() *Coordinates
}

// Nearby returns the items within maxDistanceKm of origin, ascending by
// distance. Items without a coordinate are excluded. The sort is stable, so
// distance ties keep their input order. A non-positive maxDistanceKm falls
// back to DefaultMaxDistanceKm.
func Nearby[T Locatable](origin Coordinates, items []T, maxDistanceKm float64) []T {
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultMaxDistanceKm
	}

	type withDist struct {
		item T
		dist float64
	}

	within := make([]withDist, 0, len(items))
	for _, it := range items {
		c := it.Coords()
		if c == nil {
			continue
		}
		d := DistanceKm(origin, *c)
		if d <= maxDistanceKm {
			within = append(within, withDist{item: it, dist: d})
		}
	}

	sort.SliceStable(within, func(i, j int) bool {
		return within[i].dist < within[j].dist
	})

	result := make([]T, len(within))
	for i, wd := range within {
		result[i] = wd.item
	}
	return result
}
