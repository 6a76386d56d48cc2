package geo

import (
	"context"
	"fmt"

	"github.com/230701390/feedr/internal/feederr"
)

// LocationProvider acquires the caller's current coordinate from the host
// environment. Implementations may be slow (GPS/network latency) and must
// honor context cancellation; failures surface as ErrLocationUnavailable.
type LocationProvider interface {
	Current(ctx context.Context) (Coordinates, error)
}

// StaticProvider serves a fixed coordinate, typically seeded from
// configuration. With no coordinate configured it reports unavailability,
// which callers treat as a degraded (unranked) experience.
type StaticProvider struct {
	coords *Coordinates
}

// NewStaticProvider creates a StaticProvider. Pass nil to model an
// environment with no location access.
func NewStaticProvider(coords *Coordinates) *StaticProvider {
	return &StaticProvider{coords: coords}
}

// Current returns the configured coordinate or ErrLocationUnavailable.
func (p *StaticProvider) Current(ctx context.Context) (Coordinates, error) {
	select {
	case <-ctx.Done():
		return Coordinates{}, fmt.Errorf("%w: %v", feederr.ErrLocationUnavailable, ctx.Err())
	default:
	}
	if p.coords == nil {
		return Coordinates{}, fmt.Errorf("%w: no coordinate configured", feederr.ErrLocationUnavailable)
	}
	return *p.coords, nil
}
