package store

import (
	"context"

	"github.com/230701390/feedr/internal/models"
)

// Store is the persistence boundary for the lifecycle engine. The contract is
// whole-collection read/replace: the engine always round-trips an entire
// collection, and implementations must make each Save an all-or-nothing
// replacement. Failures are reported as feederr.ErrPersistence wrappings.
type Store interface {
	LoadListings(ctx context.Context) ([]models.FoodListing, error)
	SaveListings(ctx context.Context, listings []models.FoodListing) error
	LoadUsers(ctx context.Context) ([]models.User, error)
	SaveUsers(ctx context.Context, users []models.User) error
}
