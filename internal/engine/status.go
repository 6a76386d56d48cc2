package engine

import (
	"time"

	"github.com/230701390/feedr/internal/models"
)

// Status is a listing's derived state. It is never persisted: it is a pure
// function of (now, expiresAt, isClaimed).
type Status string

const (
	StatusActive  Status = "active"
	StatusClaimed Status = "claimed"
	StatusExpired Status = "expired"
)

// Classify derives a listing's status at the given instant. Claimed takes
// precedence over Expired: a listing claimed before expiry stays Claimed even
// after its expiry time passes.
func Classify(l models.FoodListing, now time.Time) Status {
	if l.IsClaimed {
		return StatusClaimed
	}
	if now.After(l.ExpiresAt) {
		return StatusExpired
	}
	return StatusActive
}

// ActiveListings returns the listings that are neither claimed nor expired at
// the given instant, preserving input order.
func ActiveListings(all []models.FoodListing, now time.Time) []models.FoodListing {
	active := make([]models.FoodListing, 0, len(all))
	for _, l := range all {
		if Classify(l, now) == StatusActive {
			active = append(active, l)
		}
	}
	return active
}

// ListingView pairs a listing with its derived status for display.
type ListingView struct {
	models.FoodListing
	Status Status `json:"status"`
}

// WithStatus annotates each listing with its status at the given instant.
func WithStatus(all []models.FoodListing, now time.Time) []ListingView {
	views := make([]ListingView, len(all))
	for i, l := range all {
		views[i] = ListingView{FoodListing: l, Status: Classify(l, now)}
	}
	return views
}
