package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/230701390/feedr/internal/geo"
)

// DefaultUnit is used when a listing is created without an explicit unit.
const DefaultUnit = "items"

// FoodListing represents a posted food donation. CreatedAt, ExpiresAt and the
// donor fields are immutable after creation; IsClaimed flips to true exactly
// once, together with ClaimedBy.
type FoodListing struct {
	Base        `bson:",inline"`
	Name        string           `bson:"name" json:"name"`
	Description string           `bson:"description" json:"description"`
	Quantity    int              `bson:"quantity" json:"quantity"`
	Unit        string           `bson:"unit" json:"unit"`
	CreatedAt   time.Time        `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time        `bson:"expires_at" json:"expires_at"`
	DonorID     uuid.UUID        `bson:"donor_id" json:"donor_id"`
	DonorName   string           `bson:"donor_name" json:"donor_name"`
	Location    *geo.Coordinates `bson:"location,omitempty" json:"location,omitempty"`
	Address     Address          `bson:"address" json:"address"`
	ImageURL    string           `bson:"image_url" json:"image_url"`
	IsClaimed   bool             `bson:"is_claimed" json:"is_claimed"`
	ClaimedBy   *uuid.UUID       `bson:"claimed_by,omitempty" json:"claimed_by,omitempty"`
}

// Coords implements geo.Locatable.
func (l FoodListing) Coords() *geo.Coordinates {
	return l.Location
}
