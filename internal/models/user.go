package models

import (
	"time"

	"github.com/230701390/feedr/internal/geo"
)

// Role defines what a user can do on the platform.
type Role string

const (
	RoleDonor    Role = "donor"
	RoleReceiver Role = "receiver"
	RoleAdmin    Role = "admin"
)

// ValidRole reports whether r is one of the three known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleDonor, RoleReceiver, RoleAdmin:
		return true
	}
	return false
}

// Address is a structured postal address. Street2 is optional.
type Address struct {
	Street1 string `bson:"street1" json:"street1"`
	Street2 string `bson:"street2,omitempty" json:"street2,omitempty"`
	City    string `bson:"city" json:"city"`
	Pincode string `bson:"pincode" json:"pincode"`
}

// User represents a registered user. Role is fixed at registration; Points
// accrue only for donors and never decrease.
type User struct {
	Base         `bson:",inline"`
	Name         string           `bson:"name" json:"name"`
	Email        string           `bson:"email" json:"email"`
	Mobile       string           `bson:"mobile" json:"mobile"`
	PasswordHash string           `bson:"password" json:"-"` // Store hash, not plaintext
	Role         Role             `bson:"role" json:"role"`
	Points       *int             `bson:"points,omitempty" json:"points,omitempty"` // Donors only
	Address      *Address         `bson:"address,omitempty" json:"address,omitempty"`
	Location     *geo.Coordinates `bson:"location,omitempty" json:"location,omitempty"`
	CreatedAt    time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at" json:"updated_at"`
}

// PointsValue returns the accrued points, treating an unset counter as zero.
func (u *User) PointsValue() int {
	if u.Points == nil {
		return 0
	}
	return *u.Points
}

// AddPoints increments the points counter, initializing it if needed.
func (u *User) AddPoints(n int) {
	total := u.PointsValue() + n
	u.Points = &total
}
