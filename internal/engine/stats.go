package engine

import (
	"time"

	"github.com/230701390/feedr/internal/models"
)

// Stats is the aggregate admin dashboard view.
type Stats struct {
	TotalUsers      int `json:"total_users"`
	Donors          int `json:"donors"`
	Receivers       int `json:"receivers"`
	Admins          int `json:"admins"`
	TotalListings   int `json:"total_listings"`
	ActiveListings  int `json:"active_listings"`
	ClaimedListings int `json:"claimed_listings"`
	ExpiredListings int `json:"expired_listings"`
	// SuccessRatePct is claimed/total as an integer percentage, rounded
	// down. Zero listings yield zero, not a division error.
	SuccessRatePct int `json:"success_rate_pct"`
}

// DashboardStats computes the aggregate counts over both collections at the
// given instant. Pure.
func DashboardStats(listings []models.FoodListing, users []models.User, now time.Time) Stats {
	st := Stats{
		TotalUsers:    len(users),
		TotalListings: len(listings),
	}

	for _, u := range users {
		switch u.Role {
		case models.RoleDonor:
			st.Donors++
		case models.RoleReceiver:
			st.Receivers++
		case models.RoleAdmin:
			st.Admins++
		}
	}

	for _, l := range listings {
		switch Classify(l, now) {
		case StatusActive:
			st.ActiveListings++
		case StatusClaimed:
			st.ClaimedListings++
		case StatusExpired:
			st.ExpiredListings++
		}
	}

	total := st.TotalListings
	if total < 1 {
		total = 1
	}
	st.SuccessRatePct = st.ClaimedListings * 100 / total

	return st
}
