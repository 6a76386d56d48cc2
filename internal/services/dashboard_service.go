package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/230701390/feedr/internal/cache"
	"github.com/230701390/feedr/internal/engine"
	"github.com/230701390/feedr/internal/feederr"
	"github.com/230701390/feedr/internal/geo"
	"github.com/230701390/feedr/internal/models"
)

// Donor levels by accumulated points.
const (
	LevelBronze = "Bronze"
	LevelSilver = "Silver"
	LevelGold   = "Gold"

	silverThreshold = 50
	goldThreshold   = 100
)

// DonorDashboard is what a donor sees after login: their own listings with
// lifecycle status, their points and their level.
type DonorDashboard struct {
	Listings []engine.ListingView `json:"listings"`
	Points   int                  `json:"points"`
	Level    string               `json:"level"`
}

// ReceiverDashboard is the receiver's browse view: claimable listings ranked
// by distance when a location is known, plus the receiver's own claims.
type ReceiverDashboard struct {
	Available []engine.RankedListing `json:"available"`
	MyClaims  []engine.ListingView   `json:"my_claims"`
}

// BrowseQuery narrows the receiver's available listings. MaxDistanceKm is an
// opt-in radius filter; zero means rank everything without a cutoff.
type BrowseQuery struct {
	Search        string
	Origin        *geo.Coordinates
	MaxDistanceKm float64
}

// IDashboardService assembles the per-role dashboard views.
type IDashboardService interface {
	DonorView(ctx context.Context, donorID uuid.UUID) (*DonorDashboard, error)
	ReceiverView(ctx context.Context, receiverID uuid.UUID, query BrowseQuery) (*ReceiverDashboard, error)
	AdminView(ctx context.Context) (engine.Stats, error)
}

type dashboardService struct {
	engine     engine.IEngine
	statsCache *cache.StatsCache
}

// NewDashboardService creates a new DashboardService. statsCache may be nil.
func NewDashboardService(eng engine.IEngine, statsCache *cache.StatsCache) IDashboardService {
	return &dashboardService{engine: eng, statsCache: statsCache}
}

// DonorLevel maps accumulated points to a level name.
func DonorLevel(points int) string {
	switch {
	case points >= goldThreshold:
		return LevelGold
	case points >= silverThreshold:
		return LevelSilver
	default:
		return LevelBronze
	}
}

func (s *dashboardService) DonorView(ctx context.Context, donorID uuid.UUID) (*DonorDashboard, error) {
	users, err := s.engine.Users(ctx)
	if err != nil {
		return nil, err
	}
	var donor *models.User
	for i := range users {
		if users[i].ID == donorID {
			donor = &users[i]
			break
		}
	}
	if donor == nil {
		return nil, fmt.Errorf("%w: donor %s", feederr.ErrNotFound, donorID)
	}

	listings, err := s.engine.Listings(ctx)
	if err != nil {
		return nil, err
	}
	now := s.engine.Now()
	own := make([]models.FoodListing, 0)
	for _, l := range listings {
		if l.DonorID == donorID {
			own = append(own, l)
		}
	}

	points := donor.PointsValue()
	return &DonorDashboard{
		Listings: engine.WithStatus(own, now),
		Points:   points,
		Level:    DonorLevel(points),
	}, nil
}

func (s *dashboardService) ReceiverView(ctx context.Context, receiverID uuid.UUID, query BrowseQuery) (*ReceiverDashboard, error) {
	listings, err := s.engine.Listings(ctx)
	if err != nil {
		return nil, err
	}
	now := s.engine.Now()

	available := engine.ActiveListings(listings, now)
	available = engine.SearchListings(available, query.Search)

	var ranked []engine.RankedListing
	if query.Origin != nil {
		// Unlocated listings stay visible and sort last; a radius cutoff
		// only applies when the receiver asked for one.
		if query.MaxDistanceKm > 0 {
			available = geo.Nearby(*query.Origin, available, query.MaxDistanceKm)
		}
		ranked = engine.RankByDistance(available, *query.Origin)
	} else {
		// No origin: keep the browse order, distances unknown.
		ranked = make([]engine.RankedListing, len(available))
		for i, l := range available {
			ranked[i] = engine.RankedListing{FoodListing: l}
		}
	}

	claims := make([]models.FoodListing, 0)
	for _, l := range listings {
		if l.ClaimedBy != nil && *l.ClaimedBy == receiverID {
			claims = append(claims, l)
		}
	}

	return &ReceiverDashboard{
		Available: ranked,
		MyClaims:  engine.WithStatus(claims, now),
	}, nil
}

// AdminView returns the aggregate stats, served from the cache when fresh.
func (s *dashboardService) AdminView(ctx context.Context) (engine.Stats, error) {
	var cached engine.Stats
	if s.statsCache.Get(ctx, &cached) {
		return cached, nil
	}

	stats, err := s.engine.AdminStats(ctx)
	if err != nil {
		return engine.Stats{}, err
	}
	if err := s.statsCache.Set(ctx, stats); err != nil {
		log.Printf("Failed to cache admin stats: %v", err)
	}
	return stats, nil
}
