package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/230701390/feedr/internal/api"
	"github.com/230701390/feedr/internal/config"
	"github.com/230701390/feedr/internal/engine"
	"github.com/230701390/feedr/internal/models"
	"github.com/230701390/feedr/internal/store"
)

func routerConfig() *config.Config {
	return &config.Config{
		JwtSecret:               "router-test-secret",
		JwtTTL:                  time.Hour,
		MinExpiryHours:          1,
		MaxExpiryHours:          5,
		PointsPerListing:        10,
		PointsPerClaim:          5,
		MinDescriptionLength:    10,
		DefaultMaxDistanceKm:    10,
		StatsCacheTTL:           time.Minute,
		RateLimitSoftBucketSize: 100,
		RateLimitSoftRefillRate: 100,
		RateLimitHardBucketSize: 100,
		RateLimitHardRefillRate: 100,
	}
}

// The router must serve requests off the engine it is handed, not a private
// one. The injected engine runs on a pinned clock in the past; a listing
// created under it reads as active, while any engine on the wall clock would
// call the same listing expired.
func TestSetupRouterServesInjectedEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := routerConfig()
	st := store.NewMemoryStore()

	zero := 0
	donor := models.User{
		Base:   models.NewBase(),
		Name:   "Asha",
		Email:  "asha@example.com",
		Role:   models.RoleDonor,
		Points: &zero,
		Address: &models.Address{
			Street1: "12 Mint Street",
			City:    "Chennai",
			Pincode: "600001",
		},
	}
	st.Seed(nil, []models.User{donor})

	eng := engine.NewEngine(st, cfg)
	pinned := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return pinned })

	listing, err := eng.CreateListing(context.Background(), engine.CreateListingInput{
		Name:        "Vegetable biryani",
		Description: "Fresh vegetable biryani, about twenty servings",
		Quantity:    20,
		ExpiryHours: 2,
		ImageURL:    "https://img.example.com/biryani.jpg",
	}, donor.ID)
	require.NoError(t, err)

	r := api.SetupRouter(cfg, eng, st, nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/listings/"+listing.ID.String(), nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"active"`)
}
