package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/230701390/feedr/internal/api/handlers"
	"github.com/230701390/feedr/internal/api/middleware"
	"github.com/230701390/feedr/internal/auth"
	"github.com/230701390/feedr/internal/config"
	"github.com/230701390/feedr/internal/engine"
	"github.com/230701390/feedr/internal/geo"
	"github.com/230701390/feedr/internal/models"
	"github.com/230701390/feedr/internal/services"
	"github.com/230701390/feedr/internal/store"
)

func setupTestRouter(cfg *config.Config, eng *engine.Engine, st *store.MemoryStore, taskClient handlers.IAsynqClient) *gin.Engine {
	gin.SetMode(gin.TestMode)

	userService := services.NewUserService(st, cfg)
	dashboardService := services.NewDashboardService(eng, nil)

	authHandler := handlers.NewAuthHandler(cfg, userService, taskClient, nil)
	listingHandler := handlers.NewListingHandler(cfg, eng, nil, taskClient, nil)
	dashboardHandler := handlers.NewDashboardHandler(cfg, dashboardService)
	adminHandler := handlers.NewAdminHandler(eng, userService, dashboardService)

	r := gin.New()
	v1 := r.Group("/v1")
	{
		v1.POST("/auth/register", authHandler.Register)
		v1.POST("/auth/login", authHandler.Login)
		v1.GET("/listings", listingHandler.SearchListings)
		v1.GET("/listings/:id", listingHandler.GetListingByID)

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			authRequired.GET("/profile", authHandler.Profile)
			authRequired.PUT("/profile", authHandler.UpdateProfile)
			authRequired.GET("/dashboard", dashboardHandler.Dashboard)
			authRequired.POST("/listings", middleware.RoleMiddleware(models.RoleDonor), listingHandler.CreateListing)
			authRequired.POST("/listings/:id/claim", middleware.RoleMiddleware(models.RoleReceiver), listingHandler.ClaimListing)
			authRequired.DELETE("/listings/:id", listingHandler.DeleteListing)
		}

		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.GET("/stats", adminHandler.Stats)
			adminRequired.GET("/users", adminHandler.ListUsers)
			adminRequired.GET("/listings", adminHandler.ListListings)
		}
	}
	return r
}

func bearerFor(t *testing.T, cfg *config.Config, u models.User) string {
	t.Helper()
	token, err := auth.GenerateJWT(u.ID, u.Role, cfg.JwtSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validListingBody() map[string]interface{} {
	return map[string]interface{}{
		"name":         "Vegetable biryani",
		"description":  "Fresh vegetable biryani, about twenty servings",
		"quantity":     20,
		"expiry_hours": 3,
		"image_url":    "https://img.example.com/biryani.jpg",
		"location":     geo.Coordinates{Latitude: 13.0, Longitude: 80.2},
	}
}

func TestCreateListingEndpoint(t *testing.T) {
	cfg := handlerConfig()
	eng, st := newTestEngine(cfg)
	donor := seedDonor()
	receiver := seedReceiver()
	st.Seed(nil, []models.User{donor, receiver})
	r := setupTestRouter(cfg, eng, st, nil)

	w := doJSON(r, http.MethodPost, "/v1/listings", bearerFor(t, cfg, donor), validListingBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.FoodListing
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, donor.ID, created.DonorID)
	assert.Equal(t, "items", created.Unit)

	// Receivers may not create listings.
	w = doJSON(r, http.MethodPost, "/v1/listings", bearerFor(t, cfg, receiver), validListingBody())
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Unauthenticated request is rejected.
	w = doJSON(r, http.MethodPost, "/v1/listings", "", validListingBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Validation failures surface as 400.
	bad := validListingBody()
	bad["description"] = "short"
	w = doJSON(r, http.MethodPost, "/v1/listings", bearerFor(t, cfg, donor), bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBrowseListingsEndpoint(t *testing.T) {
	cfg := handlerConfig()
	eng, st := newTestEngine(cfg)
	donor := seedDonor()
	st.Seed(nil, []models.User{donor})
	r := setupTestRouter(cfg, eng, st, nil)

	_, err := eng.CreateListing(context.Background(), engine.CreateListingInput{
		Name:        "Vegetable biryani",
		Description: "Fresh vegetable biryani, about twenty servings",
		Quantity:    20,
		ExpiryHours: 3,
		ImageURL:    "https://img.example.com/biryani.jpg",
		Location:    &geo.Coordinates{Latitude: 13.0, Longitude: 80.2},
	}, donor.ID)
	require.NoError(t, err)
	_, err = eng.CreateListing(context.Background(), engine.CreateListingInput{
		Name:        "Wheat rotis",
		Description: "Thirty rotis packed for pickup tonight",
		Quantity:    30,
		ExpiryHours: 2,
		ImageURL:    "https://img.example.com/roti.jpg",
		Location:    &geo.Coordinates{Latitude: 13.135, Longitude: 80.2},
	}, donor.ID)
	require.NoError(t, err)
	_, err = eng.CreateListing(context.Background(), engine.CreateListingInput{
		Name:        "Sambar rice",
		Description: "Five boxes of sambar rice, donor address withheld",
		Quantity:    5,
		ExpiryHours: 2,
		ImageURL:    "https://img.example.com/sambar.jpg",
	}, donor.ID)
	require.NoError(t, err)

	// Full browse.
	w := doJSON(r, http.MethodGet, "/v1/listings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []engine.RankedListing `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 3)

	// Text search.
	w = doJSON(r, http.MethodGet, "/v1/listings?q=roti", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp.Data = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Wheat rotis", resp.Data[0].Name)

	// Proximity ranks without dropping anything: the far listing and the
	// one without coordinates stay visible, the unlocated one last.
	w = doJSON(r, http.MethodGet, "/v1/listings?lat=13.0&lon=80.2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp.Data = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, "Vegetable biryani", resp.Data[0].Name)
	require.NotNil(t, resp.Data[0].DistanceKm)
	assert.Equal(t, "Wheat rotis", resp.Data[1].Name)
	require.NotNil(t, resp.Data[1].DistanceKm)
	assert.InDelta(t, 15, *resp.Data[1].DistanceKm, 1)
	assert.Equal(t, "Sambar rice", resp.Data[2].Name)
	assert.Nil(t, resp.Data[2].DistanceKm)

	// An explicit radius cuts the view down to listings in range.
	w = doJSON(r, http.MethodGet, "/v1/listings?lat=13.0&lon=80.2&dist_km=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp.Data = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "Vegetable biryani", resp.Data[0].Name)

	w = doJSON(r, http.MethodGet, "/v1/listings?lat=13.0&lon=80.2&dist_km=20", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp.Data = nil
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "Vegetable biryani", resp.Data[0].Name)
	assert.Equal(t, "Wheat rotis", resp.Data[1].Name)
}

func TestGetListingByIDEndpoint(t *testing.T) {
	cfg := handlerConfig()
	eng, st := newTestEngine(cfg)
	donor := seedDonor()
	st.Seed(nil, []models.User{donor})
	r := setupTestRouter(cfg, eng, st, nil)

	listing, err := eng.CreateListing(context.Background(), engine.CreateListingInput{
		Name:        "Vegetable biryani",
		Description: "Fresh vegetable biryani, about twenty servings",
		Quantity:    20,
		ExpiryHours: 3,
		ImageURL:    "https://img.example.com/biryani.jpg",
	}, donor.ID)
	require.NoError(t, err)

	w := doJSON(r, http.MethodGet, "/v1/listings/"+listing.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"active"`)

	w = doJSON(r, http.MethodGet, "/v1/listings/"+models.NewBase().ID.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodGet, "/v1/listings/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClaimListingEndpoint(t *testing.T) {
	cfg := handlerConfig()
	eng, st := newTestEngine(cfg)
	donor := seedDonor()
	receiver := seedReceiver()
	st.Seed(nil, []models.User{donor, receiver})

	mockClient := new(MockAsynqClient)
	mockClient.On("EnqueueContext", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	r := setupTestRouter(cfg, eng, st, mockClient)

	listing, err := eng.CreateListing(context.Background(), engine.CreateListingInput{
		Name:        "Vegetable biryani",
		Description: "Fresh vegetable biryani, about twenty servings",
		Quantity:    20,
		ExpiryHours: 3,
		ImageURL:    "https://img.example.com/biryani.jpg",
	}, donor.ID)
	require.NoError(t, err)

	// Donors cannot claim.
	w := doJSON(r, http.MethodPost, "/v1/listings/"+listing.ID.String()+"/claim", bearerFor(t, cfg, donor), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Receiver claims; donor notification enqueued.
	w = doJSON(r, http.MethodPost, "/v1/listings/"+listing.ID.String()+"/claim", bearerFor(t, cfg, receiver), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"donor_points":15`)
	mockClient.AssertNumberOfCalls(t, "EnqueueContext", 1)

	// Second claim conflicts.
	w = doJSON(r, http.MethodPost, "/v1/listings/"+listing.ID.String()+"/claim", bearerFor(t, cfg, receiver), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Unknown listing.
	w = doJSON(r, http.MethodPost, "/v1/listings/"+models.NewBase().ID.String()+"/claim", bearerFor(t, cfg, receiver), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClaimExpiredListingEndpoint(t *testing.T) {
	cfg := handlerConfig()
	eng, st := newTestEngine(cfg)
	donor := seedDonor()
	receiver := seedReceiver()
	st.Seed(nil, []models.User{donor, receiver})
	r := setupTestRouter(cfg, eng, st, nil)

	listing, err := eng.CreateListing(context.Background(), engine.CreateListingInput{
		Name:        "Vegetable biryani",
		Description: "Fresh vegetable biryani, about twenty servings",
		Quantity:    20,
		ExpiryHours: 1,
		ImageURL:    "https://img.example.com/biryani.jpg",
	}, donor.ID)
	require.NoError(t, err)

	eng.SetClock(func() time.Time { return handlerNow.Add(2 * time.Hour) })
	w := doJSON(r, http.MethodPost, "/v1/listings/"+listing.ID.String()+"/claim", bearerFor(t, cfg, receiver), nil)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestDeleteListingEndpoint(t *testing.T) {
	cfg := handlerConfig()
	eng, st := newTestEngine(cfg)
	donor := seedDonor()
	receiver := seedReceiver()
	st.Seed(nil, []models.User{donor, receiver})
	r := setupTestRouter(cfg, eng, st, nil)

	listing, err := eng.CreateListing(context.Background(), engine.CreateListingInput{
		Name:        "Vegetable biryani",
		Description: "Fresh vegetable biryani, about twenty servings",
		Quantity:    20,
		ExpiryHours: 3,
		ImageURL:    "https://img.example.com/biryani.jpg",
	}, donor.ID)
	require.NoError(t, err)

	// Non-owner gets 403 and the listing stays.
	w := doJSON(r, http.MethodDelete, "/v1/listings/"+listing.ID.String(), bearerFor(t, cfg, receiver), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodDelete, "/v1/listings/"+listing.ID.String(), bearerFor(t, cfg, donor), nil)
	require.Equal(t, http.StatusOK, w.Code)

	listings, err := st.LoadListings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listings)
}
