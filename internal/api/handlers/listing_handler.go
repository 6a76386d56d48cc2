package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/230701390/feedr/internal/cache"
	"github.com/230701390/feedr/internal/config"
	"github.com/230701390/feedr/internal/engine"
	"github.com/230701390/feedr/internal/geo"
	"github.com/230701390/feedr/internal/models"
	"github.com/230701390/feedr/internal/storage"
	"github.com/230701390/feedr/internal/tasks"
)

// ListingHandler handles listing browse, create, claim and delete.
type ListingHandler struct {
	cfg         *config.Config
	engine      engine.IEngine
	storage     storage.IS3Storage
	taskClient  IAsynqClient
	statsCache  *cache.StatsCache
	locProvider geo.LocationProvider
}

// NewListingHandler creates a new ListingHandler. The fallback location for
// requests without lat/lon comes from the deployment's configured default.
func NewListingHandler(cfg *config.Config, eng engine.IEngine, s3Storage storage.IS3Storage, taskClient IAsynqClient, statsCache *cache.StatsCache) *ListingHandler {
	var defaultCoords *geo.Coordinates
	if cfg.HasDefaultCoords {
		defaultCoords = &geo.Coordinates{Latitude: cfg.DefaultLatitude, Longitude: cfg.DefaultLongitude}
	}
	return &ListingHandler{
		cfg:         cfg,
		engine:      eng,
		storage:     s3Storage,
		taskClient:  taskClient,
		statsCache:  statsCache,
		locProvider: geo.NewStaticProvider(defaultCoords),
	}
}

// parseOrigin reads lat/lon query parameters into a coordinate, falling back
// to the deployment's configured default location.
func (h *ListingHandler) parseOrigin(c *gin.Context) *geo.Coordinates {
	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr != "" && lonStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if latErr == nil && lonErr == nil {
			return &geo.Coordinates{Latitude: lat, Longitude: lon}
		}
	}
	coords, err := h.locProvider.Current(c.Request.Context())
	if err != nil {
		// Location unavailable: the browse view degrades to unranked.
		return nil
	}
	return &coords
}

// SearchListings handles GET /v1/listings. Public browse: active listings
// only, optionally narrowed by a text query and ranked by distance when a
// location is available.
func (h *ListingHandler) SearchListings(c *gin.Context) {
	listings, err := h.engine.Listings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	now := h.engine.Now()
	active := engine.ActiveListings(listings, now)
	active = engine.SearchListings(active, c.Query("q"))

	origin := h.parseOrigin(c)
	var ranked []engine.RankedListing
	if origin != nil {
		// Every active listing stays in the ranked result, unlocated ones
		// last. The radius cutoff only applies when dist_km is supplied.
		if distStr := c.Query("dist_km"); distStr != "" {
			maxDist := h.cfg.DefaultMaxDistanceKm
			if d, err := strconv.ParseFloat(distStr, 64); err == nil && d > 0 {
				maxDist = d
			}
			active = geo.Nearby(*origin, active, maxDist)
		}
		ranked = engine.RankByDistance(active, *origin)
	} else {
		ranked = make([]engine.RankedListing, len(active))
		for i, l := range active {
			ranked[i] = engine.RankedListing{FoodListing: l}
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": ranked})
}

// GetListingByID handles GET /v1/listings/:id.
func (h *ListingHandler) GetListingByID(c *gin.Context) {
	listingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listings, err := h.engine.Listings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	now := h.engine.Now()
	for _, l := range listings {
		if l.ID == listingID {
			c.JSON(http.StatusOK, engine.WithStatus([]models.FoodListing{l}, now)[0])
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
}

type createListingRequest struct {
	Name        string           `json:"name" binding:"required"`
	Description string           `json:"description" binding:"required"`
	Quantity    int              `json:"quantity" binding:"required"`
	Unit        string           `json:"unit"`
	ExpiryHours int              `json:"expiry_hours"`
	ImageURL    string           `json:"image_url" binding:"required"`
	Location    *geo.Coordinates `json:"location"`
	Address     *models.Address  `json:"address"`
}

// CreateListing handles POST /v1/listings. Donor only.
func (h *ListingHandler) CreateListing(c *gin.Context) {
	donorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	listing, err := h.engine.CreateListing(c.Request.Context(), engine.CreateListingInput{
		Name:        req.Name,
		Description: req.Description,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		ExpiryHours: req.ExpiryHours,
		ImageURL:    req.ImageURL,
		Location:    req.Location,
		Address:     req.Address,
	}, donorID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.statsCache.Invalidate(c.Request.Context())
	c.JSON(http.StatusCreated, listing)
}

// ClaimListing handles POST /v1/listings/:id/claim. Receiver only. On
// success the donor notification email is enqueued.
func (h *ListingHandler) ClaimListing(c *gin.Context) {
	receiverID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, donor, err := h.engine.ClaimListing(c.Request.Context(), listingID, receiverID)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.taskClient != nil {
		task, err := tasks.NewClaimNotifyTask(listing.ID, receiverID)
		if err == nil {
			_, err = h.taskClient.EnqueueContext(c.Request.Context(), task)
		}
		if err != nil {
			// The claim itself committed; the email is best effort.
			log.Printf("Failed to enqueue claim notification for listing %s: %v", listing.ID, err)
		}
	}

	h.statsCache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"listing":      listing,
		"donor_points": donor.PointsValue(),
	})
}

// DeleteListing handles DELETE /v1/listings/:id. Owner only.
func (h *ListingHandler) DeleteListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	listingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	if err := h.engine.DeleteListing(c.Request.Context(), listingID, userID); err != nil {
		respondError(c, err)
		return
	}
	h.statsCache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type presignRequest struct {
	ListingID   string `json:"listing_id"`
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// PresignImageUpload handles POST /v1/images/presign. Returns a pre-signed
// PUT URL for a direct S3 upload and enqueues processing for the uploaded
// object when a listing ID is supplied.
func (h *ListingHandler) PresignImageUpload(c *gin.Context) {
	donorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Image uploads are not configured"})
		return
	}

	url, key, err := h.storage.GeneratePresignedPutURL(c.Request.Context(), donorID.String(), req.Filename, req.ContentType)
	if err != nil {
		respondError(c, err)
		return
	}

	if req.ListingID != "" && h.taskClient != nil {
		listingID, err := uuid.Parse(req.ListingID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
			return
		}
		task, err := tasks.NewImageProcessTask(key, listingID)
		if err == nil {
			_, err = h.taskClient.EnqueueContext(c.Request.Context(), task)
		}
		if err != nil {
			log.Printf("Failed to enqueue image processing for listing %s: %v", listingID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"upload_url": url,
		"key":        key,
		"public_url": h.storage.ObjectURL(key),
	})
}
