package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/230701390/feedr/internal/api/middleware"
	"github.com/230701390/feedr/internal/config"
	"github.com/230701390/feedr/internal/geo"
	"github.com/230701390/feedr/internal/models"
	"github.com/230701390/feedr/internal/services"
)

// DashboardHandler serves the per-role dashboard.
type DashboardHandler struct {
	cfg              *config.Config
	dashboardService services.IDashboardService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(cfg *config.Config, dashboardService services.IDashboardService) *DashboardHandler {
	return &DashboardHandler{cfg: cfg, dashboardService: dashboardService}
}

// Dashboard handles GET /v1/dashboard. Routes to the view matching the
// caller's role.
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	switch models.Role(c.GetString(middleware.ContextKeyRole)) {
	case models.RoleDonor:
		view, err := h.dashboardService.DonorView(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)

	case models.RoleReceiver:
		query := services.BrowseQuery{Search: c.Query("q")}
		latStr, lonStr := c.Query("lat"), c.Query("lon")
		if latStr != "" && lonStr != "" {
			lat, latErr := strconv.ParseFloat(latStr, 64)
			lon, lonErr := strconv.ParseFloat(lonStr, 64)
			if latErr == nil && lonErr == nil {
				query.Origin = &geo.Coordinates{Latitude: lat, Longitude: lon}
			}
		}
		// Radius filtering is opt-in. A dist_km that does not parse still
		// signals intent to filter, so it falls back to the configured default.
		if distStr := c.Query("dist_km"); distStr != "" {
			query.MaxDistanceKm = h.cfg.DefaultMaxDistanceKm
			if d, err := strconv.ParseFloat(distStr, 64); err == nil && d > 0 {
				query.MaxDistanceKm = d
			}
		}
		view, err := h.dashboardService.ReceiverView(c.Request.Context(), userID, query)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, view)

	case models.RoleAdmin:
		stats, err := h.dashboardService.AdminView(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)

	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "Unknown role"})
	}
}
