package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/230701390/feedr/internal/engine"
	"github.com/230701390/feedr/internal/services"
)

// AdminHandler serves the admin-only aggregate endpoints.
type AdminHandler struct {
	engine           engine.IEngine
	userService      services.IUserService
	dashboardService services.IDashboardService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(eng engine.IEngine, userService services.IUserService, dashboardService services.IDashboardService) *AdminHandler {
	return &AdminHandler{
		engine:           eng,
		userService:      userService,
		dashboardService: dashboardService,
	}
}

// Stats handles GET /v1/admin/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.dashboardService.AdminView(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListUsers handles GET /v1/admin/users.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users})
}

// ListListings handles GET /v1/admin/listings. Returns every listing with
// its lifecycle status, including expired and claimed ones.
func (h *AdminHandler) ListListings(c *gin.Context) {
	listings, err := h.engine.Listings(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	views := engine.WithStatus(listings, h.engine.Now())
	if q := c.Query("status"); q != "" {
		filtered := make([]engine.ListingView, 0, len(views))
		for _, v := range views {
			if v.Status == engine.Status(q) {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	c.JSON(http.StatusOK, gin.H{"data": views})
}
