package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/230701390/feedr/internal/api/middleware"
	"github.com/230701390/feedr/internal/auth"
	"github.com/230701390/feedr/internal/cache"
	"github.com/230701390/feedr/internal/config"
	"github.com/230701390/feedr/internal/geo"
	"github.com/230701390/feedr/internal/models"
	"github.com/230701390/feedr/internal/services"
	"github.com/230701390/feedr/internal/tasks"
)

// AuthHandler handles registration and login.
type AuthHandler struct {
	cfg         *config.Config
	userService services.IUserService
	taskClient  IAsynqClient
	statsCache  *cache.StatsCache
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(cfg *config.Config, userService services.IUserService, taskClient IAsynqClient, statsCache *cache.StatsCache) *AuthHandler {
	return &AuthHandler{cfg: cfg, userService: userService, taskClient: taskClient, statsCache: statsCache}
}

type registerRequest struct {
	Name      string           `json:"name" binding:"required"`
	Email     string           `json:"email" binding:"required"`
	Mobile    string           `json:"mobile"`
	Password  string           `json:"password" binding:"required"`
	Role      string           `json:"role" binding:"required"`
	AdminCode string           `json:"admin_code"`
	Address   *models.Address  `json:"address"`
	Location  *geo.Coordinates `json:"location"`
}

// Register handles POST /v1/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), services.RegisterInput{
		Name:      req.Name,
		Email:     req.Email,
		Mobile:    req.Mobile,
		Password:  req.Password,
		Role:      models.Role(req.Role),
		AdminCode: req.AdminCode,
		Address:   req.Address,
		Location:  req.Location,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	// Admin stats count users, so a new registration stales the cache.
	h.statsCache.Invalidate(c.Request.Context())

	if h.taskClient != nil {
		task, err := tasks.NewWelcomeEmailTask(user.ID)
		if err == nil {
			_, err = h.taskClient.EnqueueContext(c.Request.Context(), task)
		}
		if err != nil {
			// Registration itself committed; the email is best effort.
			log.Printf("Failed to enqueue welcome email for user %s: %v", user.ID, err)
		}
	}

	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

type profileUpdateRequest struct {
	Name     *string          `json:"name"`
	Mobile   *string          `json:"mobile"`
	Address  *models.Address  `json:"address"`
	Location *geo.Coordinates `json:"location"`
}

// UpdateProfile handles PUT /v1/profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req profileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), userID, services.ProfileUpdateInput{
		Name:     req.Name,
		Mobile:   req.Mobile,
		Address:  req.Address,
		Location: req.Location,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Profile handles GET /v1/profile.
func (h *AuthHandler) Profile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// currentUserID reads the authenticated user's ID set by AuthMiddleware.
// Writes the error response itself when the context is unusable.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	idStr := c.GetString(middleware.ContextKeyUserID)
	id, err := uuid.Parse(idStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user identity in token"})
		return uuid.Nil, false
	}
	return id, true
}
