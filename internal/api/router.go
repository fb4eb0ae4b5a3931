// Package api exposes the planner over HTTP. Authentication is an external
// collaborator: requests arrive with an X-User-ID header set by the gateway,
// and this layer only verifies the user exists.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"planwise/internal/repository"
	"planwise/internal/service"
)

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	plans       *service.PlanService
	suggestions *service.SuggestionService
	patterns    *service.PatternService
	dispatcher  *service.DispatcherService
	health      *service.HealthService
	userRepo    *repository.UserRepository
	notifRepo   *repository.NotificationRepository
	log         *zap.SugaredLogger
}

func NewHandler(
	plans *service.PlanService,
	suggestions *service.SuggestionService,
	patterns *service.PatternService,
	dispatcher *service.DispatcherService,
	health *service.HealthService,
	userRepo *repository.UserRepository,
	notifRepo *repository.NotificationRepository,
	log *zap.SugaredLogger,
) *Handler {
	return &Handler{
		plans:       plans,
		suggestions: suggestions,
		patterns:    patterns,
		dispatcher:  dispatcher,
		health:      health,
		userRepo:    userRepo,
		notifRepo:   notifRepo,
		log:         log,
	}
}

// Router builds the gin engine with all routes registered.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", h.healthz)

	authed := router.Group("/", h.requireUser)
	authed.POST("/plans/:date", h.upsertPlan)
	authed.GET("/plans/:date", h.getPlan)
	authed.GET("/plans", h.listPlans)
	authed.PATCH("/plans/:date/reorder", h.reorderPlan)
	authed.POST("/plans/:date/complete", h.completePlan)
	authed.GET("/plans/:date/reflection", h.getReflection)
	authed.GET("/plans/:date/suggest", h.suggestOrder)
	authed.GET("/patterns", h.getPatterns)
	authed.GET("/notifications/preferences", h.getPreferences)
	authed.PUT("/notifications/preferences", h.putPreferences)
	authed.POST("/notifications/push-tokens", h.addPushToken)
	authed.DELETE("/notifications/push-tokens/:token", h.removePushToken)

	return router
}

const userIDKey = "user_id"

// requireUser resolves the calling user from the X-User-ID header.
func (h *Handler) requireUser(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header required"})
		return
	}
	if _, err := h.userRepo.FindByID(c.Request.Context(), userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// planError maps domain errors onto HTTP statuses.
func planError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidPlanDate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPlanDateTooFar),
		errors.Is(err, service.ErrEmptyTaskOrder),
		errors.Is(err, service.ErrDuplicateTask),
		errors.Is(err, service.ErrTaskNotOwned),
		errors.Is(err, service.ErrCancelledTask),
		errors.Is(err, service.ErrTaskSetChanged),
		errors.Is(err, service.ErrTaskNotInPlan),
		errors.Is(err, service.ErrInvalidMood):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
