package handlers

import (
	"net/http"

	"trivianight/services"

	"github.com/gin-gonic/gin"
)

type UsageHandler struct {
	tracker        *services.UsageTracker
	gameService    *services.GameService
	catalogService *services.CatalogService
}

func NewUsageHandler(tracker *services.UsageTracker, gameService *services.GameService, catalogService *services.CatalogService) *UsageHandler {
	return &UsageHandler{
		tracker:        tracker,
		gameService:    gameService,
		catalogService: catalogService,
	}
}

func (h *UsageHandler) GetUsage(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	usage, err := h.tracker.GetUsageData(c.Request.Context(), userID.(uint))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, usage)
}

// GetCategoryHealth reports per-category availability in one pass, so the
// category picker can flag exhausted categories before game start.
func (h *UsageHandler) GetCategoryHealth(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	catalog, err := h.catalogService.GetCatalog(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	report, err := h.tracker.CategoryHealthReport(c.Request.Context(), userID.(uint), catalog)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

// SyncFromHistory replays the user's game records into the usage store.
// Called by the client once after login; repeated calls in the same
// session are no-ops.
func (h *UsageHandler) SyncFromHistory(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	games, err := h.gameService.ListGames(c.Request.Context(), userID.(uint))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.tracker.SyncFromHistory(c.Request.Context(), userID.(uint), games, false); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Usage synced from history", "games": len(games)})
}

func (h *UsageHandler) ResetCategory(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	slug := c.Param("slug")
	if slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Category slug required"})
		return
	}

	category, err := h.catalogService.GetCategoryBySlug(c.Request.Context(), slug)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
		return
	}

	if err := h.tracker.ResetCategory(c.Request.Context(), userID.(uint), category.Slug, category.Questions); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Category reset successfully"})
}

func (h *UsageHandler) InvalidateCache(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	h.tracker.InvalidateCache(c.Request.Context(), userID.(uint))

	c.JSON(http.StatusOK, gin.H{"message": "Usage cache invalidated"})
}
