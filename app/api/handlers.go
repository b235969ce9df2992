package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/shelfwatch/app/database"
	"github.com/lysyi3m/shelfwatch/app/feed"
	"github.com/lysyi3m/shelfwatch/app/tasks"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func NewHandler(sourceRepo database.SourceRepository, itemRepo database.ItemRepository,
	runRepo database.RunRepository, generator GeneratorInterface,
	retrier SourceRetrier, trigger RunTrigger) *Handler {
	return &Handler{
		sourceRepo: sourceRepo,
		itemRepo:   itemRepo,
		runRepo:    runRepo,
		generator:  generator,
		retrier:    retrier,
		trigger:    trigger,
		feedLimit:  defaultListLimit,
	}
}

// WithCache adds the Redis state to the health report.
func (h *Handler) WithCache(c CacheInterface) *Handler {
	h.cache = c
	return h
}

func (h *Handler) GetLovedFeed(c *gin.Context) {
	user := c.Param("user")
	if user == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	items, err := h.itemRepo.ListLovedItems(c.Request.Context(), user, h.feedLimit)
	if err != nil {
		slog.Error("Database error", "operation", "list_loved_items", "user", user, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(user, items)
	if err != nil {
		slog.Error("RSS generation error", "user", user, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Feed-User", user)

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]any{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	counts, err := h.sourceRepo.CountSourcesByStatus(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "count_sources", "error", err)
		health["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	sources := map[string]int{}
	total := 0
	for _, status := range []database.SourceStatus{
		database.SourceStatusValidating,
		database.SourceStatusActive,
		database.SourceStatusBackoff,
		database.SourceStatusFailed,
	} {
		sources[strings.ToLower(string(status))] = counts[status]
		total += counts[status]
	}
	sources["total"] = total

	health["status"] = "ok"
	health["sources"] = sources

	if h.cache != nil {
		health["cache"] = h.cache.Health(c.Request.Context())
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APICreateSource(c *gin.Context) {
	user := c.Param("user")

	var req CreateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	feedURL := strings.TrimSpace(req.URL)
	if err := feed.ValidateFeedURL(feedURL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source, created, err := h.sourceRepo.CreateSource(c.Request.Context(), user, feedURL,
		strings.TrimSpace(req.Title), req.FailureThreshold)
	if err != nil {
		slog.Error("Database error", "operation", "create_source", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		slog.Info("Source subscribed", "user", user, "source", source.ID, "url", feedURL)
	}

	c.JSON(status, newSourceResponse(source))
}

func (h *Handler) APIListUserSources(c *gin.Context) {
	user := c.Param("user")

	sources, err := h.sourceRepo.ListUserSources(c.Request.Context(), user)
	if err != nil {
		slog.Error("Database error", "operation", "list_user_sources", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	resp := make([]SourceResponse, 0, len(sources))
	for i := range sources {
		resp = append(resp, newSourceResponse(&sources[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": resp,
		"total":   len(resp),
	})
}

func (h *Handler) APIGetSource(c *gin.Context) {
	id := c.Param("id")

	source, err := h.sourceRepo.GetSource(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) || (err == nil && !source.IsActive) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	details := SourceDetailsResponse{
		SourceResponse: newSourceResponse(source),
		Diagnostic:     source.LastError,
	}
	if count, err := h.itemRepo.GetItemCount(c.Request.Context(), id); err == nil {
		details.ItemCount = count
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) APIDeleteSource(c *gin.Context) {
	id := c.Param("id")

	err := h.sourceRepo.DeactivateSource(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "deactivate_source", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Source unsubscribed", "source", id)
	c.Status(http.StatusNoContent)
}

func (h *Handler) APIRetrySource(c *gin.Context) {
	id := c.Param("id")

	source, err := h.retrier.RetrySource(c.Request.Context(), id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	case errors.Is(err, tasks.ErrSourceBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "Source is being processed, try again shortly"})
		return
	case err != nil:
		slog.Error("Retry failed", "source", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Retry failed"})
		return
	}

	c.JSON(http.StatusOK, newSourceResponse(source))
}

func (h *Handler) APITriggerRun(c *gin.Context) {
	run, err := h.trigger.Trigger(c.Request.Context())
	if err != nil {
		slog.Error("Run trigger failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Run failed"})
		return
	}

	c.JSON(http.StatusOK, newRunResponse(run))
}

func (h *Handler) APIListRuns(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))

	runs, err := h.runRepo.ListRecentRuns(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, newRunResponse(&runs[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  resp,
		"total": len(resp),
	})
}

func (h *Handler) APIListUserItems(c *gin.Context) {
	user := c.Param("user")

	var state database.ActionState
	if raw := c.Query("state"); raw != "" {
		state = database.ActionState(strings.ToUpper(raw))
		if !state.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state"})
			return
		}
	}

	items, err := h.itemRepo.ListUserItems(c.Request.Context(), user, state, parseLimit(c.Query("limit")))
	if err != nil {
		slog.Error("Database error", "operation", "list_user_items", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	resp := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, newItemResponse(item))
	}

	c.JSON(http.StatusOK, gin.H{
		"items": resp,
		"total": len(resp),
	})
}

func (h *Handler) APIUpdateItemAction(c *gin.Context) {
	user := c.Param("user")
	itemID := c.Param("id")

	var req UpdateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	state := database.ActionState(strings.ToUpper(req.State))
	if !state.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state"})
		return
	}

	err := h.itemRepo.UpdateItemAction(c.Request.Context(), user, itemID, state)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "update_item_action", "user", user, "item", itemID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item_id": itemID,
		"state":   string(state),
	})
}

func parseLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
