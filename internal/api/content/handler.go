// Package content provides REST API handlers for browsing courses and completing steps.
package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/calculus-api/internal/api/middleware"
	"github.com/aimd54/calculus-api/internal/api/response"
	"github.com/aimd54/calculus-api/internal/clock"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/service/lessons"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// LessonService interface for content and completion operations.
type LessonService interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListStories(ctx context.Context, userID uint, q lessons.StoryQuery) ([]lessons.StorySummary, error)
	GetStory(ctx context.Context, userID uint, slug string) (*lessons.StoryDetail, error)
	Enroll(ctx context.Context, userID uint, slug string) error
	GetStep(ctx context.Context, userID, stepID uint) (*lessons.StepDetail, error)
	GetSlides(ctx context.Context, userID, stepID uint) ([]lessons.SlideView, error)
	CompleteStep(ctx context.Context, userID, stepID uint, req lessons.StepCompletion, offset clock.Offset) (*lessons.CompletionResult, error)
	CompleteSlide(ctx context.Context, userID, stepID, slideID uint, offset clock.Offset) (*lessons.CompletionResult, error)
}

// Handler handles content API requests.
type Handler struct {
	lessons LessonService
	log     *logger.Logger
}

// NewHandler creates a new content handler.
func NewHandler(lessonService *lessons.Service, log *logger.Logger) *Handler {
	return &Handler{lessons: lessonService, log: log}
}

// NewHandlerWithInterfaces creates a new content handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(lessonService LessonService, log *logger.Logger) *Handler {
	return &Handler{lessons: lessonService, log: log}
}

// ListCategories returns all categories.
// GET /api/categories.
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.lessons.ListCategories(c.Request.Context())
	if err != nil {
		response.Error(c, h.log, err, "Failed to list categories")
		return
	}
	c.JSON(http.StatusOK, categories)
}

// ListStories lists published stories.
// GET /api/stories?search=limit&featured=true&enrolled=true&limit=20&offset=0.
func (h *Handler) ListStories(c *gin.Context) {
	q := lessons.StoryQuery{
		Search:   c.Query("search"),
		Featured: c.Query("featured") == "true",
		Enrolled: c.Query("enrolled") == "true",
	}
	var err error
	if q.Limit, err = h.parseInt(c, "limit", 0); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if q.Offset, err = h.parseInt(c, "offset", 0); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	stories, err := h.lessons.ListStories(c.Request.Context(), middleware.UserID(c), q)
	if err != nil {
		response.Error(c, h.log, err, "Failed to list stories")
		return
	}
	c.JSON(http.StatusOK, stories)
}

// GetStory returns a story outline.
// GET /api/stories/:slug.
func (h *Handler) GetStory(c *gin.Context) {
	story, err := h.lessons.GetStory(c.Request.Context(), middleware.UserID(c), c.Param("slug"))
	if err != nil {
		response.Error(c, h.log, err, "Failed to get story")
		return
	}
	c.JSON(http.StatusOK, story)
}

// Enroll enrolls the user in a story.
// POST /api/stories/:slug/enroll.
func (h *Handler) Enroll(c *gin.Context) {
	slug := c.Param("slug")
	if err := h.lessons.Enroll(c.Request.Context(), middleware.UserID(c), slug); err != nil {
		response.Error(c, h.log, err, "Failed to enroll")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "enrolled", "story": slug})
}

// GetStep returns a step.
// GET /api/steps/:id.
func (h *Handler) GetStep(c *gin.Context) {
	stepID, err := h.parseID(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	step, err := h.lessons.GetStep(c.Request.Context(), middleware.UserID(c), stepID)
	if err != nil {
		response.Error(c, h.log, err, "Failed to get step")
		return
	}
	c.JSON(http.StatusOK, step)
}

// GetSlides returns the slides of a step.
// GET /api/steps/:id/slides.
func (h *Handler) GetSlides(c *gin.Context) {
	stepID, err := h.parseID(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	slides, err := h.lessons.GetSlides(c.Request.Context(), middleware.UserID(c), stepID)
	if err != nil {
		response.Error(c, h.log, err, "Failed to get slides")
		return
	}
	c.JSON(http.StatusOK, slides)
}

// CompleteStep records a step completion. The body is optional.
// POST /api/steps/:id/complete.
func (h *Handler) CompleteStep(c *gin.Context) {
	stepID, err := h.parseID(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	var req lessons.StepCompletion
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "invalid request body")
		return
	}

	result, err := h.lessons.CompleteStep(c.Request.Context(), middleware.UserID(c), stepID, req, middleware.Offset(c))
	if err != nil {
		response.Error(c, h.log, err, "Failed to complete step")
		return
	}
	c.JSON(http.StatusOK, result)
}

// CompleteSlide records a slide completion.
// POST /api/steps/:id/slides/:slide_id/complete.
func (h *Handler) CompleteSlide(c *gin.Context) {
	stepID, err := h.parseID(c, "id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	slideID, err := h.parseID(c, "slide_id")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.lessons.CompleteSlide(c.Request.Context(), middleware.UserID(c), stepID, slideID, middleware.Offset(c))
	if err != nil {
		response.Error(c, h.log, err, "Failed to complete slide")
		return
	}
	c.JSON(http.StatusOK, result)
}

// Helper functions

// parseID extracts and validates a numeric URL parameter.
func (h *Handler) parseID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s: %s", name, raw)
	}
	return uint(id), nil
}

// parseInt extracts an integer query parameter.
func (h *Handler) parseInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %s", name, raw)
	}
	return v, nil
}
