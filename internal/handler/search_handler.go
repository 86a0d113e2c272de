package handler

import (
	"strings"

	"github.com/arturoeanton/go-star-search/internal/service"
	"github.com/gofiber/fiber/v3"
)

// SearchHandler handles semantic search over indexed stars.
type SearchHandler struct {
	search *service.SearchService
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

// Register sets up search routes.
func (h *SearchHandler) Register(router fiber.Router) {
	router.Post("/search", h.Search)
}

// Search embeds the query and returns the nearest items.
func (h *SearchHandler) Search(c fiber.Ctx) error {
	var body struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(body.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required"})
	}

	results, err := h.search.Search(c.Context(), body.Query, body.K)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"query":   body.Query,
		"results": results,
		"count":   len(results),
	})
}
