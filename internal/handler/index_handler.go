package handler

import (
	"strconv"
	"time"

	"github.com/arturoeanton/go-star-search/internal/service"
	"github.com/gofiber/fiber/v3"
)

// IndexHandler handles indexing runs and their progress.
type IndexHandler struct {
	indexer       *service.Indexer
	tracker       *ProgressTracker
	streamTimeout time.Duration
}

// NewIndexHandler creates a new index handler. tracker must be the notifier
// the indexer was built with.
func NewIndexHandler(indexer *service.Indexer, tracker *ProgressTracker) *IndexHandler {
	return &IndexHandler{indexer: indexer, tracker: tracker, streamTimeout: 30 * time.Minute}
}

// Register sets up index routes.
func (h *IndexHandler) Register(router fiber.Router) {
	idx := router.Group("/index")
	idx.Post("/run", h.Run)
	idx.Post("/reindex", h.Reindex)
	idx.Get("/status", h.Status)
	idx.Get("/stream", h.StreamSSE)
}

// Run starts indexing one page. With ?wait=true it blocks and returns the
// result; otherwise it answers 202 and the run continues in the background.
func (h *IndexHandler) Run(c fiber.Ctx) error {
	var body struct {
		Page int `json:"page"`
	}
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	page := max(body.Page, 1)

	if queryBool(c, "wait") {
		res, err := h.indexer.Run(c.Context(), page)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}

	if err := h.indexer.Start(c.Context(), page); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": RunRunning, "page": page})
}

// Reindex clears the index and indexes page 1 in the background.
func (h *IndexHandler) Reindex(c fiber.Ctx) error {
	if queryBool(c, "wait") {
		res, err := h.indexer.Reindex(c.Context())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(res)
	}

	if err := h.indexer.StartReindex(c.Context()); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": RunRunning, "page": 1})
}

// Status returns the indexer state plus the latest progress snapshot.
func (h *IndexHandler) Status(c fiber.Ctx) error {
	st, err := h.indexer.Status(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"index":    st,
		"progress": h.tracker.Snapshot(),
		"running":  h.indexer.Running(),
	})
}

// queryBool reads a boolean query param; anything unparsable is false.
func queryBool(c fiber.Ctx, key string) bool {
	b, err := strconv.ParseBool(c.Query(key))
	return err == nil && b
}
