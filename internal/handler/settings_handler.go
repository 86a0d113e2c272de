package handler

import (
	"bytes"
	"encoding/json"

	"github.com/arturoeanton/go-star-search/internal/port"
	"github.com/arturoeanton/go-star-search/internal/service"
	"github.com/gofiber/fiber/v3"
)

// SettingsHandler reads and updates the indexing settings, and checks the
// source credential.
type SettingsHandler struct {
	indexer *service.Indexer
	source  port.SourceProvider
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(indexer *service.Indexer, source port.SourceProvider) *SettingsHandler {
	return &SettingsHandler{indexer: indexer, source: source}
}

// Register sets up settings routes.
func (h *SettingsHandler) Register(router fiber.Router) {
	router.Get("/settings", h.Get)
	router.Put("/settings", h.Update)
	router.Get("/source/validate", h.ValidateSource)
}

// Get returns the current settings.
func (h *SettingsHandler) Get(c fiber.Ctx) error {
	return c.JSON(h.indexer.Settings())
}

// Update merges a partial settings document. Out-of-range numbers are
// clamped and non-numeric values ignored.
func (h *SettingsHandler) Update(c fiber.Ctx) error {
	var patch map[string]any
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	if err := dec.Decode(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	updated, err := h.indexer.UpdateSettings(c.Context(), patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(updated)
}

// ValidateSource reports whether the configured source token is accepted.
func (h *SettingsHandler) ValidateSource(c fiber.Ctx) error {
	ok, err := h.source.ValidateCredential(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"valid": ok})
}
