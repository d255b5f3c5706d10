package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/plotform-labs/plotform/internal/crossfilter"
	"github.com/plotform-labs/plotform/internal/filter"
	"github.com/plotform-labs/plotform/internal/metrics"
)

// FiltersHandler serves the filter store and the cross-filter coordinator.
type FiltersHandler struct {
	filters *filter.Store
	cross   *crossfilter.Coordinator
	logger  zerolog.Logger
}

// NewFiltersHandler creates the filter handler.
func NewFiltersHandler(filters *filter.Store, cross *crossfilter.Coordinator, logger zerolog.Logger) *FiltersHandler {
	return &FiltersHandler{
		filters: filters,
		cross:   cross,
		logger:  logger.With().Str("component", "filters-handler").Logger(),
	}
}

// RegisterRoutes registers the filter and cross-filter routes.
func (h *FiltersHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/v1/filters", h.listFilters)
	app.Post("/api/v1/filters", h.setFilter)
	app.Delete("/api/v1/filters/:field", h.removeFilter)
	app.Post("/api/v1/filters/clear", h.clearFilters)

	app.Get("/api/v1/crossfilter", h.getCrossfilter)
	app.Post("/api/v1/crossfilter", h.setCrossfilter)
	app.Delete("/api/v1/crossfilter", h.clearCrossfilter)
}

func (h *FiltersHandler) listFilters(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"filters": h.filters.List(),
		"count":   h.filters.Len(),
	})
}

// setFilter adds or replaces the filter for the payload's field.
func (h *FiltersHandler) setFilter(c *fiber.Ctx) error {
	var v filter.Value
	if err := c.BodyParser(&v); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid filter payload: " + err.Error(),
		})
	}
	if v.Field == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Filter field is required",
		})
	}

	h.filters.AddOrReplace(v)
	metrics.Get().SetFiltersActive(int64(h.filters.Len()))
	return c.JSON(fiber.Map{
		"success": true,
		"filters": h.filters.Len(),
	})
}

func (h *FiltersHandler) removeFilter(c *fiber.Ctx) error {
	field := c.Params("field")
	h.filters.Remove(field)
	metrics.Get().SetFiltersActive(int64(h.filters.Len()))
	return c.JSON(fiber.Map{
		"success": true,
		"filters": h.filters.Len(),
	})
}

// clearFilters removes every filter; the store's clear hook resets slicer
// selections so the UI and filter state stay in step.
func (h *FiltersHandler) clearFilters(c *fiber.Ctx) error {
	h.filters.ClearAll()
	metrics.Get().SetFiltersActive(0)
	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (h *FiltersHandler) getCrossfilter(c *fiber.Ctx) error {
	sel := h.cross.Active()
	return c.JSON(fiber.Map{
		"active":    sel != nil,
		"selection": sel,
	})
}

// setCrossfilter sets the highlight selection; posting the same selection
// again toggles it off.
func (h *FiltersHandler) setCrossfilter(c *fiber.Ctx) error {
	var sel crossfilter.Selection
	if err := c.BodyParser(&sel); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid selection payload: " + err.Error(),
		})
	}
	if sel.SourceVisualID == "" || sel.Dimension == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "sourceVisualId and dimension are required",
		})
	}

	active := h.cross.Set(sel)
	m := metrics.Get()
	if active {
		m.IncCrossfilterSets()
	} else {
		m.IncCrossfilterClears()
	}
	return c.JSON(fiber.Map{
		"active":    active,
		"selection": h.cross.Active(),
	})
}

func (h *FiltersHandler) clearCrossfilter(c *fiber.Ctx) error {
	h.cross.Clear()
	metrics.Get().IncCrossfilterClears()
	return c.JSON(fiber.Map{
		"success": true,
	})
}
