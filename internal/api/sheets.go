package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/plotform-labs/plotform/internal/composition"
	"github.com/plotform-labs/plotform/internal/crossfilter"
	"github.com/plotform-labs/plotform/internal/dataset"
	"github.com/plotform-labs/plotform/internal/filter"
	"github.com/plotform-labs/plotform/internal/intent"
	"github.com/plotform-labs/plotform/internal/metrics"
	"github.com/plotform-labs/plotform/internal/pipeline"
)

// SheetsHandler serves the composition surface: sheets, visuals, slicers,
// drag intents and derived chart rows.
type SheetsHandler struct {
	state   *composition.State
	router  *intent.Router
	source  *dataset.Source
	filters *filter.Store
	cross   *crossfilter.Coordinator
	logger  zerolog.Logger
}

// NewSheetsHandler creates the composition handler.
func NewSheetsHandler(state *composition.State, router *intent.Router, source *dataset.Source, filters *filter.Store, cross *crossfilter.Coordinator, logger zerolog.Logger) *SheetsHandler {
	return &SheetsHandler{
		state:   state,
		router:  router,
		source:  source,
		filters: filters,
		cross:   cross,
		logger:  logger.With().Str("component", "sheets-handler").Logger(),
	}
}

// RegisterRoutes registers the composition routes.
func (h *SheetsHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/v1/sheets", h.listSheets)
	app.Post("/api/v1/sheets", h.addSheet)
	app.Get("/api/v1/sheets/:sheetId", h.getSheet)
	app.Delete("/api/v1/sheets/:sheetId", h.removeSheet)

	app.Post("/api/v1/sheets/:sheetId/visuals/:visualId/select", h.selectVisual)
	app.Post("/api/v1/sheets/:sheetId/visuals/:visualId/duplicate", h.duplicateVisual)
	app.Delete("/api/v1/sheets/:sheetId/visuals/:visualId", h.deleteVisual)

	app.Post("/api/v1/sheets/:sheetId/slicers/:slicerId/selection", h.setSlicerSelection)
	app.Delete("/api/v1/sheets/:sheetId/slicers/:slicerId", h.deleteSlicer)

	app.Post("/api/v1/sheets/:sheetId/intents", h.resolveIntent)

	app.Get("/api/v1/visuals/:visualId/rows", h.visualRows)
}

func (h *SheetsHandler) listSheets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sheets": h.state.Sheets(),
	})
}

func (h *SheetsHandler) addSheet(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Sheet name is required",
		})
	}
	sh := h.state.AddSheet(body.Name)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":   sh.ID,
		"name": sh.Name,
	})
}

func (h *SheetsHandler) getSheet(c *fiber.Ctx) error {
	sh, err := h.state.Sheet(c.Params("sheetId"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sheet not found",
		})
	}
	return c.JSON(sh)
}

// removeSheet deletes a sheet; the last remaining sheet cannot be deleted.
func (h *SheetsHandler) removeSheet(c *fiber.Ctx) error {
	err := h.state.RemoveSheet(c.Params("sheetId"))
	if err != nil {
		if errors.Is(err, composition.ErrLastSheet) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Cannot delete the last sheet",
			})
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sheet not found",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *SheetsHandler) selectVisual(c *fiber.Ctx) error {
	if err := h.state.SelectVisual(c.Params("sheetId"), c.Params("visualId")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Visual not found",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *SheetsHandler) duplicateVisual(c *fiber.Ctx) error {
	v, err := h.state.DuplicateVisual(c.Params("sheetId"), c.Params("visualId"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Visual not found",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(v)
}

// deleteVisual removes the visual; the state's delete hook clears the
// cross-filter when the deleted visual was its source.
func (h *SheetsHandler) deleteVisual(c *fiber.Ctx) error {
	if err := h.state.DeleteVisual(c.Params("sheetId"), c.Params("visualId")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Visual not found",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// setSlicerSelection updates a slicer's selection and mirrors it into the
// filter store, which remains the single source of filtering truth. An empty
// selection drops the field's filter.
func (h *SheetsHandler) setSlicerSelection(c *fiber.Ctx) error {
	var body struct {
		Values       []any                `json:"values"`
		NumericRange *filter.NumericRange `json:"numericRange"`
		DateRange    *filter.DateRange    `json:"dateRange"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid selection payload: " + err.Error(),
		})
	}

	sl, err := h.state.SetSlicerSelection(c.Params("sheetId"), c.Params("slicerId"), body.Values)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Slicer not found",
		})
	}

	empty := len(body.Values) == 0 && body.NumericRange == nil && body.DateRange == nil
	if empty {
		h.filters.Remove(sl.Field)
	} else {
		fv := filter.Value{
			Field:    sl.Field,
			Values:   body.Values,
			Operator: filter.OpEquals,
		}
		if body.NumericRange != nil || body.DateRange != nil {
			fv.Operator = filter.OpBetween
			fv.NumericRange = body.NumericRange
			fv.DateRange = body.DateRange
		}
		h.filters.AddOrReplace(fv)
	}
	metrics.Get().SetFiltersActive(int64(h.filters.Len()))

	return c.JSON(fiber.Map{
		"success": true,
		"slicer":  sl,
		"filters": h.filters.Len(),
	})
}

// deleteSlicer removes the slicer; the state's delete hook drops the
// slicer's filter from the store.
func (h *SheetsHandler) deleteSlicer(c *fiber.Ctx) error {
	if err := h.state.DeleteSlicer(c.Params("sheetId"), c.Params("slicerId")); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Slicer not found",
		})
	}
	metrics.Get().SetFiltersActive(int64(h.filters.Len()))
	return c.JSON(fiber.Map{"success": true})
}

// resolveIntent routes a drag event. A rejected drop returns 422 and leaves
// composition state untouched.
func (h *SheetsHandler) resolveIntent(c *fiber.Ctx) error {
	var ev intent.DragEvent
	if err := c.BodyParser(&ev); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid drag event payload: " + err.Error(),
		})
	}

	action, err := h.router.Resolve(c.Params("sheetId"), ev)
	if err != nil {
		var rej *intent.Rejection
		if errors.As(err, &rej) {
			metrics.Get().IncIntentsRejected()
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"resolved": false,
				"reason":   rej.Reason,
			})
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	metrics.Get().IncIntentsResolved()
	return c.JSON(fiber.Map{
		"resolved": true,
		"action":   action,
	})
}

// visualRows derives the visual's chart rows from the filtered record set
// and layers the cross-filter annotation on top.
func (h *SheetsHandler) visualRows(c *fiber.Ctx) error {
	visualID := c.Params("visualId")
	_, v, err := h.state.FindVisual(visualID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Visual not found",
		})
	}

	start := time.Now()
	filtered := h.filters.Apply(h.source.Records())
	rows := pipeline.DeriveRows(filtered, v.Mapping)
	if rows == nil {
		// Unconfigured mapping: serve the visual's last derived rows
		rows = v.Rows
	}

	if h.cross.IsFiltered(visualID) {
		if sel := h.cross.Active(); sel != nil {
			rows = pipeline.Annotate(rows, sel.Value, true)
		}
	}

	m := metrics.Get()
	m.IncFilterApplies()
	m.IncDeriveRuns()
	m.IncDeriveRows(int64(len(rows)))
	m.RecordDeriveLatency(time.Since(start).Microseconds())

	if rows == nil {
		rows = []pipeline.ChartRow{}
	}
	return c.JSON(fiber.Map{
		"visualId": visualID,
		"rows":     rows,
	})
}
