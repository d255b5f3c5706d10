package api

import (
	"database/sql"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/plotform-labs/plotform/internal/board"
	"github.com/plotform-labs/plotform/internal/composition"
	"github.com/plotform-labs/plotform/internal/metrics"
)

// BoardsHandler persists and restores composition documents through the
// board store.
type BoardsHandler struct {
	store  *board.Store
	state  *composition.State
	logger zerolog.Logger
}

// NewBoardsHandler creates the board handler.
func NewBoardsHandler(store *board.Store, state *composition.State, logger zerolog.Logger) *BoardsHandler {
	return &BoardsHandler{
		store:  store,
		state:  state,
		logger: logger.With().Str("component", "boards-handler").Logger(),
	}
}

// RegisterRoutes registers the board routes.
func (h *BoardsHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/api/v1/boards", h.listBoards)
	app.Post("/api/v1/boards/:name", h.saveBoard)
	app.Post("/api/v1/boards/:name/load", h.loadBoard)
	app.Delete("/api/v1/boards/:name", h.deleteBoard)
	app.Get("/api/v1/boards/:name/export", h.exportBoard)
	app.Post("/api/v1/boards/:name/import", h.importBoard)
}

func (h *BoardsHandler) listBoards(c *fiber.Ctx) error {
	boards, err := h.store.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list boards",
		})
	}
	return c.JSON(fiber.Map{
		"boards": boards,
	})
}

// saveBoard snapshots the current composition tree under the given name.
func (h *BoardsHandler) saveBoard(c *fiber.Ctx) error {
	name := c.Params("name")
	doc, err := h.state.Snapshot()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to snapshot composition")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to snapshot composition",
		})
	}
	if err := h.store.Save(name, doc); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save board",
		})
	}
	metrics.Get().IncBoardSaves()
	return c.JSON(fiber.Map{
		"success": true,
		"name":    name,
	})
}

// loadBoard replaces the live composition tree with the saved document.
func (h *BoardsHandler) loadBoard(c *fiber.Ctx) error {
	name := c.Params("name")
	doc, err := h.store.Load(name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Board not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load board",
		})
	}
	if err := h.state.Restore(doc); err != nil {
		h.logger.Error().Err(err).Str("name", name).Msg("Failed to restore board document")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Board document is invalid: " + err.Error(),
		})
	}
	metrics.Get().IncBoardLoads()
	return c.JSON(fiber.Map{
		"success": true,
		"name":    name,
	})
}

func (h *BoardsHandler) deleteBoard(c *fiber.Ctx) error {
	if err := h.store.Delete(c.Params("name")); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete board",
		})
	}
	return c.JSON(fiber.Map{"success": true})
}

// exportBoard streams the saved document gzip-compressed for download.
func (h *BoardsHandler) exportBoard(c *fiber.Ctx) error {
	name := c.Params("name")
	compressed, err := h.store.Export(name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Board not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export board",
		})
	}
	c.Set("Content-Type", "application/gzip")
	c.Set("Content-Disposition", `attachment; filename="`+name+`.json.gz"`)
	return c.Send(compressed)
}

// importBoard validates an exported document and saves it under the name.
func (h *BoardsHandler) importBoard(c *fiber.Ctx) error {
	name := c.Params("name")
	body := c.Request().Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Empty import payload",
		})
	}
	doc, err := h.store.Import(name, body)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid board export: " + err.Error(),
		})
	}
	// Validate the document parses as a composition before declaring success;
	// the import stays saved either way, matching a plain Save of bad data.
	if err := composition.ValidateDocument(doc); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Imported document is invalid: " + err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"name":    name,
	})
}
