package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/plotform-labs/plotform/internal/dataset"
	"github.com/plotform-labs/plotform/internal/metrics"
)

// Pool for gzip readers - klauspost gzip.Reader carries ~32KB of internal
// state that can be reused via Reset()
var gzipReaderPool = sync.Pool{}

// RecordsHandler serves the dataset surface: record ingest, field catalog
// and dataset stats.
type RecordsHandler struct {
	source  *dataset.Source
	catalog *dataset.Catalog
	logger  zerolog.Logger
}

// NewRecordsHandler creates the dataset handler.
func NewRecordsHandler(source *dataset.Source, catalog *dataset.Catalog, logger zerolog.Logger) *RecordsHandler {
	return &RecordsHandler{
		source:  source,
		catalog: catalog,
		logger:  logger.With().Str("component", "records-handler").Logger(),
	}
}

// RegisterRoutes registers the dataset routes.
func (h *RecordsHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/records", h.writeRecords)
	app.Get("/api/v1/records/stats", h.recordsStats)
	app.Get("/api/v1/fields", h.listFields)
}

// writeRecords replaces the in-memory record set with the posted batch.
// Accepts JSON (default) or MessagePack (Content-Type application/msgpack),
// optionally gzip-compressed (Content-Encoding gzip or a gzip magic header).
func (h *RecordsHandler) writeRecords(c *fiber.Ctx) error {
	// Raw body, so fasthttp's non-pooled gunzip never runs; we decompress
	// ourselves with pooled readers
	payload := c.Request().Body()

	if len(payload) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Empty payload",
		})
	}

	wasCompressed := len(payload) >= 2 && payload[0] == 0x1f && payload[1] == 0x8b
	if wasCompressed {
		decompressed, err := decompressGzip(payload)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to decompress gzip payload")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("Invalid gzip compression: %v", err),
			})
		}
		payload = decompressed
	}

	isMsgPack := c.Get("Content-Type") == "application/msgpack" ||
		c.Get("Content-Type") == "application/x-msgpack"

	var raw []map[string]any
	var err error
	if isMsgPack {
		err = msgpack.Unmarshal(payload, &raw)
		metrics.Get().IncMsgPackRequests()
	} else {
		err = json.Unmarshal(payload, &raw)
	}
	if err != nil {
		h.logger.Error().Err(err).Bool("msgpack", isMsgPack).Msg("Failed to decode records payload")
		metrics.Get().IncIngestErrors()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Invalid records payload: %v", err),
		})
	}

	records := make([]dataset.Record, len(raw))
	for i, r := range raw {
		records[i] = dataset.Record(r)
	}
	h.source.Replace(records)

	m := metrics.Get()
	m.IncIngestRecords(int64(len(records)))
	m.IncIngestBytes(int64(len(payload)))
	m.IncIngestBatches()
	if isMsgPack {
		m.IncMsgPackRecords(int64(len(records)))
	}

	h.logger.Info().
		Int("records", len(records)).
		Bool("msgpack", isMsgPack).
		Bool("compressed", wasCompressed).
		Msg("Record set replaced")

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"records": len(records),
	})
}

func (h *RecordsHandler) recordsStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"records":   h.source.Count(),
		"loaded_at": h.source.LoadedAt().UTC().Format(time.RFC3339),
		"fields":    len(h.catalog.Fields()),
	})
}

func (h *RecordsHandler) listFields(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"fields": h.catalog.Fields(),
	})
}

// decompressGzip decompresses gzip data using a pooled reader.
func decompressGzip(data []byte) ([]byte, error) {
	var reader *gzip.Reader
	var err error

	if pooled := gzipReaderPool.Get(); pooled != nil {
		reader = pooled.(*gzip.Reader)
		err = reader.Reset(bytes.NewReader(data))
	} else {
		reader, err = gzip.NewReader(bytes.NewReader(data))
	}
	if err != nil {
		if reader != nil {
			gzipReaderPool.Put(reader)
		}
		return nil, fmt.Errorf("failed to initialize gzip reader: %w", err)
	}

	out, err := io.ReadAll(reader)
	closeErr := reader.Close()
	gzipReaderPool.Put(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress payload: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to finalize decompression: %w", closeErr)
	}
	return out, nil
}
