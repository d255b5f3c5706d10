package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/plotform-labs/plotform/internal/dataset"
)

func newRecordsApp(t *testing.T) (*fiber.App, *dataset.Source) {
	t.Helper()
	source := dataset.NewSource(dataset.SourceConfig{}, zerolog.Nop())
	h := NewRecordsHandler(source, dataset.DefaultCatalog(), zerolog.Nop())
	app := fiber.New()
	h.RegisterRoutes(app)
	return app, source
}

func TestWriteRecords_JSON(t *testing.T) {
	app, source := newRecordsApp(t)

	body := `[{"platform":"Meta","spend":10.5},{"platform":"Google","spend":5}]`
	req := httptest.NewRequest("POST", "/api/v1/records", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	if source.Count() != 2 {
		t.Errorf("source count = %d, want 2", source.Count())
	}
}

func TestWriteRecords_GzipJSON(t *testing.T) {
	app, source := newRecordsApp(t)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte(`[{"platform":"Meta","spend":1}]`))
	gz.Close()

	req := httptest.NewRequest("POST", "/api/v1/records", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	if source.Count() != 1 {
		t.Errorf("source count = %d, want 1", source.Count())
	}
}

func TestWriteRecords_MsgPack(t *testing.T) {
	app, source := newRecordsApp(t)

	payload, err := msgpack.Marshal([]map[string]any{
		{"platform": "Meta", "spend": 10.0},
		{"platform": "TikTok", "spend": 2.0},
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", "/api/v1/records", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/msgpack")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, raw)
	}
	if source.Count() != 2 {
		t.Errorf("source count = %d, want 2", source.Count())
	}
}

func TestWriteRecords_Errors(t *testing.T) {
	app, _ := newRecordsApp(t)

	// Empty payload
	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/records", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("empty payload status = %d, want 400", resp.StatusCode)
	}

	// Malformed JSON
	req := httptest.NewRequest("POST", "/api/v1/records", bytes.NewReader([]byte("{not json")))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("malformed payload status = %d, want 400", resp.StatusCode)
	}

	// Corrupt gzip (magic bytes but truncated stream)
	req = httptest.NewRequest("POST", "/api/v1/records", bytes.NewReader([]byte{0x1f, 0x8b, 0x00}))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("corrupt gzip status = %d, want 400", resp.StatusCode)
	}
}

func TestListFields(t *testing.T) {
	app, _ := newRecordsApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/fields", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Fields []dataset.DataField `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Fields) == 0 {
		t.Error("fields endpoint returned an empty catalog")
	}
}

func TestRecordsStats(t *testing.T) {
	app, source := newRecordsApp(t)
	source.Replace([]dataset.Record{{"a": 1.0}})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/records/stats", nil))
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["records"].(float64) != 1 {
		t.Errorf("stats records = %v", body["records"])
	}
}
