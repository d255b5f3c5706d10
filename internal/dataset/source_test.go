package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestSource_LoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.json")
	raw := `[{"platform":"Meta","spend":10.5},{"platform":"Google","spend":5}]`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewSource(SourceConfig{Path: path}, zerolog.Nop())
	count, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if count != 2 || s.Count() != 2 {
		t.Fatalf("count = %d / %d, want 2", count, s.Count())
	}
	if s.Records()[0]["platform"] != "Meta" {
		t.Errorf("first record = %v", s.Records()[0])
	}
	if s.LoadedAt().IsZero() {
		t.Error("LoadedAt should be set after Load")
	}
}

func TestSource_LoadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.csv")
	raw := "platform,spend\nMeta,10.5\nGoogle,5\n"
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewSource(SourceConfig{Path: path}, zerolog.Nop())
	count, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	// Numeric-looking cells coerce to float64
	if got := s.Records()[0]["spend"]; got != 10.5 {
		t.Errorf("spend = %v (%T), want 10.5 float64", got, got)
	}
	if got := s.Records()[0]["platform"]; got != "Meta" {
		t.Errorf("platform = %v", got)
	}
}

func TestSource_LoadNoPathIsEmpty(t *testing.T) {
	s := NewSource(SourceConfig{}, zerolog.Nop())
	count, err := s.Load(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("Load = %d, %v; want 0, nil", count, err)
	}
}

func TestSource_LoadMissingFile(t *testing.T) {
	s := NewSource(SourceConfig{Path: "/nonexistent/records.json"}, zerolog.Nop())
	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("missing file should error")
	}
}

func TestSource_Replace(t *testing.T) {
	s := NewSource(SourceConfig{}, zerolog.Nop())
	s.Replace([]Record{{"a": 1.0}})
	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1", s.Count())
	}
	s.Replace([]Record{{"b": 2.0}, {"c": 3.0}})
	if s.Count() != 2 {
		t.Fatalf("Count = %d after replace, want 2", s.Count())
	}
}

func TestSource_StartRefreshValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.json")
	os.WriteFile(path, []byte(`[]`), 0644)

	bad := NewSource(SourceConfig{Path: path, RefreshSchedule: "not-a-schedule"}, zerolog.Nop())
	if err := bad.StartRefresh(); err == nil {
		t.Error("invalid cron schedule should error")
	}

	good := NewSource(SourceConfig{Path: path, RefreshSchedule: "*/5 * * * *"}, zerolog.Nop())
	if err := good.StartRefresh(); err != nil {
		t.Errorf("valid schedule: %v", err)
	}
	if err := good.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	// No schedule is a no-op, Close still fine
	none := NewSource(SourceConfig{Path: path}, zerolog.Nop())
	if err := none.StartRefresh(); err != nil {
		t.Errorf("no schedule should be a no-op: %v", err)
	}
	if err := none.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
