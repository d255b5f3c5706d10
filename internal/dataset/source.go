package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// SourceConfig holds record source configuration.
type SourceConfig struct {
	Path            string // Record file path (JSON array or CSV); optional
	Format          string // "json" or "csv"; inferred from extension when empty
	RefreshSchedule string // Cron schedule for reloading the file; empty disables
}

// Source owns the in-memory record set. Records arrive either from a
// configured file (loaded at startup, optionally reloaded on a cron schedule)
// or pushed over the API. While a load is in flight the last-known set keeps
// serving derivations; concurrent loads collapse through singleflight.
type Source struct {
	cfg    SourceConfig
	logger zerolog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	records  []Record
	loadedAt time.Time

	cron *cron.Cron
}

// NewSource creates a record source. It does not touch the filesystem; call
// Load to populate the initial set.
func NewSource(cfg SourceConfig, logger zerolog.Logger) *Source {
	return &Source{
		cfg:    cfg,
		logger: logger.With().Str("component", "dataset").Logger(),
	}
}

// Records returns the last-known record set. The slice must be treated as
// read-only by callers.
func (s *Source) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// Count returns the number of records currently held.
func (s *Source) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// LoadedAt returns when the current record set was installed.
func (s *Source) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Replace installs a pushed record set, displacing whatever was loaded.
func (s *Source) Replace(records []Record) {
	s.mu.Lock()
	s.records = records
	s.loadedAt = time.Now()
	s.mu.Unlock()
	s.logger.Info().Int("records", len(records)).Msg("Record set replaced")
}

// Load reads the configured record file and installs its contents. Concurrent
// calls share one read. A source without a configured path is a valid
// "API-push only" setup and loads an empty set.
func (s *Source) Load(ctx context.Context) (int, error) {
	if s.cfg.Path == "" {
		return 0, nil
	}
	v, err, _ := s.group.Do("load", func() (any, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		records, err := s.readFile()
		if err != nil {
			return 0, err
		}
		s.Replace(records)
		return len(records), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// StartRefresh begins cron-scheduled reloads of the record file. No-op when
// no schedule or no path is configured.
func (s *Source) StartRefresh() error {
	if s.cfg.RefreshSchedule == "" || s.cfg.Path == "" {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(s.cfg.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid dataset refresh schedule %q: %w", s.cfg.RefreshSchedule, err)
	}
	s.cron = cron.New(cron.WithParser(parser))
	_, err := s.cron.AddFunc(s.cfg.RefreshSchedule, func() {
		if _, err := s.Load(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled record reload failed")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.cfg.RefreshSchedule).Msg("Dataset refresh scheduler started")
	return nil
}

// Close stops the refresh scheduler, waiting for a running reload.
func (s *Source) Close() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	return nil
}

func (s *Source) readFile() ([]Record, error) {
	raw, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	format := strings.ToLower(s.cfg.Format)
	if format == "" {
		switch strings.ToLower(filepath.Ext(s.cfg.Path)) {
		case ".csv":
			format = "csv"
		default:
			format = "json"
		}
	}

	switch format {
	case "json":
		var records []Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("failed to parse record file %s: %w", s.cfg.Path, err)
		}
		return records, nil
	case "csv":
		return parseCSV(raw)
	default:
		return nil, fmt.Errorf("unsupported record format: %s", format)
	}
}

// parseCSV turns a header-rowed CSV document into records, coercing
// numeric-looking cells to float64 so metric fields aggregate without
// per-record string parsing.
func parseCSV(raw []byte) ([]Record, error) {
	r := csv.NewReader(strings.NewReader(string(raw)))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV records: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}
	header := rows[0]
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(Record, len(header))
		for i, key := range header {
			if i >= len(row) {
				break
			}
			cell := row[i]
			if f, err := strconv.ParseFloat(cell, 64); err == nil {
				rec[key] = f
			} else {
				rec[key] = cell
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
