package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for Plotform
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Auth    AuthConfig
	Dataset DatasetConfig
	Board   BoardConfig
	Cache   CacheConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	MaxPayloadSize int64 // Maximum request payload size in bytes (compressed and decompressed alike)
}

type LogConfig struct {
	Level  string
	Format string
}

type AuthConfig struct {
	Enabled      bool
	DBPath       string // SQLite database path (shared with the board store by default)
	CacheTTL     int    // Token cache TTL in seconds
	MaxCacheSize int    // Maximum number of cached tokens
}

type DatasetConfig struct {
	Path            string // Dataset file path (JSON or CSV)
	Format          string // "json", "csv", or "" to infer from the extension
	CatalogPath     string // Field catalog file; empty uses the built-in catalog
	RefreshSchedule string // Cron schedule for reloading the dataset file; empty disables refresh
}

type BoardConfig struct {
	DBPath string // SQLite database path for saved boards
}

type CacheConfig struct {
	Enabled    bool
	DefaultTTL int // Derived-row cache TTL in seconds
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("PLOTFORM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("plotform")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/plotform/")
	v.AddConfigPath("$HOME/.plotform/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	maxPayloadSize, err := ParseSize(v.GetString("server.max_payload_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid server.max_payload_size: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			ReadTimeout:    v.GetInt("server.read_timeout"),
			WriteTimeout:   v.GetInt("server.write_timeout"),
			MaxPayloadSize: maxPayloadSize,
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Auth: AuthConfig{
			Enabled:      v.GetBool("auth.enabled"),
			DBPath:       v.GetString("auth.db_path"),
			CacheTTL:     v.GetInt("auth.cache_ttl"),
			MaxCacheSize: v.GetInt("auth.max_cache_size"),
		},
		Dataset: DatasetConfig{
			Path:            v.GetString("dataset.path"),
			Format:          v.GetString("dataset.format"),
			CatalogPath:     v.GetString("dataset.catalog_path"),
			RefreshSchedule: v.GetString("dataset.refresh_schedule"),
		},
		Board: BoardConfig{
			DBPath: v.GetString("board.db_path"),
		},
		Cache: CacheConfig{
			Enabled:    v.GetBool("cache.enabled"),
			DefaultTTL: v.GetInt("cache.default_ttl"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.max_payload_size", "100MB")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Auth defaults
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.db_path", "./data/plotform.db")
	v.SetDefault("auth.cache_ttl", 300)       // 5 minutes
	v.SetDefault("auth.max_cache_size", 1000) // Max cached tokens

	// Dataset defaults
	v.SetDefault("dataset.path", "")
	v.SetDefault("dataset.format", "")
	v.SetDefault("dataset.catalog_path", "")
	v.SetDefault("dataset.refresh_schedule", "")

	// Board defaults
	v.SetDefault("board.db_path", "./data/plotform.db")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.default_ttl", 300)
}

// ParseSize parses a human-readable size string (e.g., "1GB", "500MB", "100KB") to bytes.
// Supports: B, KB, MB, GB (case-insensitive).
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	type unitInfo struct {
		suffix     string
		multiplier int64
	}
	// Longer suffixes first so "MB" is not parsed as "B"
	units := []unitInfo{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))

			var num float64
			var trailing string
			n, _ := fmt.Sscanf(numStr, "%f%s", &num, &trailing)
			if n == 0 {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			if trailing != "" {
				// Extra text after the number, likely an unrecognized unit like "T" in "1TB"
				return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
			}
			if num < 0 {
				return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
			}
			return int64(num * float64(unit.multiplier)), nil
		}
	}

	// Plain number means bytes
	var num int64
	var trailing string
	n, _ := fmt.Sscanf(sizeStr, "%d%s", &num, &trailing)
	if n == 0 || trailing != "" {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}
	return num, nil
}
