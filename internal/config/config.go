package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Config holds the evaluation settings. Values come from defaults, then an
// optional YAML file named by LASTTRIPS_CONFIG, then environment variables.
type Config struct {
	DBPath   string `yaml:"db_path" validate:"required"`
	GTFSPath string `yaml:"gtfs_path"` // zip or directory; empty means download
	GTFSDir  string `yaml:"gtfs_dir" validate:"required"`
	GTFSURL  string `yaml:"gtfs_url" validate:"required,url"`
	Refresh  bool   `yaml:"refresh_gtfs"` // re-import when the published feed changed

	ArchiveBucket       string `yaml:"archive_bucket" validate:"required"`
	ArchiveRegion       string `yaml:"archive_region" validate:"required"`
	ArchiveEndpoint     string `yaml:"archive_endpoint" validate:"omitempty,url"` // S3-compatible server; empty uses AWS
	ArchiveAnonymous    bool   `yaml:"archive_anonymous"`                         // unsigned requests for public buckets
	ArchiveObjectPrefix string `yaml:"archive_prefix"`
	CacheDir            string `yaml:"cache_dir" validate:"required"`
	MemoryCacheSize     int    `yaml:"memory_cache" validate:"gt=0"`

	Timezone        string `yaml:"timezone" validate:"required"`
	HorizonMinutes  int    `yaml:"horizon_minutes" validate:"gt=0"`
	LookbackMinutes int    `yaml:"lookback_minutes" validate:"gt=0"`
	StartDate       string `yaml:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate         string `yaml:"end_date" validate:"required,datetime=2006-01-02"`

	MetricsAddr string `yaml:"metrics_addr"` // empty disables the status server
	HTMLReport  string `yaml:"html_report"`  // empty disables the report file
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`

	loc *time.Location
}

func defaults() Config {
	return Config{
		DBPath:          "./lasttrips.db",
		GTFSDir:         "./data",
		GTFSURL:         "https://cdn.mbta.com/MBTA_GTFS.zip",
		ArchiveBucket:   "mbta-gtfs-s3",
		ArchiveRegion:   "us-east-1",
		CacheDir:        "./output",
		MemoryCacheSize: 128,
		Timezone:        "America/New_York",
		HorizonMinutes:  1619,
		LookbackMinutes: 30,
		StartDate:       "2020-07-20",
		EndDate:         "2020-07-26",
		LogLevel:        "info",
	}
}

// Load reads the configuration. A .env file in the working directory is
// loaded first when present; existing environment variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("LASTTRIPS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.DBPath = envStr("LASTTRIPS_DB_PATH", cfg.DBPath)
	cfg.GTFSPath = envStr("LASTTRIPS_GTFS_PATH", cfg.GTFSPath)
	cfg.GTFSDir = envStr("LASTTRIPS_GTFS_DIR", cfg.GTFSDir)
	cfg.GTFSURL = envStr("LASTTRIPS_GTFS_URL", cfg.GTFSURL)
	cfg.Refresh = envBool("LASTTRIPS_REFRESH_GTFS", cfg.Refresh)
	cfg.ArchiveBucket = envStr("S3_BUCKET_NAME", cfg.ArchiveBucket)
	cfg.ArchiveRegion = envStr("LASTTRIPS_ARCHIVE_REGION", cfg.ArchiveRegion)
	cfg.ArchiveEndpoint = envStr("LASTTRIPS_ARCHIVE_ENDPOINT", cfg.ArchiveEndpoint)
	cfg.ArchiveAnonymous = envBool("LASTTRIPS_ARCHIVE_ANONYMOUS", cfg.ArchiveAnonymous)
	cfg.ArchiveObjectPrefix = envStr("LASTTRIPS_ARCHIVE_PREFIX", cfg.ArchiveObjectPrefix)
	cfg.CacheDir = envStr("LASTTRIPS_CACHE_DIR", cfg.CacheDir)
	cfg.MemoryCacheSize = envInt("LASTTRIPS_MEMORY_CACHE", cfg.MemoryCacheSize)
	cfg.Timezone = envStr("LASTTRIPS_TZ", cfg.Timezone)
	cfg.HorizonMinutes = envInt("LASTTRIPS_HORIZON_MINUTES", cfg.HorizonMinutes)
	cfg.LookbackMinutes = envInt("LASTTRIPS_LOOKBACK_MINUTES", cfg.LookbackMinutes)
	cfg.StartDate = envStr("LASTTRIPS_START_DATE", cfg.StartDate)
	cfg.EndDate = envStr("LASTTRIPS_END_DATE", cfg.EndDate)
	cfg.MetricsAddr = envStr("LASTTRIPS_METRICS_ADDR", cfg.MetricsAddr)
	cfg.HTMLReport = envStr("LASTTRIPS_HTML_REPORT", cfg.HTMLReport)
	cfg.LogLevel = strings.ToLower(envStr("LASTTRIPS_LOG_LEVEL", cfg.LogLevel))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	c.loc = loc

	start, _ := time.Parse(dateLayout, c.StartDate)
	end, _ := time.Parse(dateLayout, c.EndDate)
	if end.Before(start) {
		return fmt.Errorf("invalid config: end date %s before start date %s", c.EndDate, c.StartDate)
	}
	return nil
}

// Location is the agency time zone all service dates are interpreted in.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Dates returns every service date from StartDate to EndDate inclusive,
// each at local midnight.
func (c *Config) Dates() []time.Time {
	loc := c.Location()
	start, err := time.ParseInLocation(dateLayout, c.StartDate, loc)
	if err != nil {
		return nil
	}
	end, err := time.ParseInLocation(dateLayout, c.EndDate, loc)
	if err != nil {
		return nil
	}

	var dates []time.Time
	for d := start; !d.After(end); d = time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc) {
		dates = append(dates, d)
	}
	return dates
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
