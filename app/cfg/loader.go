package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/shelfwatch.db" description:"SQLite database file"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" default:"http://localhost:8080" description:"Public base URL used in generated feeds"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Ingestion
	Schedule         string `long:"schedule" env:"INGEST_SCHEDULE" default:"@every 5m" description:"Cron schedule for ingestion passes"`
	PollingEnabled   bool   `long:"polling-enabled" env:"POLLING_ENABLED" description:"Enable polling of sources"`
	WorkerCount      int    `long:"worker-count" env:"WORKER_COUNT" default:"4" description:"Number of sources processed concurrently"`
	FetchTimeout     int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15" description:"Per-request fetch timeout in seconds"`
	SourceBudget     int    `long:"source-budget" env:"SOURCE_BUDGET" default:"60" description:"Time budget per source in seconds"`
	RunTimeout       int    `long:"run-timeout" env:"RUN_TIMEOUT" default:"600" description:"Time budget per ingestion pass in seconds"`
	MaxItems         int    `long:"max-items" env:"MAX_ITEMS_PER_SOURCE" default:"50" description:"Maximum entries processed per source per pass"`
	FailureThreshold int    `long:"failure-threshold" env:"FAILURE_THRESHOLD" default:"5" description:"Consecutive soft failures before a source is marked failed"`
	SourcesDir       string `long:"sources-dir" env:"SOURCES_DIR" description:"Directory with YAML subscription seeds (optional)"`

	// Optional collaborators
	RedisAddr    string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for source leases and cover hints (optional)"`
	KafkaBrokers string `long:"kafka-brokers" env:"KAFKA_BROKERS" description:"Comma separated Kafka brokers for loved-book events (optional)"`
	KafkaTopic   string `long:"kafka-topic" env:"KAFKA_TOPIC" default:"shelfwatch.loved" description:"Kafka topic for loved-book events"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Shelfwatch/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load reads configuration from a .env file (if present), the environment and os.Args.
// It returns nil, nil when help was requested.
func Load() (*Cfg, error) {
	_ = godotenv.Load()
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:           raw.DBPath,
		Port:             raw.Port,
		BaseUrl:          raw.BaseUrl,
		APIAccessKey:     raw.APIAccessKey,
		Schedule:         raw.Schedule,
		PollingEnabled:   raw.PollingEnabled,
		WorkerCount:      raw.WorkerCount,
		FetchTimeout:     time.Duration(raw.FetchTimeout) * time.Second,
		SourceBudget:     time.Duration(raw.SourceBudget) * time.Second,
		RunTimeout:       time.Duration(raw.RunTimeout) * time.Second,
		MaxItems:         raw.MaxItems,
		FailureThreshold: raw.FailureThreshold,
		SourcesDir:       raw.SourcesDir,
		RedisAddr:        raw.RedisAddr,
		KafkaBrokers:     splitList(raw.KafkaBrokers),
		KafkaTopic:       raw.KafkaTopic,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	switch {
	case c.DBPath == "":
		return fmt.Errorf("db-path is required")
	case c.WorkerCount < 1:
		return fmt.Errorf("worker-count must be at least 1, got %d", c.WorkerCount)
	case c.FetchTimeout <= 0:
		return fmt.Errorf("fetch-timeout must be positive")
	case c.SourceBudget < c.FetchTimeout:
		return fmt.Errorf("source-budget (%s) must not be shorter than fetch-timeout (%s)", c.SourceBudget, c.FetchTimeout)
	case c.RunTimeout <= 0:
		return fmt.Errorf("run-timeout must be positive")
	case c.MaxItems < 1:
		return fmt.Errorf("max-items must be at least 1, got %d", c.MaxItems)
	case c.FailureThreshold < 1:
		return fmt.Errorf("failure-threshold must be at least 1, got %d", c.FailureThreshold)
	}
	return nil
}

// Warnings lists settings that are valid but leave the service doing nothing useful.
func (c *Cfg) Warnings() []string {
	var warnings []string
	if !c.PollingEnabled {
		warnings = append(warnings, "polling is disabled, ingestion passes will not fetch any source (set --polling-enabled or POLLING_ENABLED=true)")
	}
	if c.APIAccessKey == "" {
		warnings = append(warnings, "API endpoints are disabled, sources can only be added through --sources-dir (set --api-key or API_ACCESS_KEY)")
	}
	return warnings
}

// ApplyTimezone sets time.Local to the configured zone.
func (c *Cfg) ApplyTimezone() error {
	if c.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	time.Local = loc
	return nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
