package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	PublishedRoot string
	WorkspaceRoot string
	RegistryPath  string
	Regions       []string
	Models        []string

	ArchiveTimeout  time.Duration
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Schedule is the cron expression driving serve mode.
	Schedule   string
	LedgerPath string

	// Cycle notifications (feature-flagged via NOTIFY_ENABLED).
	NotifyEnabled bool
	KafkaBrokers  []string
	KafkaTopic    string

	Registry *Registry
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	archiveTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("ARCHIVE_TIMEOUT", "60s"))
	if err != nil || archiveTimeout <= 0 {
		return nil, errors.New("invalid ARCHIVE_TIMEOUT")
	}

	workspaceRoot := sharedcfg.EnvOrDefault("WORKSPACE_ROOT", "./data/workspace")
	cfg := &Config{
		PublishedRoot:   sharedcfg.EnvOrDefault("PUBLISHED_ROOT", "./data/published"),
		WorkspaceRoot:   workspaceRoot,
		RegistryPath:    os.Getenv("REGISTRY_PATH"),
		Regions:         splitList(os.Getenv("REGIONS")),
		Models:          splitList(os.Getenv("MODELS")),
		ArchiveTimeout:  archiveTimeout,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		Schedule:        sharedcfg.EnvOrDefault("SCHEDULE", "15 */6 * * *"),
		LedgerPath:      sharedcfg.EnvOrDefault("LEDGER_PATH", workspaceRoot+"/ledger.db"),
		NotifyEnabled:   os.Getenv("NOTIFY_ENABLED") == "true",
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:      sharedcfg.EnvOrDefault("KAFKA_TOPIC", "ffgs-cycles"),
	}

	if cfg.PublishedRoot == "" || cfg.WorkspaceRoot == "" {
		return nil, errors.New("PUBLISHED_ROOT and WORKSPACE_ROOT are required")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid SCHEDULE: %w", err)
	}
	if cfg.NotifyEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("NOTIFY_ENABLED is true but KAFKA_BROKERS is empty")
	}

	registry, err := LoadRegistry(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}
	regions, models, err := registry.Select(cfg.Regions, cfg.Models)
	if err != nil {
		return nil, err
	}
	cfg.Registry = registry
	cfg.Regions = regions
	cfg.Models = models

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
