package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the sync engine. Values come from
// config.yaml with environment variable overrides; environment variables
// always win. Secrets (passwords) must only come from the environment.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8085"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Internal PostgreSQL store (jobs, ledger, conflicts, audit, canonical tables)
	Database DatabaseConfig `yaml:"database"`

	// Sync engine behavior
	Sync SyncConfig `yaml:"sync"`

	// External connector pooling
	Connector ConnectorConfig `yaml:"connector"`

	// Scheduled incremental syncs from data source refresh intervals
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// DatabaseConfig holds PostgreSQL configuration for the internal store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"parcelsync"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"parcelsync"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// SyncConfig holds sync engine behavior settings.
type SyncConfig struct {
	// TableOrderStr is a comma-separated list defining the serialized
	// processing order for tables within one job.
	TableOrderStr string `yaml:"table_order" env:"SYNC_TABLE_ORDER" env-default:"properties,sales,valuations"`

	// TableOrder is the parsed form of TableOrderStr.
	TableOrder []string `yaml:"-"`

	// BatchSize is the number of rows per load sub-batch.
	BatchSize int `yaml:"batch_size" env:"SYNC_BATCH_SIZE" env-default:"500"`

	// QueueCapacity bounds the pending-job queue.
	QueueCapacity int `yaml:"queue_capacity" env:"SYNC_QUEUE_CAPACITY" env-default:"64"`
}

// ConnectorConfig holds external connection management settings.
type ConnectorConfig struct {
	// TTLMinutes is how long idle external connections are kept alive.
	TTLMinutes int `yaml:"ttl_minutes" env:"CONNECTOR_TTL_MINUTES" env-default:"5"`
	// ConnectTimeoutSeconds bounds the initial connection attempt.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds" env:"CONNECTOR_CONNECT_TIMEOUT_SECONDS" env-default:"30"`
}

// SchedulerConfig controls cron-driven incremental syncs.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled" env:"SCHEDULER_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.Sync.TableOrder = parseTableOrder(cfg.Sync.TableOrderStr)
	if len(cfg.Sync.TableOrder) == 0 {
		return nil, fmt.Errorf("sync.table_order must name at least one table")
	}
	if cfg.Sync.BatchSize <= 0 {
		return nil, fmt.Errorf("sync.batch_size must be positive, got %d", cfg.Sync.BatchSize)
	}

	return cfg, nil
}

func parseTableOrder(value string) []string {
	var order []string
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			order = append(order, name)
		}
	}
	return order
}

// ConnectionString returns a PostgreSQL connection string for the internal store.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
