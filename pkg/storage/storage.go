package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/invoicegate/pkg/billing"
	"github.com/platinummonkey/invoicegate/pkg/observability"
	"github.com/platinummonkey/invoicegate/pkg/storage/memory"
	"github.com/platinummonkey/invoicegate/pkg/storage/sqlstore"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config for the storage backend
type Config struct {
	Driver string `yaml:"driver"` // "sqlite", "postgres", "memory"
	DSN    string `yaml:"dsn"`

	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:      DriverSQLite,
		DSN:         "file:invoicegate.db",
		MaxConns:    20,
		MinConns:    2,
		Timeout:     10 * time.Second,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
		BusyTimeout: 5 * time.Second,
	}
}

// Validate checks the driver is known and has what it needs
func (c Config) Validate() error {
	switch normalizeDriver(c.Driver) {
	case DriverMemory, DriverSQLite:
		return nil
	case DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("dsn is required for postgres storage")
		}
		if c.MaxConns < 0 || c.MinConns < 0 {
			return fmt.Errorf("connection pool sizes must not be negative")
		}
		if c.MinConns > c.MaxConns && c.MaxConns > 0 {
			return fmt.Errorf("min conns %d exceeds max conns %d", c.MinConns, c.MaxConns)
		}
		return nil
	default:
		return fmt.Errorf("invalid storage driver: %s (must be sqlite, postgres, or memory)", c.Driver)
	}
}

// Open creates the configured invoice store. SQL stores are pinged and
// migrated before they are returned.
func Open(ctx context.Context, cfg Config, metrics *observability.Metrics) (billing.InvoiceStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driver := normalizeDriver(cfg.Driver)
	if driver == DriverMemory {
		return memory.New(), nil
	}

	store, err := sqlstore.Open(ctx, sqlstore.ConnectionConfig{
		Driver:      driver,
		DSN:         cfg.DSN,
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		Timeout:     cfg.Timeout,
		MaxLifetime: cfg.MaxLifetime,
		MaxIdleTime: cfg.MaxIdleTime,
		BusyTimeout: cfg.BusyTimeout,
	}, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	return store, nil
}

func normalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql", "pq":
		return DriverPostgres
	case "memory", "mem":
		return DriverMemory
	default:
		return driver
	}
}
