// Package database opens the SQL database shared by the server's resources.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// DefaultDriver is the driver used when Config.Driver is empty.
const DefaultDriver = "sqlite"

// DefaultDSN is the data source used when Config.DSN is empty.
const DefaultDSN = "file:modserver.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// ErrDriverNotRegistered is returned when Config.Driver names an unknown driver.
var ErrDriverNotRegistered = errors.New("database driver not registered")

// Config represents the database connection settings.
type Config struct {
	// Driver is the database/sql driver name.
	Driver string `yaml:"driver" json:"driver" toml:"driver" env:"DB_DRIVER"`

	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn" json:"dsn" toml:"dsn" env:"DB"`

	MaxOpenConnections    int           `yaml:"maxOpenConnections" json:"maxOpenConnections" toml:"maxOpenConnections" env:"DB_MAX_OPEN"`
	MaxIdleConnections    int           `yaml:"maxIdleConnections" json:"maxIdleConnections" toml:"maxIdleConnections" env:"DB_MAX_IDLE"`
	ConnectionMaxLifetime time.Duration `yaml:"connectionMaxLifetime" json:"connectionMaxLifetime" toml:"connectionMaxLifetime" env:"DB_MAX_LIFETIME"`
	ConnectionMaxIdleTime time.Duration `yaml:"connectionMaxIdleTime" json:"connectionMaxIdleTime" toml:"connectionMaxIdleTime" env:"DB_MAX_IDLE_TIME"`

	// PingTimeout bounds the connectivity check in Open.
	PingTimeout time.Duration `yaml:"pingTimeout" json:"pingTimeout" toml:"pingTimeout" env:"DB_PING_TIMEOUT"`
}

// withDefaults fills empty fields.
func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DefaultDriver
	}
	if c.DSN == "" {
		c.DSN = DefaultDSN
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
	return c
}

// Open opens a connection pool and checks that the database is reachable.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	cfg = cfg.withDefaults()
	if !registered(cfg.Driver) {
		return nil, fmt.Errorf("%w: %s", ErrDriverNotRegistered, cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if cfg.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConnections)
	}
	if cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	if cfg.ConnectionMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)
	}
	if cfg.ConnectionMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnectionMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database and close connection: %w", errors.Join(err, closeErr))
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func registered(driver string) bool {
	for _, d := range sql.Drivers() {
		if d == driver {
			return true
		}
	}
	return false
}
