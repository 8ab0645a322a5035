package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/payvault-backend/pkg/config"
	"github.com/angelmondragon/payvault-backend/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Client owns the pooled GORM connection shared by repositories.
type Client struct {
	conn   *gorm.DB
	driver string
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the vault database. sqlite is accepted for local runs against a file.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	driver := NormalizeDriver(cfg.Driver)

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", driver, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	pool := []struct {
		set   bool
		apply func()
	}{
		{cfg.MaxOpenConns > 0, func() { sqlDB.SetMaxOpenConns(cfg.MaxOpenConns) }},
		{cfg.MaxIdleConns > 0, func() { sqlDB.SetMaxIdleConns(cfg.MaxIdleConns) }},
		{cfg.ConnMaxLifetime > 0, func() { sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime) }},
		{cfg.ConnMaxIdleTime > 0, func() { sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime) }},
	}
	for _, p := range pool {
		if p.set {
			p.apply()
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging %s: %w", driver, err)
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         driver,
			"max_open_conns": cfg.MaxOpenConns,
		}), "database connection established")
	}
	return &Client{conn: conn, driver: driver}, nil
}

// Wrap adopts an already-open connection.
func Wrap(conn *gorm.DB) *Client {
	driver := DriverPostgres
	if conn.Dialector != nil && conn.Dialector.Name() == "sqlite" {
		driver = DriverSQLite
	}
	return &Client{conn: conn, driver: driver}
}

// NormalizeDriver maps configured driver names onto the supported set, defaulting to postgres.
func NormalizeDriver(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DriverPostgres, "postgresql", "pgx":
		return DriverPostgres
	case DriverSQLite, "sqlite3":
		return DriverSQLite
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Driver reports which of DriverPostgres or DriverSQLite backs the client.
func (c *Client) Driver() string {
	return c.driver
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction. An error or panic from fn rolls it back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}
