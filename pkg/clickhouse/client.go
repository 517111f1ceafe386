package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Client owns the connection pool of the order and alert journal.
//
// The pool authenticates against the server's default database because the
// journal database may not exist until Migrate creates it. Callers qualify
// table names with the configured database.
type Client struct {
	db  *sql.DB
	cfg ClientConfig
}

// NewClient opens the pool and checks the server is reachable within the
// dial timeout.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}

	db := clickhouse.OpenDB(cfg.options())
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", cfg.addr(), err)
	}
	return &Client{db: db, cfg: cfg}, nil
}

// DB returns the pool for the journal writers.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Migrate runs the DDL statements in order. They must be idempotent since
// every start replays them.
func (c *Client) Migrate(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s step %d: %w", c.cfg.Database, i+1, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c ClientConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c ClientConfig) options() *clickhouse.Options {
	protocol := clickhouse.Native
	if c.UseHTTP {
		protocol = clickhouse.HTTP
	}
	settings := clickhouse.Settings{}
	if c.MaxExecTime > 0 {
		settings["max_execution_time"] = int(c.MaxExecTime.Seconds())
	}
	if c.AsyncInsert {
		settings["async_insert"] = 1
		wait := 0
		if c.WaitForAsync {
			wait = 1
		}
		settings["wait_for_async_insert"] = wait
	}
	return &clickhouse.Options{
		Addr:     []string{c.addr()},
		Protocol: protocol,
		Auth: clickhouse.Auth{
			Database: "default",
			Username: c.User,
			Password: c.Password,
		},
		Settings:    settings,
		DialTimeout: c.DialTimeout,
		ReadTimeout: c.ReadTimeout,
	}
}
