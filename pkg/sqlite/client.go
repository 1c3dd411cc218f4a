// Package sqlite opens a local SQLite recipe database through mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Adithya-Monish-Kumar-K/recipe-search/pkg/config"
)

type Client struct {
	DB   *sql.DB
	path string
}

// Open opens the database read-only unless readWrite is set. An empty path
// or ":memory:" opens a private in-memory database.
func Open(ctx context.Context, cfg config.SQLiteConfig, readWrite bool) (*Client, error) {
	dsn := dataSourceName(cfg.Path, readWrite)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", cfg.Path, err)
	}
	// One writer; an in-memory database is per connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite %s: %w", cfg.Path, err)
	}
	return &Client{DB: db, path: cfg.Path}, nil
}

func dataSourceName(path string, readWrite bool) string {
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	mode := "ro"
	if readWrite {
		mode = "rwc"
	}
	q := url.Values{}
	q.Set("mode", mode)
	q.Set("_busy_timeout", "5000")
	return "file:" + path + "?" + q.Encode()
}

func (c *Client) Close() error {
	return c.DB.Close()
}
