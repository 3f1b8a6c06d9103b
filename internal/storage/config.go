package storage

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds database configuration settings
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
	CacheSizeKB     int
}

// DefaultConfig returns default database configuration
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		BusyTimeout:     5 * time.Second,
		CacheSizeKB:     64000,
	}
}

// pragmas returns the file-level SQLite PRAGMA statements run once on open
func (c *Config) pragmas() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = memory",
		"PRAGMA cache_size = -" + formatInt(c.CacheSizeKB),
	}
}

// writeDSN opens the writer connection. Transactions take the write lock up
// front so two processes cannot both read a cursor and then advance it.
func (c *Config) writeDSN() string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+formatMilliseconds(c.BusyTimeout)+")")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return c.Path + "?" + q.Encode()
}

func (c *Config) readDSN() string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+formatMilliseconds(c.BusyTimeout)+")")
	q.Add("_pragma", "foreign_keys(1)")
	return c.Path + "?" + q.Encode()
}

func formatMilliseconds(d time.Duration) string {
	return formatInt(int(d.Milliseconds()))
}

func formatInt(i int) string {
	return fmt.Sprintf("%d", i)
}
