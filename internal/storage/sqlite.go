package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jasperwreed/agent-index/internal/models"
	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	writeDB *sql.DB // Single connection for writes
	readDB  *sql.DB // Pool of connections for reads
	dbPath  string
}

// NewSQLiteStore opens the index at dbPath with default settings.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	cfg := DefaultConfig()
	cfg.Path = dbPath
	return Open(cfg)
}

// Open creates or opens the index database and brings its schema up to date.
func Open(cfg *Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.Path = filepath.Join(homeDir, ".config", "agent-index", "index.db")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open write connection (single connection)
	writeDB, err := sql.Open("sqlite", cfg.writeDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	// Open read connection pool
	readDB, err := sql.Open("sqlite", cfg.readDSN())
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(cfg.MaxOpenConns)
	readDB.SetMaxIdleConns(cfg.MaxIdleConns)
	readDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &SQLiteStore{
		writeDB: writeDB,
		readDB:  readDB,
		dbPath:  cfg.Path,
	}

	if err := store.initializeDB(cfg); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := store.migrate(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) initializeDB(cfg *Config) error {
	for _, pragma := range cfg.pragmas() {
		if _, err := s.writeDB.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set %s: %w", pragma, err)
		}
	}
	return nil
}

// SyncStates returns every stored cursor keyed by file path.
func (s *SQLiteStore) SyncStates(ctx context.Context) (map[string]models.SyncState, error) {
	rows, err := s.readDB.QueryContext(ctx, querySelectSyncStates)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync state: %w", err)
	}
	defer rows.Close()

	states := make(map[string]models.SyncState)
	for rows.Next() {
		st, err := scanSyncState(rows)
		if err != nil {
			return nil, err
		}
		states[st.Path] = *st
	}
	return states, rows.Err()
}

// Reset removes every derived row and every cursor. The next sync rebuilds
// the index from scratch.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"tool_calls", "messages", "todos", "session_titles", "sessions", "sync_state"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// TableCounts returns the row count of every entity table.
func (s *SQLiteStore) TableCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, table := range []string{"sessions", "messages", "tool_calls", "todos", "sync_state"} {
		var n int
		if err := s.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

func (s *SQLiteStore) Close() error {
	var errs []error

	// Run PRAGMA optimize before closing for better long-term performance
	if _, err := s.writeDB.Exec("PRAGMA optimize"); err != nil {
		errs = append(errs, fmt.Errorf("failed to optimize: %w", err))
	}

	if err := s.readDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close read db: %w", err))
	}

	if err := s.writeDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close write db: %w", err))
	}

	return errors.Join(errs...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncState(row rowScanner) (*models.SyncState, error) {
	var st models.SyncState
	var mtime, synced int64
	if err := row.Scan(&st.Path, &st.Size, &mtime, &st.Offset, &st.Line, &st.Checksum, &synced); err != nil {
		return nil, err
	}
	st.ModTime = time.Unix(0, mtime)
	st.SyncedAt = fromMillis(synced)
	return &st, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// likePattern builds a substring LIKE pattern, escaping the wildcards in s.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func truncateContent(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	return strings.TrimSpace(content[:maxLen]) + "..."
}
