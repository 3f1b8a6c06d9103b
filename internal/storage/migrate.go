package storage

import (
	"context"
	"fmt"
	"time"
)

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			queryCreateSessionsTable,
			queryCreateMessagesTable,
			queryCreateToolCallsTable,
			queryCreateTodosTable,
			queryCreateSyncStateTable,
		},
	},
	{
		version: 2,
		statements: []string{
			queryCreateMessagesFTS,
			queryCreateMessagesInsertTrigger,
			queryCreateMessagesDeleteTrigger,
			queryCreateMessagesUpdateTrigger,
			queryRebuildMessagesFTS,
		},
	},
	{
		version: 3,
		statements: []string{
			queryCreateIndexMessagesCreated,
			queryCreateIndexMessagesAPIID,
			queryCreateIndexToolCallsName,
			queryCreateIndexToolCallsUseID,
			queryCreateIndexSessionsBranch,
			queryCreateIndexSessionsProject,
			queryCreateIndexSessionsLastSeen,
			queryCreateIndexTodosStatus,
		},
	},
	{
		version: 4,
		statements: []string{
			queryCreateSessionTitlesTable,
		},
	},
}

// SchemaVersion returns the highest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.readDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	return v, err
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.writeDB.ExecContext(ctx, queryCreateSchemaVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_version: %w", err)
	}

	var current int
	if err := s.writeDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Another process may have migrated while this one waited for the lock.
	var current int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return err
	}
	if current >= m.version {
		return nil
	}

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
		m.version, time.Now().UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}
