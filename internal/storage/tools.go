package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jasperwreed/agent-index/internal/models"
)

func scanToolStat(row rowScanner) (*models.ToolStat, error) {
	var st models.ToolStat
	var mean float64
	var maxMs, last int64
	if err := row.Scan(&st.Name, &st.Calls, &st.Completed, &st.Errors, &mean, &maxMs, &last); err != nil {
		return nil, err
	}
	st.MeanDuration = time.Duration(mean * float64(time.Millisecond))
	st.MaxDuration = time.Duration(maxMs) * time.Millisecond
	st.LastUsed = fromMillis(last)
	return &st, nil
}

// ToolStats aggregates every tool by name, most used first.
func (s *SQLiteStore) ToolStats(ctx context.Context) ([]models.ToolStat, error) {
	rows, err := s.readDB.QueryContext(ctx, queryToolStats)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool stats: %w", err)
	}
	defer rows.Close()

	var out []models.ToolStat
	for rows.Next() {
		st, err := scanToolStat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// ToolStat aggregates a single tool. It returns nil when the tool was never called.
func (s *SQLiteStore) ToolStat(ctx context.Context, name string) (*models.ToolStat, error) {
	st, err := scanToolStat(s.readDB.QueryRowContext(ctx, queryToolStat, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tool %s: %w", name, err)
	}
	return st, nil
}

// ToolCalls returns the most recent calls of a tool.
func (s *SQLiteStore) ToolCalls(ctx context.Context, name string, limit int) ([]models.ToolCall, error) {
	rows, err := s.readDB.QueryContext(ctx, queryToolCallsByName, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer rows.Close()

	var out []models.ToolCall
	for rows.Next() {
		var c models.ToolCall
		var started int64
		var completed, duration sql.NullInt64
		if err := rows.Scan(&c.SessionID, &c.MessageSeq, &c.BlockIndex, &c.ToolUseID, &c.Name,
			&c.Input, &c.Output, &c.IsError, &started, &completed, &duration, &c.Project); err != nil {
			return nil, err
		}
		c.StartedAt = fromMillis(started)
		if completed.Valid {
			at := fromMillis(completed.Int64)
			c.CompletedAt = &at
		}
		if duration.Valid {
			d := time.Duration(duration.Int64) * time.Millisecond
			c.Duration = &d
		}
		c.Input = truncateContent(c.Input, 2000)
		c.Output = truncateContent(c.Output, 2000)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ToolNames lists every tool name seen.
func (s *SQLiteStore) ToolNames(ctx context.Context) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx, queryToolNames)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
