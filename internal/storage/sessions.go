package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jasperwreed/agent-index/internal/models"
)

// ListSessions returns sessions whose project contains the filter, most recent first.
func (s *SQLiteStore) ListSessions(ctx context.Context, project string, limit int) ([]models.Session, error) {
	rows, err := s.readDB.QueryContext(ctx, querySessions, likePattern(project), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		var started, lastSeen int64
		if err := rows.Scan(&sess.ID, &sess.Project, &sess.SourcePath, &sess.CWD, &sess.GitBranch,
			&sess.Model, &started, &lastSeen, &sess.MessageCount, &sess.Display); err != nil {
			return nil, err
		}
		sess.StartedAt = fromMillis(started)
		sess.LastSeenAt = fromMillis(lastSeen)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetSession resolves a session by id or unique id prefix and loads its
// messages in sequence order.
func (s *SQLiteStore) GetSession(ctx context.Context, idPrefix string) (*models.Session, error) {
	idPrefix = strings.TrimSpace(idPrefix)
	if idPrefix == "" {
		return nil, fmt.Errorf("%w: empty session id", models.ErrInvalidQuery)
	}

	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	rows, err := s.readDB.QueryContext(ctx, querySessionIDsByPrefix, r.Replace(idPrefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	switch {
	case len(ids) == 0:
		return nil, fmt.Errorf("session %q: %w", idPrefix, models.ErrNotFound)
	case len(ids) > 1 && ids[0] != idPrefix:
		return nil, fmt.Errorf("%w: session prefix %q is ambiguous", models.ErrInvalidQuery, idPrefix)
	}

	return s.sessionByID(ctx, ids[0])
}

func (s *SQLiteStore) sessionByID(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	var started, lastSeen int64
	err := s.readDB.QueryRowContext(ctx, querySelectSessionRow, id).Scan(
		&sess.ID, &sess.Project, &sess.SourcePath, &sess.CWD, &sess.GitBranch,
		&sess.Model, &started, &lastSeen,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	sess.StartedAt = fromMillis(started)
	sess.LastSeenAt = fromMillis(lastSeen)

	err = s.readDB.QueryRowContext(ctx, querySessionTitle, id).Scan(&sess.Display)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load session title: %w", err)
	}

	rows, err := s.readDB.QueryContext(ctx, querySessionMessages, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Message
		var created int64
		if err := rows.Scan(&m.SessionID, &m.Seq, &m.UUID, &m.ParentUUID, &m.APIMessageID,
			&m.Role, &m.Content, &m.Model,
			&m.Usage.InputTokens, &m.Usage.OutputTokens, &m.Usage.CacheCreationTokens, &m.Usage.CacheReadTokens,
			&created); err != nil {
			return nil, err
		}
		m.Timestamp = fromMillis(created)
		sess.Messages = append(sess.Messages, m)
	}
	sess.MessageCount = len(sess.Messages)
	return &sess, rows.Err()
}

// ListTodos returns todos whose project contains the filter. An empty status
// list matches every status.
func (s *SQLiteStore) ListTodos(ctx context.Context, project string, statuses []string) ([]models.Todo, error) {
	query := queryTodos
	args := []any{likePattern(project)}
	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
		query = strings.Replace(query, "ORDER BY", "AND status IN ("+placeholders+")\n\t\tORDER BY", 1)
		for _, st := range statuses {
			args = append(args, st)
		}
	}

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	defer rows.Close()

	var todos []models.Todo
	for rows.Next() {
		var td models.Todo
		var created, updated int64
		if err := rows.Scan(&td.Project, &td.Content, &td.Status, &td.ActiveForm, &td.SessionID,
			&created, &updated); err != nil {
			return nil, err
		}
		td.CreatedAt = fromMillis(created)
		td.UpdatedAt = fromMillis(updated)
		todos = append(todos, td)
	}
	return todos, rows.Err()
}

// Search runs an FTS5 match expression over message content, best match first.
func (s *SQLiteStore) Search(ctx context.Context, match string, limit int) ([]models.SearchResult, error) {
	rows, err := s.readDB.QueryContext(ctx, querySearchMessages, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		var created int64
		if err := rows.Scan(&r.SessionID, &r.Project, &r.Seq, &r.Role, &created, &r.Snippet, &r.Score); err != nil {
			return nil, err
		}
		r.Timestamp = fromMillis(created)
		r.Snippet = truncateContent(r.Snippet, 300)
		results = append(results, r)
	}
	return results, rows.Err()
}
