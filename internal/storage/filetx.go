package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jasperwreed/agent-index/internal/models"
)

// FileTx is the write transaction covering one transcript file. Nothing it
// writes is visible to readers until Commit.
type FileTx struct {
	ctx context.Context
	tx  *sql.Tx

	insertMessage  *sql.Stmt
	usageCounted   *sql.Stmt
	insertToolCall *sql.Stmt
	completeTool   *sql.Stmt
	upsertTodo     *sql.Stmt
}

// BeginFile starts a file transaction. It blocks while another process holds
// the write lock, up to the configured busy timeout.
func (s *SQLiteStore) BeginFile(ctx context.Context) (*FileTx, error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	ft := &FileTx{ctx: ctx, tx: tx}
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&ft.insertMessage, queryInsertMessage},
		{&ft.usageCounted, querySelectUsageCounted},
		{&ft.insertToolCall, queryInsertToolCall},
		{&ft.completeTool, queryCompleteToolCall},
		{&ft.upsertTodo, queryUpsertTodo},
	}
	for _, st := range stmts {
		prepared, err := tx.PrepareContext(ctx, st.query)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to prepare statement: %w", err)
		}
		*st.dst = prepared
	}
	return ft, nil
}

// SyncState returns the cursor for path as seen by this transaction, or nil.
func (t *FileTx) SyncState(path string) (*models.SyncState, error) {
	st, err := scanSyncState(t.tx.QueryRowContext(t.ctx, querySelectSyncState, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}
	return st, nil
}

// PutSyncState records the cursor. It must be the last write of the transaction.
func (t *FileTx) PutSyncState(st *models.SyncState) error {
	_, err := t.tx.ExecContext(t.ctx, queryUpsertSyncState,
		st.Path, st.Size, st.ModTime.UnixNano(), st.Offset, st.Line, st.Checksum, toMillis(st.SyncedAt))
	if err != nil {
		return fmt.Errorf("failed to write sync state: %w", err)
	}
	return nil
}

// Session loads the session row, creating a bare one if it does not exist yet.
func (t *FileTx) Session(id, project, sourcePath string) (*models.Session, error) {
	if _, err := t.tx.ExecContext(t.ctx, queryEnsureSession, id, project, sourcePath); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	var sess models.Session
	var started, lastSeen int64
	err := t.tx.QueryRowContext(t.ctx, querySelectSessionRow, id).Scan(
		&sess.ID, &sess.Project, &sess.SourcePath, &sess.CWD, &sess.GitBranch,
		&sess.Model, &started, &lastSeen,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	sess.StartedAt = fromMillis(started)
	sess.LastSeenAt = fromMillis(lastSeen)
	return &sess, nil
}

// UpdateSession overwrites the mutable session attributes.
func (t *FileTx) UpdateSession(sess *models.Session) error {
	_, err := t.tx.ExecContext(t.ctx, queryUpdateSession,
		sess.CWD, sess.GitBranch, sess.Model, toMillis(sess.StartedAt), toMillis(sess.LastSeenAt), sess.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// ResetSession drops the messages and tool calls of a session and clears the
// attributes derived from them, so a replaced file can be ingested from the start.
func (t *FileTx) ResetSession(id string) error {
	if _, err := t.tx.ExecContext(t.ctx, queryClearSession, id); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if _, err := t.tx.ExecContext(t.ctx, queryDeleteSessionToolCalls, id); err != nil {
		return fmt.Errorf("failed to clear tool calls: %w", err)
	}
	if _, err := t.tx.ExecContext(t.ctx, queryDeleteSessionMessages, id); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// InsertMessage stores m unless (session, seq) already exists. Usage carried
// by an earlier fragment of the same API message is not counted again.
func (t *FileTx) InsertMessage(m *models.Message) (bool, error) {
	if m.APIMessageID != "" && !m.Usage.IsZero() {
		var one int
		err := t.usageCounted.QueryRowContext(t.ctx, m.SessionID, m.APIMessageID, m.Seq).Scan(&one)
		switch {
		case err == nil:
			m.Usage = models.TokenUsage{}
		case !errors.Is(err, sql.ErrNoRows):
			return false, fmt.Errorf("failed to check usage: %w", err)
		}
	}

	res, err := t.insertMessage.ExecContext(t.ctx,
		m.SessionID, m.Seq, nullString(m.UUID), nullString(m.ParentUUID), nullString(m.APIMessageID),
		m.Role, m.Content, nullString(m.Model),
		m.Usage.InputTokens, m.Usage.OutputTokens, m.Usage.CacheCreationTokens, m.Usage.CacheReadTokens,
		toMillis(m.Timestamp),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert message %d: %w", m.Seq, err)
	}
	return affected(res)
}

// InsertToolCall stores the start of a tool invocation.
func (t *FileTx) InsertToolCall(c *models.ToolCall) (bool, error) {
	res, err := t.insertToolCall.ExecContext(t.ctx,
		c.SessionID, c.MessageSeq, c.BlockIndex, nullString(c.ToolUseID), c.Name, nullString(c.Input),
		toMillis(c.StartedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert tool call %s: %w", c.Name, err)
	}
	return affected(res)
}

// CompleteToolCall attaches a result to the open call with the given tool-use
// id. It reports false when no open call matches.
func (t *FileTx) CompleteToolCall(sessionID, toolUseID, output string, isError bool, at time.Time) (bool, error) {
	ms := toMillis(at)
	res, err := t.completeTool.ExecContext(t.ctx, output, isError, ms, ms, ms, sessionID, toolUseID)
	if err != nil {
		return false, fmt.Errorf("failed to complete tool call %s: %w", toolUseID, err)
	}
	return affected(res)
}

// PutSessionTitle records the display title of a session. The first title
// recorded for a session is kept.
func (t *FileTx) PutSessionTitle(sessionID, project, display string, at time.Time) (bool, error) {
	res, err := t.tx.ExecContext(t.ctx, queryInsertSessionTitle, sessionID, project, display, toMillis(at))
	if err != nil {
		return false, fmt.Errorf("failed to store title of %s: %w", sessionID, err)
	}
	return affected(res)
}

// SessionProject returns the project of an indexed session, or "" when the
// session is unknown.
func (t *FileTx) SessionProject(sessionID string) (string, error) {
	var project string
	err := t.tx.QueryRowContext(t.ctx, querySelectSessionProject, sessionID).Scan(&project)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up session %s: %w", sessionID, err)
	}
	return project, nil
}

// UpsertTodo inserts a todo or updates the existing one with the same
// normalized description in the project. Older events never overwrite newer ones.
func (t *FileTx) UpsertTodo(todo *models.Todo) error {
	ts := toMillis(todo.UpdatedAt)
	_, err := t.upsertTodo.ExecContext(t.ctx,
		todo.Project, strings.TrimSpace(todo.Content), NormalizeDescription(todo.Content), todo.Status,
		nullString(todo.ActiveForm), nullString(todo.SessionID), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert todo: %w", err)
	}
	return nil
}

func (t *FileTx) Commit() error {
	return t.tx.Commit()
}

// Rollback discards the transaction. It is safe to call after Commit.
func (t *FileTx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// NormalizeDescription is the identity key of a todo within a project.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
