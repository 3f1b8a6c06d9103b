package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jasperwreed/agent-index/internal/models"
)

// todoFileEntry is one item of a todos/<session>.json list.
type todoFileEntry struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"activeForm"`
}

// todoFileSession derives the owning session from a todo list file name.
// Subagent lists are named <session>-agent-<agent>.json.
func todoFileSession(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), ".json")
	if i := strings.Index(stem, "-agent-"); i > 0 {
		return stem[:i]
	}
	return stem
}

// syncTodoFile upserts the todos of one list file into the project of its
// session. It reports false when the file was not applied: it is unchanged,
// unreadable as a list, or belongs to a session that is not indexed yet.
func (e *Engine) syncTodoFile(ctx context.Context, log *logrus.Entry, path string, force bool) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	tx, err := e.store.BeginFile(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	prior, err := tx.SyncState(path)
	if err != nil {
		return false, err
	}
	if prior != nil && !force && prior.Size == info.Size() && prior.ModTime.Equal(info.ModTime()) {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var entries []todoFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.WithError(err).Debug("skipping todo file that is not a list")
		return false, nil
	}

	sessionID := todoFileSession(path)
	project, err := tx.SessionProject(sessionID)
	if err != nil {
		return false, err
	}
	if project == "" {
		log.WithField("session", sessionID).Debug("todo file belongs to an unindexed session")
		return false, nil
	}

	for _, entry := range entries {
		if strings.TrimSpace(entry.Content) == "" {
			continue
		}
		status := entry.Status
		if status == "" {
			status = "pending"
		}
		todo := &models.Todo{
			Project:    project,
			Content:    entry.Content,
			Status:     status,
			ActiveForm: entry.ActiveForm,
			SessionID:  sessionID,
			UpdatedAt:  info.ModTime(),
		}
		if err := tx.UpsertTodo(todo); err != nil {
			return false, err
		}
	}

	state := &models.SyncState{
		Path:     path,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Offset:   info.Size(),
		SyncedAt: e.now(),
	}
	if err := tx.PutSyncState(state); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit todo file: %w", err)
	}
	return true, nil
}
