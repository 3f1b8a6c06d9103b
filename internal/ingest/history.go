package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jasperwreed/agent-index/internal/models"
)

// historyEntry is one line of the prompt history. Only entries naming a
// session, a project and a time are used.
type historyEntry struct {
	Display   string   `json:"display"`
	Timestamp *float64 `json:"timestamp"`
	Project   string   `json:"project"`
	SessionID string   `json:"sessionId"`
}

// syncHistory reads the prompt history from its cursor and stores the first
// prompt of each session as its display title. A missing file is not an error.
func (e *Engine) syncHistory(ctx context.Context, log *logrus.Entry, path string, prior *models.SyncState, force bool) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if prior != nil && !force && info.Size() == prior.Size && info.ModTime().Equal(prior.ModTime) {
		return 0, nil
	}

	tx, err := e.store.BeginFile(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if prior, err = tx.SyncState(path); err != nil {
		return 0, err
	}
	var offset, line int64
	if prior != nil && !force && info.Size() >= prior.Size {
		offset, line = prior.Offset, prior.Line
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	stored := 0
	r := bufio.NewReader(io.LimitReader(f, info.Size()-offset))
	for {
		raw, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// A partial last line is read again once it is complete.
			break
		}
		if err != nil {
			return 0, err
		}
		offset += int64(len(raw))
		line++

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var entry historyEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			log.WithError(err).WithField("line", line).Debug("skipping malformed history line")
			continue
		}
		display := strings.TrimSpace(entry.Display)
		if entry.SessionID == "" || entry.Project == "" || entry.Timestamp == nil || display == "" {
			continue
		}

		ok, err := tx.PutSessionTitle(entry.SessionID, entry.Project, display, time.UnixMilli(int64(*entry.Timestamp)))
		if err != nil {
			return 0, err
		}
		if ok {
			stored++
		}
	}

	state := &models.SyncState{
		Path:     path,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Offset:   offset,
		Line:     line,
		SyncedAt: e.now(),
	}
	if err := tx.PutSyncState(state); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit history: %w", err)
	}

	log.WithFields(logrus.Fields{"titles": stored, "offset": offset}).Debug("history synced")
	return stored, nil
}
