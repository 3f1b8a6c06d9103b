package ingest

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jasperwreed/agent-index/internal/capture"
	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/scanner"
	"github.com/jasperwreed/agent-index/internal/storage"
)

// applier writes the records of one file into its transaction.
type applier struct {
	tx   *storage.FileTx
	file scanner.FileInfo
	log  *logrus.Entry

	sess        *models.Session
	records     int
	parseErrors int
}

func (a *applier) session() (*models.Session, error) {
	if a.sess != nil {
		return a.sess, nil
	}
	sess, err := a.tx.Session(a.file.SessionID, a.file.Project, a.file.Path)
	if err != nil {
		return nil, err
	}
	a.sess = sess
	return sess, nil
}

func (a *applier) apply(rec capture.Record, line int64) error {
	switch r := rec.(type) {
	case *capture.ParseError:
		a.parseErrors++
		a.log.WithError(r.Err).WithField("line", r.Line).Debug("skipping malformed line")
		return nil
	case *capture.Unknown:
		return nil
	}

	sess, err := a.session()
	if err != nil {
		return err
	}

	switch r := rec.(type) {
	case *capture.SessionMeta:
		if sess.CWD == "" {
			sess.CWD = r.CWD
		}
		if r.GitBranch != "" {
			sess.GitBranch = r.GitBranch
		}
		touch(sess, r.Timestamp)

	case *capture.Message:
		inserted, err := a.tx.InsertMessage(&models.Message{
			SessionID:    sess.ID,
			Seq:          line,
			UUID:         r.UUID,
			ParentUUID:   r.ParentUUID,
			APIMessageID: r.APIMessageID,
			Role:         r.Role,
			Content:      r.Content,
			Model:        r.Model,
			Usage:        r.Usage,
			Timestamp:    r.Timestamp,
		})
		if err != nil {
			return err
		}
		if inserted {
			a.records++
		}
		if r.Model != "" && r.Model != "<synthetic>" {
			sess.Model = r.Model
		}
		touch(sess, r.Timestamp)

	case *capture.ToolCall:
		inserted, err := a.tx.InsertToolCall(&models.ToolCall{
			SessionID:  sess.ID,
			MessageSeq: line,
			BlockIndex: r.BlockIndex,
			ToolUseID:  r.ToolUseID,
			Name:       r.Name,
			Input:      string(r.Input),
			StartedAt:  r.Timestamp,
		})
		if err != nil {
			return err
		}
		if inserted {
			a.records++
		}

	case *capture.ToolResult:
		completed, err := a.tx.CompleteToolCall(sess.ID, r.ToolUseID, r.Output, r.IsError, r.Timestamp)
		if err != nil {
			return err
		}
		if completed {
			a.records++
		} else {
			a.log.WithField("tool_use_id", r.ToolUseID).Debug("no open tool call for result")
		}
		touch(sess, r.Timestamp)

	case *capture.TodoEvent:
		if err := a.tx.UpsertTodo(&models.Todo{
			Project:    sess.Project,
			Content:    r.Content,
			Status:     r.Status,
			ActiveForm: r.ActiveForm,
			SessionID:  sess.ID,
			UpdatedAt:  r.Timestamp,
		}); err != nil {
			return err
		}
		a.records++
	}
	return nil
}

// finish writes the session attributes accumulated while applying records.
func (a *applier) finish() error {
	if a.sess == nil {
		return nil
	}
	return a.tx.UpdateSession(a.sess)
}

func touch(sess *models.Session, ts time.Time) {
	if ts.IsZero() {
		return
	}
	if sess.StartedAt.IsZero() || ts.Before(sess.StartedAt) {
		sess.StartedAt = ts
	}
	if ts.After(sess.LastSeenAt) {
		sess.LastSeenAt = ts
	}
}
