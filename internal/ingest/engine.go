// Package ingest applies new transcript content to the index, one file per
// transaction, advancing each file's cursor only when its records commit.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jasperwreed/agent-index/internal/capture"
	"github.com/jasperwreed/agent-index/internal/logging"
	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/scanner"
	"github.com/jasperwreed/agent-index/internal/storage"
)

// cancelCheckInterval is how many records are applied between context checks.
const cancelCheckInterval = 256

// Options configures one sync run.
type Options struct {
	// Root is the directory holding <project>/<session>.jsonl transcripts.
	Root string
	// HistoryPath is the prompt history supplying session titles. Optional.
	HistoryPath string
	// TodosDir holds <session>.json todo lists. Optional.
	TodosDir string
	// Force reprocesses every file from the start, ignoring the skip rule.
	Force bool
}

// Engine runs syncs against a store.
type Engine struct {
	store  *storage.SQLiteStore
	logger *logrus.Entry
	now    func() time.Time
}

func NewEngine(store *storage.SQLiteStore) *Engine {
	return &Engine{
		store:  store,
		logger: logging.NewLogger("ingest"),
		now:    time.Now,
	}
}

type fileOutcome struct {
	action      scanner.Action
	records     int
	parseErrors int
}

// Sync scans opts.Root and applies every file with unprocessed content. A
// failure in one file is recorded in the report and does not stop the others.
// The returned error is reserved for failures that prevent the run itself.
func (e *Engine) Sync(ctx context.Context, opts Options) (*models.SyncReport, error) {
	started := e.now()
	report := &models.SyncReport{RunID: uuid.NewString()}
	log := e.logger.WithField("run", report.RunID)

	states, err := e.store.SyncStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}

	scan, err := scanner.NewTranscriptScanner(opts.Root).Scan(states, opts.Force)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", opts.Root, err)
	}
	report.FilesScanned = len(scan.Files)
	report.FilesSkipped = scan.Skipped
	report.Errors = append(report.Errors, scan.Errors...)

	for _, item := range scan.Work {
		if err := ctx.Err(); err != nil {
			report.Duration = e.now().Sub(started)
			return report, err
		}

		outcome, err := e.syncFile(ctx, log, item, opts.Force)
		if err != nil {
			var fe *models.FileError
			if !errors.As(err, &fe) {
				fe = &models.FileError{Path: item.File.Path, Op: "sync", Err: err}
			}
			report.Errors = append(report.Errors, fe)
			log.WithError(fe.Err).WithFields(logrus.Fields{"path": fe.Path, "op": fe.Op}).Warn("file not synced")
			if ctx.Err() != nil {
				report.Duration = e.now().Sub(started)
				return report, ctx.Err()
			}
			continue
		}

		report.ParseErrors += outcome.parseErrors
		switch outcome.action {
		case scanner.ActionSkip:
			report.FilesSkipped++
			continue
		case scanner.ActionReset:
			report.FilesReset++
		}
		report.FilesUpdated++
		report.RecordsIngested += outcome.records
	}

	// Titles and todo lists attach to sessions, so they follow the transcripts.
	if opts.HistoryPath != "" {
		n, err := e.syncHistory(ctx, log.WithField("path", opts.HistoryPath), opts.HistoryPath, statePtr(states, opts.HistoryPath), opts.Force)
		if err != nil {
			report.Errors = append(report.Errors, &models.FileError{Path: opts.HistoryPath, Op: "history", Err: err})
			log.WithError(err).WithField("path", opts.HistoryPath).Warn("history not synced")
		}
		report.HistoryTitles = n
	}
	if opts.TodosDir != "" && scanner.FileExists(opts.TodosDir) {
		paths, err := scanner.FindFiles(opts.TodosDir, "*.json")
		if err != nil {
			report.Errors = append(report.Errors, &models.FileError{Path: opts.TodosDir, Op: "scan", Err: err})
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				report.Duration = e.now().Sub(started)
				return report, err
			}
			if st, ok := states[path]; ok && !opts.Force && sameFile(path, st) {
				continue
			}
			applied, err := e.syncTodoFile(ctx, log.WithField("path", path), path, opts.Force)
			if err != nil {
				report.Errors = append(report.Errors, &models.FileError{Path: path, Op: "todos", Err: err})
				log.WithError(err).WithField("path", path).Warn("todo file not synced")
				continue
			}
			if applied {
				report.TodoFiles++
			}
		}
	}

	report.Duration = e.now().Sub(started)
	log.WithFields(logrus.Fields{
		"scanned":  report.FilesScanned,
		"updated":  report.FilesUpdated,
		"skipped":  report.FilesSkipped,
		"records":  report.RecordsIngested,
		"errors":   len(report.Errors),
		"duration": report.Duration.Round(time.Millisecond),
	}).Info("sync complete")
	return report, nil
}

func (e *Engine) syncFile(ctx context.Context, log *logrus.Entry, item scanner.WorkItem, force bool) (*fileOutcome, error) {
	path := item.File.Path
	fail := func(op string, err error) (*fileOutcome, error) {
		return nil, &models.FileError{Path: path, Op: op, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return fail("open", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fail("stat", err)
	}
	file := item.File
	file.Size = info.Size()
	file.ModTime = info.ModTime()

	tx, err := e.store.BeginFile(ctx)
	if err != nil {
		return fail("begin", err)
	}
	defer tx.Rollback()

	// Another process may have advanced the cursor since the scan.
	prior, err := tx.SyncState(path)
	if err != nil {
		return fail("read-state", err)
	}
	plan := scanner.Classify(file, prior, force)
	if plan.Action == scanner.ActionSkip {
		return &fileOutcome{action: scanner.ActionSkip}, nil
	}

	digest := sha256.New()
	if plan.Action == scanner.ActionResume {
		if err := verifyPrefix(f, prior, digest); err != nil {
			log.WithError(err).WithField("path", path).Warn("resyncing file from the start")
			digest.Reset()
			plan.Action = scanner.ActionReset
			plan.Start = capture.Position{}
		}
	}
	if plan.Start.Offset > file.Size {
		plan.Action = scanner.ActionReset
		plan.Start = capture.Position{}
		digest.Reset()
	}

	a := &applier{tx: tx, file: file, log: log.WithField("path", path)}
	if plan.Action == scanner.ActionReset {
		if err := tx.ResetSession(file.SessionID); err != nil {
			return fail("apply", err)
		}
	}

	section := io.NewSectionReader(f, plan.Start.Offset, file.Size-plan.Start.Offset)
	parser := capture.NewParser(section, plan.Start).WithDigest(digest)
	applied := 0
	for parser.Next() {
		if err := a.apply(parser.Record(), parser.Line()); err != nil {
			return fail("apply", err)
		}
		applied++
		if applied%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fail("apply", err)
			}
		}
	}
	if err := parser.Err(); err != nil {
		return fail("read", err)
	}
	if err := a.finish(); err != nil {
		return fail("apply", err)
	}

	pos := parser.Position()
	state := &models.SyncState{
		Path:     path,
		Size:     file.Size,
		ModTime:  file.ModTime,
		Offset:   pos.Offset,
		Line:     pos.Line,
		Checksum: hex.EncodeToString(digest.Sum(nil)),
		SyncedAt: e.now(),
	}
	if err := tx.PutSyncState(state); err != nil {
		return fail("apply", err)
	}
	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}

	a.log.WithFields(logrus.Fields{
		"action":  plan.Action.String(),
		"records": a.records,
		"offset":  pos.Offset,
	}).Debug("file synced")

	return &fileOutcome{action: plan.Action, records: a.records, parseErrors: a.parseErrors}, nil
}

func statePtr(states map[string]models.SyncState, path string) *models.SyncState {
	if st, ok := states[path]; ok {
		return &st
	}
	return nil
}

// sameFile reports whether path still has the size and mtime recorded in st.
func sameFile(path string, st models.SyncState) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() == st.Size && info.ModTime().Equal(st.ModTime)
}

// verifyPrefix hashes the already-synced prefix into digest and compares it
// with the stored checksum.
func verifyPrefix(f *os.File, prior *models.SyncState, digest hash.Hash) error {
	n, err := io.Copy(digest, io.NewSectionReader(f, 0, prior.Offset))
	if err != nil {
		return fmt.Errorf("reading synced prefix: %w", err)
	}
	if n != prior.Offset {
		return fmt.Errorf("%w: prefix is %d bytes, cursor at %d", models.ErrCorruptCursor, n, prior.Offset)
	}
	if sum := hex.EncodeToString(digest.Sum(nil)); sum != prior.Checksum {
		return models.ErrCorruptCursor
	}
	return nil
}
