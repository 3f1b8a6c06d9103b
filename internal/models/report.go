package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FileError records a failure confined to a single transcript file.
type FileError struct {
	Path string `json:"path"`
	Op   string `json:"op"`
	Err  error  `json:"-"`
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

func (e *FileError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Path  string `json:"path"`
		Op    string `json:"op"`
		Error string `json:"error"`
	}{e.Path, e.Op, msg})
}

// SyncReport summarises one sync run.
type SyncReport struct {
	RunID           string        `json:"run_id"`
	FilesScanned    int           `json:"files_scanned"`
	FilesUpdated    int           `json:"files_updated"`
	FilesSkipped    int           `json:"files_skipped"`
	FilesReset      int           `json:"files_reset"`
	RecordsIngested int           `json:"records_ingested"`
	ParseErrors     int           `json:"parse_errors"`
	HistoryTitles   int           `json:"history_titles"`
	TodoFiles       int           `json:"todo_files"`
	Errors          []*FileError  `json:"errors,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Err joins all per-file failures, or returns nil when every file succeeded.
func (r *SyncReport) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}
