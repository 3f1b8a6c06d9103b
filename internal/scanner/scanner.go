package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jasperwreed/agent-index/internal/capture"
	"github.com/jasperwreed/agent-index/internal/models"
)

// Action says what a sync must do with one file.
type Action int

const (
	// ActionSkip means size and mtime match the stored cursor.
	ActionSkip Action = iota
	// ActionFull ingests a file with no stored cursor from the start.
	ActionFull
	// ActionResume continues from the stored cursor.
	ActionResume
	// ActionReset clears what was ingested from the file and starts over. A
	// forced sync of a known file always resets, since rows already stored
	// at a line number are never overwritten.
	ActionReset
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionFull:
		return "full"
	case ActionResume:
		return "resume"
	case ActionReset:
		return "reset"
	default:
		return "unknown"
	}
}

// FileInfo is a transcript file found on disk.
type FileInfo struct {
	Path      string
	SessionID string
	Project   string
	Size      int64
	ModTime   time.Time
}

// WorkItem pairs a file with the action planned for it.
type WorkItem struct {
	File   FileInfo
	Action Action
	Start  capture.Position
	Prior  *models.SyncState
}

// ScanResult is the output of one scan. Work excludes skipped files.
type ScanResult struct {
	Files   []FileInfo
	Work    []WorkItem
	Skipped int
	Errors  []*models.FileError
}

// Classify decides the action for f given its stored cursor, which may be nil.
func Classify(f FileInfo, prior *models.SyncState, force bool) WorkItem {
	item := WorkItem{File: f, Action: ActionFull, Prior: prior}

	switch {
	case prior == nil:
	case force, f.Size < prior.Size, f.Size < prior.Offset:
		item.Action = ActionReset
	case f.Size == prior.Size && f.ModTime.UnixNano() == prior.ModTime.UnixNano():
		item.Action = ActionSkip
		item.Start = capture.Position{Offset: prior.Offset, Line: prior.Line}
	default:
		item.Action = ActionResume
		item.Start = capture.Position{Offset: prior.Offset, Line: prior.Line}
	}
	return item
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FindFiles walks root and returns the files whose base name matches pattern.
// Unreadable subdirectories are skipped.
func FindFiles(root string, pattern string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}

		if !d.IsDir() && matchesPattern(path, pattern) {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}

func matchesPattern(path, pattern string) bool {
	matched, _ := filepath.Match(pattern, filepath.Base(path))
	return matched
}
