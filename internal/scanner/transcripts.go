package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jasperwreed/agent-index/internal/models"
)

const transcriptExt = ".jsonl"

// TranscriptScanner finds session transcripts laid out as
// <root>/<encoded project path>/<session id>.jsonl.
type TranscriptScanner struct {
	root string
}

func NewTranscriptScanner(root string) *TranscriptScanner {
	return &TranscriptScanner{root: root}
}

func (s *TranscriptScanner) Root() string {
	return s.root
}

// Discover lists every transcript with its current size and mtime, sorted by
// path. A missing root yields no files.
func (s *TranscriptScanner) Discover() ([]FileInfo, []*models.FileError, error) {
	if !FileExists(s.root) {
		return nil, nil, nil
	}

	projects, err := os.ReadDir(s.root)
	if err != nil {
		return nil, nil, err
	}

	var files []FileInfo
	var failures []*models.FileError
	for _, project := range projects {
		if !project.IsDir() {
			continue
		}

		projectPath := filepath.Join(s.root, project.Name())
		entries, err := os.ReadDir(projectPath)
		if err != nil {
			failures = append(failures, &models.FileError{Path: projectPath, Op: "list", Err: err})
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), transcriptExt) {
				continue
			}

			fullPath := filepath.Join(projectPath, entry.Name())
			info, err := entry.Info()
			if err != nil {
				failures = append(failures, &models.FileError{Path: fullPath, Op: "stat", Err: err})
				continue
			}

			files = append(files, FileInfo{
				Path:      fullPath,
				SessionID: strings.TrimSuffix(entry.Name(), transcriptExt),
				Project:   DecodeProjectPath(project.Name()),
				Size:      info.Size(),
				ModTime:   info.ModTime(),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, failures, nil
}

// Scan discovers transcripts and plans the work needed against the stored
// cursors. It does not touch the store.
func (s *TranscriptScanner) Scan(states map[string]models.SyncState, force bool) (*ScanResult, error) {
	files, failures, err := s.Discover()
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Files: files, Errors: failures}
	for _, f := range files {
		var prior *models.SyncState
		if st, ok := states[f.Path]; ok {
			prior = &st
		}

		item := Classify(f, prior, force)
		if item.Action == ActionSkip {
			result.Skipped++
			continue
		}
		result.Work = append(result.Work, item)
	}
	return result, nil
}

// EncodeProjectPath maps an absolute project path to its directory name.
// "/." becomes "--" before the remaining "/" become "-".
func EncodeProjectPath(path string) string {
	return strings.ReplaceAll(strings.ReplaceAll(path, "/.", "--"), "/", "-")
}

// DecodeProjectPath reverses EncodeProjectPath. Dashes that were part of the
// original directory names cannot be told apart and decode to "/".
func DecodeProjectPath(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "--", "/."), "-", "/")
}
