// Package debuglog scans the agent's debug logs for error lines.
package debuglog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jasperwreed/agent-index/internal/logging"
	"github.com/jasperwreed/agent-index/internal/models"
	"github.com/jasperwreed/agent-index/internal/scanner"
)

// DefaultPattern matches the error signatures written to debug logs.
const DefaultPattern = `(?i)(error|failed|exception|warning|ENOENT|EACCES|EPERM)`

// DefaultMaxResults caps a scan when no limit is configured.
const DefaultMaxResults = 50

// Scanner reads <claude_dir>/debug/*.txt and *.txt.gz.
type Scanner struct {
	dir        string
	patterns   []*regexp.Regexp
	maxResults int
	now        func() time.Time
	logger     *logrus.Entry
}

// NewScanner compiles patterns, falling back to DefaultPattern when none are
// given. maxResults <= 0 uses DefaultMaxResults.
func NewScanner(claudeDir string, patterns []string, maxResults int) (*Scanner, error) {
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	s := &Scanner{
		dir:        filepath.Join(claudeDir, "debug"),
		maxResults: maxResults,
		now:        time.Now,
		logger:     logging.NewLogger("debuglog"),
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid error pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

// Dir is the debug log directory being scanned.
func (s *Scanner) Dir() string {
	return s.dir
}

// Scan returns matching lines from logs modified in the last daysBack days,
// in file name then line order. Identical lines are reported once. A missing
// debug directory yields no errors.
func (s *Scanner) Scan(ctx context.Context, daysBack int) ([]models.DebugError, error) {
	if daysBack < 1 {
		return nil, fmt.Errorf("%w: days back must be at least 1, got %d", models.ErrInvalidQuery, daysBack)
	}

	files, err := s.logFiles()
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-time.Duration(daysBack) * 24 * time.Hour)
	seen := make(map[string]struct{})
	var found []models.DebugError

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("skipping debug log")
			continue
		}
		if info.ModTime().Before(cutoff) {
			continue
		}

		done, err := s.scanFile(path, info.ModTime(), seen, &found)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("skipping unreadable debug log")
		}
		if done {
			break
		}
	}
	return found, nil
}

func (s *Scanner) logFiles() ([]string, error) {
	if !scanner.FileExists(s.dir) {
		return nil, nil
	}
	var files []string
	for _, pattern := range []string{"*.txt", "*.txt.gz"} {
		matches, err := scanner.FindFiles(s.dir, pattern)
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// scanFile appends matches from one log and reports whether the cap was hit.
func (s *Scanner) scanFile(path string, modTime time.Time, seen map[string]struct{}, found *[]models.DebugError) (bool, error) {
	r, err := openLog(path)
	if err != nil {
		return false, err
	}
	defer r.Close()

	name := filepath.Base(path)
	for lineNo := 1; ; lineNo++ {
		line, err := r.ReadLine()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !s.matches(line) {
			continue
		}

		key := strings.TrimSpace(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		*found = append(*found, models.DebugError{
			File:      name,
			Line:      lineNo,
			Content:   line,
			Timestamp: modTime,
		})
		if len(*found) >= s.maxResults {
			return true, nil
		}
	}
}

func (s *Scanner) matches(line string) bool {
	for _, re := range s.patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
