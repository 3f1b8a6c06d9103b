package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sinceLayouts are accepted by --since, most specific first.
var sinceLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// Validator provides methods for validating CLI inputs
type Validator struct {
	now func() time.Time
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// ValidateLimit checks that a --limit flag is within 1..max
func (v *Validator) ValidateLimit(limit, max int) error {
	if limit < 1 || limit > max {
		return fmt.Errorf("--limit must be between 1 and %d, got %d", max, limit)
	}
	return nil
}

// ValidateDirectory checks if a directory path is valid
func (v *Validator) ValidateDirectory(path string) error {
	if path == "" {
		return nil // Empty path is allowed, will use default
	}

	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("invalid directory: %w", err)
	}

	if !stat.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}

// ParseSince parses a --since value as a local date or timestamp. Relative
// values like "7d" or "36h" count back from now.
func (v *Validator) ParseSince(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	if n := len(value); n > 1 && value[n-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(value, "%dd", &days); err == nil && days > 0 {
			y, m, d := v.now().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, v.now().Location()).AddDate(0, 0, -days), nil
		}
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return v.now().Add(-d), nil
	}

	for _, layout := range sinceLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: use YYYY-MM-DD, RFC 3339, or a relative value like 7d", value)
}

// ResolvePath resolves a path to an absolute path
func (v *Validator) ResolvePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "." {
		return os.Getwd()
	}

	if filepath.IsAbs(path) {
		return path, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return filepath.Join(cwd, path), nil
}
