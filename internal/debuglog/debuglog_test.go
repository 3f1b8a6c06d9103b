package debuglog

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasperwreed/agent-index/internal/models"
)

func writeLog(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, "debug", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func writeGzipLog(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, "debug", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func newTestScanner(t *testing.T, dir string, patterns []string, max int) *Scanner {
	t.Helper()
	s, err := NewScanner(dir, patterns, max)
	require.NoError(t, err)
	return s
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.txt", "normal line\nError: something broke\nFailed to connect\r\nanother normal line\n")
	writeLog(t, dir, "b.txt", "Error: something broke\nspawn ENOENT")
	writeLog(t, dir, "c.log", "Error: not a debug log\n")
	writeGzipLog(t, dir, "d.txt.gz", "ok\nuncaught exception in handler\n")

	errs, err := newTestScanner(t, dir, nil, 0).Scan(context.Background(), 7)
	require.NoError(t, err)

	require.Len(t, errs, 4)
	assert.Equal(t, models.DebugError{File: "a.txt", Line: 2, Content: "Error: something broke", Timestamp: errs[0].Timestamp}, errs[0])
	assert.Equal(t, "Failed to connect", errs[1].Content)
	assert.Equal(t, 3, errs[1].Line)
	assert.Equal(t, "b.txt", errs[2].File)
	assert.Equal(t, "spawn ENOENT", errs[2].Content)
	assert.Equal(t, "d.txt.gz", errs[3].File)
	assert.Equal(t, 2, errs[3].Line)
}

func TestScanWindow(t *testing.T) {
	dir := t.TempDir()
	old := writeLog(t, dir, "old.txt", "Error: stale\n")
	writeLog(t, dir, "new.txt", "Error: fresh\n")
	stale := time.Now().Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	errs, err := newTestScanner(t, dir, nil, 0).Scan(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "Error: fresh", errs[0].Content)

	errs, err = newTestScanner(t, dir, nil, 0).Scan(context.Background(), 30)
	require.NoError(t, err)
	assert.Len(t, errs, 2)
}

func TestScanCap(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "Error: unique error %d\n", i)
	}
	writeLog(t, dir, "many.txt", b.String())
	writeLog(t, dir, "more.txt", "Error: never reached\n")

	errs, err := newTestScanner(t, dir, nil, 0).Scan(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, errs, DefaultMaxResults)

	errs, err = newTestScanner(t, dir, nil, 5).Scan(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, errs, 5)
}

func TestScanCustomPatterns(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.txt", "Error: generic\nrate_limit_error: slow down\n")

	errs, err := newTestScanner(t, dir, []string{`rate_limit`}, 0).Scan(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, 2, errs[0].Line)

	_, err = NewScanner(dir, []string{"("}, 0)
	assert.Error(t, err)
}

func TestScanEdgeCases(t *testing.T) {
	t.Run("missing debug dir", func(t *testing.T) {
		errs, err := newTestScanner(t, filepath.Join(t.TempDir(), "absent"), nil, 0).Scan(context.Background(), 7)
		require.NoError(t, err)
		assert.Empty(t, errs)
	})

	t.Run("invalid window", func(t *testing.T) {
		_, err := newTestScanner(t, t.TempDir(), nil, 0).Scan(context.Background(), 0)
		assert.ErrorIs(t, err, models.ErrInvalidQuery)
	})

	t.Run("corrupt gzip is skipped", func(t *testing.T) {
		dir := t.TempDir()
		writeLog(t, dir, "bad.txt.gz", "not gzip")
		writeLog(t, dir, "good.txt", "Error: kept\n")

		errs, err := newTestScanner(t, dir, nil, 0).Scan(context.Background(), 7)
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, "good.txt", errs[0].File)
	})
}
