package debuglog

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// logReader reads lines from a plain or gzip-compressed debug log.
type logReader struct {
	file       *os.File
	reader     *bufio.Reader
	gzReader   *gzip.Reader
	compressed bool
}

func openLog(path string) (*logReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log: %w", err)
	}

	r := &logReader{
		file:       file,
		compressed: filepath.Ext(path) == ".gz",
	}

	if r.compressed {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		r.gzReader = gzReader
		r.reader = bufio.NewReader(gzReader)
	} else {
		r.reader = bufio.NewReader(file)
	}

	return r, nil
}

// ReadLine returns the next line without its terminator. The final line is
// returned with a nil error even when it has no newline; io.EOF follows it.
func (r *logReader) ReadLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (r *logReader) Close() error {
	if r.compressed && r.gzReader != nil {
		r.gzReader.Close()
	}
	return r.file.Close()
}
