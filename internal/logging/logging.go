// Package logging provides component-scoped logrus loggers that share one
// configured output.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var root = newRoot()

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}

// Options controls the shared logger.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// Configure applies opts to every logger handed out by NewLogger, including
// ones created earlier.
func Configure(opts Options) error {
	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		root.SetLevel(level)
	}

	switch strings.ToLower(opts.Format) {
	case "", "text":
		root.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	case "json":
		root.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", opts.Format)
	}

	if opts.Output != nil {
		root.SetOutput(opts.Output)
	}
	return nil
}

// NewLogger returns an entry tagged with the component name.
func NewLogger(component string) *logrus.Entry {
	return root.WithField("component", component)
}
