// Package logging provides the logger factory built on charmbracelet/log.
//
// All log output goes to stderr; stdout is reserved for structured output
// (summaries, xUnit XML, JSON). Each package obtains a logger with a
// component prefix:
//
//	var logger = logging.New("scheduler")
//	logger.Info("run finished", "scenario", name, "status", status)
//
// Setup must be called before New so child loggers inherit the level and
// formatter; charmbracelet/log copies state at creation time.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Setup configures the global logging defaults. Call once during CLI
// initialization. quiet wins over verbose so scripted invocations stay
// silent regardless of other flags.
func Setup(verbose, quiet, jsonFormat bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	if quiet {
		level = log.ErrorLevel
	}

	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	if jsonFormat {
		log.SetFormatter(log.JSONFormatter)
	} else {
		log.SetFormatter(log.TextFormatter)
	}
}

// New creates a logger with the given component prefix. An empty
// component produces a logger without a prefix.
func New(component string) *log.Logger {
	return log.WithPrefix(component)
}

// SetOutput overrides the output writer for the default logger. Useful
// in tests for capturing output into a bytes.Buffer.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}
