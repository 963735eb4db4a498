// Package logging builds the structured loggers used across hostbridge.
//
// Every component accepts a *log.Logger; embedders that do not care about
// logs get Discard(), the CLI builds one from configuration with New.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// Format names accepted by New.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatLogfmt  = "logfmt"
	DefaultPrefix = "hostbridge"
)

// New creates a logger writing to w at the given level ("debug", "info",
// "warn", "error") using the given format.
func New(w io.Writer, level, format string) (*log.Logger, error) {
	lvl := log.InfoLevel
	if level != "" {
		parsed, err := log.ParseLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}

	var formatter log.Formatter
	switch strings.ToLower(format) {
	case "", FormatText:
		formatter = log.TextFormatter
	case FormatJSON:
		formatter = log.JSONFormatter
	case FormatLogfmt:
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("log format %q: must be text, json or logfmt", format)
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          DefaultPrefix,
		ReportTimestamp: formatter != log.TextFormatter,
		Formatter:       formatter,
	}), nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// Component derives a logger tagged with the component name.
func Component(l *log.Logger, name string) *log.Logger {
	if l == nil {
		l = Discard()
	}
	return l.With("component", name)
}
