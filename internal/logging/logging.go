// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/phuslu/log"

	"github.com/seenimoa/stockpulse/internal/config"
)

// Setup points log.DefaultLogger at stderr with the configured level and
// format. Format "json" writes one JSON object per line, anything else
// writes human-readable console lines.
func Setup(cfg config.LoggingConfig) {
	log.DefaultLogger = New(cfg, os.Stderr)
}

// New builds a logger writing to w.
func New(cfg config.LoggingConfig, w io.Writer) log.Logger {
	logger := log.Logger{
		Level:      parseLevel(cfg.Level),
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	if strings.EqualFold(cfg.Format, "json") {
		logger.Writer = &log.IOWriter{Writer: w}
	} else {
		logger.Writer = &log.ConsoleWriter{Writer: w, ColorOutput: isTerminal(w)}
	}
	return logger
}

func parseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return log.IsTerminal(f.Fd())
}
