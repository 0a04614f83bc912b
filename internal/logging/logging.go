// Package logging builds the slog.Logger used by the binaries.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AntonStoeckl/scoped-eventstore-go/internal/config"
)

var ErrInvalidLogLevel = errors.New("invalid log level")

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a text or JSON logger writing to fallback, or to a rotating file when cfg.File is set.
// The returned closer releases the file and is safe to call when no file is used.
func New(cfg config.LogConfig, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = fallback
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}

		out = rotating
		closer = rotating
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closer, nil
}

// ParseLevel accepts debug, info, warn, and error, case-insensitively.
func ParseLevel(level string) (slog.Level, error) {
	var parsed slog.Level

	normalized := strings.ToLower(strings.TrimSpace(level))

	switch normalized {
	case "debug", "info", "warn", "error":
		if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
			return 0, errors.Join(ErrInvalidLogLevel, err)
		}
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, level)
	}

	return parsed, nil
}
