package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"encodesync/internal/config"
)

// NewFromConfig creates the daemon logger: the configured format on stdout,
// teed into a dated JSON file under the log directory.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is NewFromConfig with the console output redirected to w.
// A nil cfg yields an info-level console logger.
func NewWithWriter(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	format, level, logDir := "console", "info", ""
	if cfg != nil {
		format, level, logDir = cfg.Logging.Format, cfg.Logging.Level, strings.TrimSpace(cfg.Paths.LogDir)
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	// Caller locations only at debug; they are noise at info.
	addSource := levelVar.Level() <= slog.LevelDebug

	console, err := newHandler(format, w, levelVar, addSource)
	if err != nil {
		return nil, err
	}
	if logDir == "" {
		return slog.New(console), nil
	}

	path := DailyLogPath(logDir, time.Now())
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return slog.New(slog.NewMultiHandler(console, newJSONHandler(file, levelVar, true))), nil
}

// DailyLogPath returns the dated daemon log file for the given day.
func DailyLogPath(dir string, now time.Time) string {
	return filepath.Join(dir, "encodesyncd-"+now.Format("20060102")+".log")
}

func newHandler(format string, w io.Writer, lvl *slog.LevelVar, addSource bool) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return newJSONHandler(w, lvl, addSource), nil
	case "console", "":
		return newConsoleHandler(w, lvl, addSource), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newJSONHandler writes records with "ts" UTC timestamps, lower-case levels
// and short "file:line" sources; internal/logs reads this shape back.
func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				if attr.Value.Kind() == slog.KindTime {
					return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339Nano))
				}
				attr.Key = "ts"
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return attr
		},
	})
}
