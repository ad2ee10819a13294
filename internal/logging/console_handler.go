package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one human-readable line per record:
//
//	2006-01-02 15:04:05 INFO [component] asset A (job J) - message key=value ...
//
// Component, asset and job are lifted out of the attributes into the header.
type consoleHandler struct {
	out       *lockedWriter
	level     *slog.LevelVar
	addSource bool
	prefix    string
	bound     []slog.Attr
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) write(p []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := lw.w.Write(p)
	return err
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{out: &lockedWriter{w: w}, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.bound = slices.Clone(h.bound)
	for _, attr := range attrs {
		next.bound = appendFlat(next.bound, h.prefix, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	attrs := slices.Clone(h.bound)
	record.Attrs(func(attr slog.Attr) bool {
		attrs = appendFlat(attrs, h.prefix, attr)
		return true
	})
	attrs = lastWins(attrs)

	var component, assetID, jobID string
	trailing := attrs[:0]
	for _, attr := range attrs {
		switch attr.Key {
		case FieldComponent:
			component = plainValue(attr.Value)
		case FieldAssetID:
			assetID = plainValue(attr.Value)
		case FieldJobID:
			jobID = plainValue(attr.Value)
			if record.Level < slog.LevelInfo {
				trailing = append(trailing, attr)
			}
		default:
			trailing = append(trailing, attr)
		}
	}

	when := record.Time
	if when.IsZero() {
		when = time.Now()
	}
	var b strings.Builder
	b.WriteString(when.Local().Format(time.DateTime))
	b.WriteString(" " + levelName(record.Level))
	if component != "" {
		b.WriteString(" [" + component + "]")
	}
	if subject := subjectOf(assetID, jobID); subject != "" {
		b.WriteString(" " + subject)
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}
	b.WriteString(" - " + message)
	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, attr := range trailing {
		b.WriteString(" " + attr.Key + "=" + fieldValue(attr.Value))
	}
	b.WriteByte('\n')
	return h.out.write([]byte(b.String()))
}

// subjectOf renders "asset <id> (job <id>)" for the log header.
func subjectOf(assetID, jobID string) string {
	assetID = strings.TrimSpace(assetID)
	jobID = strings.TrimSpace(jobID)
	switch {
	case assetID != "" && jobID != "":
		return fmt.Sprintf("asset %s (job %s)", assetID, jobID)
	case assetID != "":
		return "asset " + assetID
	case jobID != "":
		return "job " + jobID
	}
	return ""
}

// appendFlat resolves attr and appends it with group names folded into the key.
func appendFlat(dst []slog.Attr, prefix string, attr slog.Attr) []slog.Attr {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() != slog.KindGroup {
		return append(dst, slog.Attr{Key: prefix + attr.Key, Value: attr.Value})
	}
	if attr.Key != "" {
		prefix += attr.Key + "."
	}
	for _, member := range attr.Value.Group() {
		dst = appendFlat(dst, prefix, member)
	}
	return dst
}

// lastWins drops earlier duplicates of a key, keeping the position of the first.
func lastWins(attrs []slog.Attr) []slog.Attr {
	seen := make(map[string]int, len(attrs))
	out := attrs[:0:0]
	for _, attr := range attrs {
		if i, ok := seen[attr.Key]; ok {
			out[i] = attr
			continue
		}
		seen[attr.Key] = len(out)
		out = append(out, attr)
	}
	return out
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
