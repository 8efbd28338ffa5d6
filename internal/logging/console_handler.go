package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one line per record:
//
//	2026-01-02 15:04:05 INFO  orchestrator: stream connected [job abc123 via sse] percent=12.5
//
// Job and transport move into the bracketed subject; correlation ids are only
// printed at debug level.
type consoleHandler struct {
	out    *lockedWriter
	level  slog.Leveler
	source bool
	prefix string
	fields []field
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

type field struct {
	key   string
	value slog.Value
}

func newPrettyHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{out: &lockedWriter{w: w}, level: lvl, source: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.fields...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.prefix, attr)
		return true
	})

	var component, jobID, transport string
	rest := make([]field, 0, len(fields))
	for _, f := range lastWins(fields) {
		switch f.key {
		case FieldComponent:
			component = plainValue(f.value)
		case FieldJobID:
			jobID = plainValue(f.value)
		case FieldTransport:
			transport = plainValue(f.value)
		case FieldCorrelationID:
			if record.Level < slog.LevelInfo {
				rest = append(rest, f)
			}
		default:
			rest = append(rest, f)
		}
	}

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s ", localTimestamp(ts), levelLabel(record.Level))
	if component != "" {
		b.WriteString(component)
		b.WriteString(": ")
	}
	b.WriteString(message)
	if subject := composeSubject(jobID, transport); subject != "" {
		b.WriteString(" [")
		b.WriteString(subject)
		b.WriteByte(']')
	}
	for _, f := range rest {
		b.WriteByte(' ')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(fieldValue(f.value))
	}
	if h.source {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&b, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteByte('\n')

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := io.WriteString(h.out.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fields = append([]field(nil), h.fields...)
	for _, attr := range attrs {
		clone.fields = appendField(clone.fields, h.prefix, attr)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

// appendField flattens groups into dotted keys.
func appendField(dst []field, prefix string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			prefix += attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			dst = appendField(dst, prefix, member)
		}
		return dst
	}
	return append(dst, field{key: prefix + attr.Key, value: attr.Value})
}

// lastWins drops earlier fields that share a key with a later one, keeping
// first-seen order.
func lastWins(fields []field) []field {
	index := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if i, ok := index[f.key]; ok {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

// composeSubject renders "job abc123 via sse" style subjects.
func composeSubject(jobID, transport string) string {
	jobID = strings.TrimSpace(jobID)
	transport = strings.TrimSpace(transport)
	switch {
	case jobID != "" && transport != "":
		return "job " + jobID + " via " + transport
	case jobID != "":
		return "job " + jobID
	case transport != "":
		return "via " + transport
	default:
		return ""
	}
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
