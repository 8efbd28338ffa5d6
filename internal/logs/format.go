package logs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Record is one decoded JSON log line.
type Record struct {
	Time      time.Time
	Level     slog.Level
	Message   string
	Component string
	JobID     string
	Attrs     map[string]any
}

// Filter selects records. Zero values match everything.
type Filter struct {
	JobID    string
	MinLevel slog.Level
}

// Parse decodes a JSON log line. ok is false for lines that are not records.
func Parse(line string) (Record, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Record{}, false
	}
	msg, ok := raw["msg"].(string)
	if !ok {
		return Record{}, false
	}
	rec := Record{Message: msg, Attrs: make(map[string]any)}
	for key, value := range raw {
		switch key {
		case "msg":
		case "ts", "time":
			if text, ok := value.(string); ok {
				rec.Time, _ = time.Parse(time.RFC3339Nano, text)
			}
		case "level":
			if text, ok := value.(string); ok {
				_ = rec.Level.UnmarshalText([]byte(text))
			}
		case "component":
			rec.Component, _ = value.(string)
		case "job_id":
			rec.JobID, _ = value.(string)
		default:
			rec.Attrs[key] = value
		}
	}
	return rec, true
}

// Match reports whether rec passes f.
func (f Filter) Match(rec Record) bool {
	if rec.Level < f.MinLevel {
		return false
	}
	return f.JobID == "" || rec.JobID == f.JobID
}

// Format renders rec as "15:04:05 LEVEL component: message key=value".
func Format(rec Record) string {
	var b strings.Builder
	if !rec.Time.IsZero() {
		b.WriteString(rec.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", rec.Level.String())
	if rec.Component != "" {
		b.WriteString(rec.Component)
		b.WriteString(": ")
	}
	b.WriteString(rec.Message)
	if rec.JobID != "" {
		fmt.Fprintf(&b, " job_id=%s", rec.JobID)
	}
	keys := make([]string, 0, len(rec.Attrs))
	for key := range rec.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := fmt.Sprint(rec.Attrs[key])
		if strings.ContainsAny(value, " \t\"") {
			value = fmt.Sprintf("%q", value)
		}
		fmt.Fprintf(&b, " %s=%s", key, value)
	}
	return b.String()
}

// Render formats line when it is a record that passes f. Non-record lines pass
// through unchanged unless a job filter is set.
func Render(line string, f Filter) (string, bool) {
	rec, ok := Parse(line)
	if !ok {
		return line, f.JobID == ""
	}
	if !f.Match(rec) {
		return "", false
	}
	return Format(rec), true
}
