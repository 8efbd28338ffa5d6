package progress

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

var numberPattern = regexp.MustCompile(`[-+]?\d*\.?\d+(?:[eE][-+]?\d+)?`)

func stringField(frame Frame, key string) string {
	switch v := frame[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func tokenField(frame Frame, key string) string {
	return strings.ToLower(stringField(frame, key))
}

// numberField coerces numbers, numeric strings, and suffixed strings such as
// "42%" or "12 MB". Non-finite values are rejected.
func numberField(frame Frame, key string) (float64, bool) {
	return toNumber(frame[key])
}

func toNumber(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, ok := parseNumericText(v)
		if !ok {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNumericText(text string) (float64, bool) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%"))
	if trimmed == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f, true
	}
	match := numberPattern.FindString(trimmed)
	if match == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// bytesField accepts integers, floats, and human sizes ("1.5 GB", "700MiB").
func bytesField(frame Frame, key string) (int64, bool) {
	value, present := frame[key]
	if !present || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			if n < 0 {
				return 0, false
			}
			return n, true
		}
	case string:
		if n, err := humanize.ParseBytes(strings.TrimSpace(v)); err == nil {
			return clampInt64(float64(n)), true
		}
	}
	f, ok := toNumber(value)
	if !ok || f < 0 {
		return 0, false
	}
	return clampInt64(f), true
}

// speedField returns bytes per second plus the original text for string input.
// Numbers are bytes per second. Strings such as "2.5MiB/s" are parsed with
// humanize; bare numeric strings fall back to digit extraction.
func speedField(frame Frame, key string) (float64, string, bool) {
	value, present := frame[key]
	if !present || value == nil {
		return 0, "", false
	}
	text, isText := value.(string)
	if !isText {
		f, ok := toNumber(value)
		if !ok || f < 0 {
			return 0, "", false
		}
		return f, "", true
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, "", false
	}
	unit := strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(text, "/s"), "ps"))
	if n, err := humanize.ParseBytes(unit); err == nil {
		return float64(n), text, true
	}
	f, ok := parseNumericText(text)
	if !ok || f < 0 {
		return 0, text, false
	}
	return f, text, true
}

// etaField accepts seconds as numbers or strings, Go durations ("1m30s"), and
// clock notation ("01:02:03" or "02:03").
func etaField(frame Frame, key string) (time.Duration, bool) {
	value, present := frame[key]
	if !present || value == nil {
		return 0, false
	}
	if text, ok := value.(string); ok {
		text = strings.TrimSpace(text)
		if d, err := time.ParseDuration(text); err == nil && d >= 0 {
			return d, true
		}
		if d, ok := parseClock(text); ok {
			return d, true
		}
	}
	f, ok := toNumber(value)
	if !ok || f < 0 {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)).Round(time.Second), true
}

func parseClock(text string) (time.Duration, bool) {
	parts := strings.Split(text, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	var total int
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, true
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func clampInt64(f float64) int64 {
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}
