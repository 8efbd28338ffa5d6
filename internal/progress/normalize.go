package progress

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mvdown/internal/services"
)

// Frame is a decoded JSON object from the progress stream.
type Frame map[string]any

var (
	completedTokens = map[string]struct{}{"completed": {}, "complete": {}, "done": {}, "finished": {}, "success": {}}
	failedTokens    = map[string]struct{}{"error": {}, "failed": {}, "failure": {}}
)

const (
	defaultFilename     = "unknown"
	defaultErrorMessage = "Unknown error"
)

// Parse decodes raw into a Frame. Numbers are kept as json.Number so large byte
// counts survive intact. Anything other than a JSON object is a parse error.
func Parse(raw []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, services.Wrap(services.ErrParse, "progress", "decode frame", "empty payload", nil)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var frame Frame
	if err := dec.Decode(&frame); err != nil {
		return nil, services.Wrap(services.ErrParse, "progress", "decode frame", "", err)
	}
	if frame == nil {
		return nil, services.Wrap(services.ErrParse, "progress", "decode frame", "payload is not an object", nil)
	}
	if dec.More() {
		return nil, services.Wrap(services.ErrParse, "progress", "decode frame", "trailing data after object", nil)
	}
	return frame, nil
}

// Normalize converts a frame into an Event. last is the most recent known
// percent, or a negative value when nothing is known yet; it fills in percent
// when the frame omits it or reports a degraded zero.
func Normalize(frame Frame, last float64) Event {
	event := tokenField(frame, "event")
	status := tokenField(frame, "status")
	kind := tokenField(frame, "type")

	for _, token := range []string{event, status, kind} {
		if _, ok := completedTokens[token]; ok {
			return completedFrom(frame)
		}
		if _, ok := failedTokens[token]; ok {
			return failedFrom(frame)
		}
	}
	if event == "connected" || (event == "" && status == "connected") || kind == "connected" {
		return Connected{}
	}
	return progressFrom(frame, resolveStatus(event, status, kind), last)
}

// Malformed builds the informational event emitted for an undecodable frame.
func Malformed(err error, last float64) Progress {
	msg := "ignored malformed progress frame"
	if err != nil {
		var detail string
		if errors.Is(err, services.ErrParse) {
			detail = strings.TrimPrefix(err.Error(), services.ErrParse.Error()+": ")
		} else {
			detail = err.Error()
		}
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	p := Progress{Status: StatusUnknown, Message: msg}
	if last >= 0 {
		p.Percent = last
		p.HasPercent = true
	}
	return p
}

func resolveStatus(event, status, kind string) string {
	switch {
	case status != "":
		return status
	case event == "progress" || kind == "progress":
		return "downloading"
	case event != "":
		return event
	default:
		return StatusUnknown
	}
}

func completedFrom(frame Frame) Completed {
	filename := stringField(frame, "filename")
	if filename == "" {
		filename = stringField(frame, "file")
	}
	if filename == "" {
		filename = defaultFilename
	}
	downloadURL := stringField(frame, "download_url")
	if downloadURL == "" {
		downloadURL = stringField(frame, "downloadUrl")
	}
	return Completed{
		Filename:    filename,
		DownloadURL: downloadURL,
		Title:       stringField(frame, "title"),
	}
}

func failedFrom(frame Frame) Failed {
	for _, key := range []string{"error", "message", "detail"} {
		if msg := stringField(frame, key); msg != "" {
			return Failed{Message: msg}
		}
	}
	return Failed{Message: defaultErrorMessage}
}

func progressFrom(frame Frame, status string, last float64) Progress {
	p := Progress{Status: status, Message: stringField(frame, "message")}

	downloaded, hasDownloaded := bytesField(frame, "downloaded_bytes")
	total, hasTotal := bytesField(frame, "total_bytes")
	if hasDownloaded {
		p.DownloadedBytes = downloaded
	}
	if hasTotal {
		p.TotalBytes = total
	}

	percent, known := explicitPercent(frame)
	if hasDownloaded && hasTotal && total > 0 {
		percent, known = clampPercent(float64(downloaded)*100/float64(total)), true
	}
	if last > 0 && (!known || percent == 0) {
		percent, known = last, true
	}
	p.Percent, p.HasPercent = percent, known

	speed, speedText, ok := speedField(frame, "speed")
	if ok {
		p.Speed = speed
	}
	p.SpeedText = speedText
	if eta, ok := etaField(frame, "eta"); ok {
		p.ETA = eta
		p.HasETA = true
	}
	return p
}

func explicitPercent(frame Frame) (float64, bool) {
	for _, key := range []string{"percent", "progress", "percentage"} {
		if v, ok := numberField(frame, key); ok {
			return clampPercent(v), true
		}
	}
	return 0, false
}

// Normalizer tracks the last known percent across the frames of one job.
type Normalizer struct {
	last float64
}

// NewNormalizer returns a Normalizer with no known percent.
func NewNormalizer() *Normalizer {
	return &Normalizer{last: -1}
}

// Next decodes and normalizes one raw frame.
func (n *Normalizer) Next(raw []byte) Event {
	return n.NextNamed("", raw)
}

// NextNamed is Next for transports that carry an event name outside the
// payload, such as the SSE event field. The name only applies when the frame
// has no "event" key of its own; the SSE default "message" is ignored.
func (n *Normalizer) NextNamed(name string, raw []byte) Event {
	frame, err := Parse(raw)
	if err != nil {
		return Malformed(err, n.last)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := frame["event"]; !ok && name != "" && name != "message" {
		frame["event"] = name
	}
	ev := Normalize(frame, n.last)
	n.Observe(ev)
	return ev
}

// Observe updates the tracked percent from an event produced elsewhere.
func (n *Normalizer) Observe(ev Event) {
	switch e := ev.(type) {
	case Progress:
		if e.HasPercent {
			n.last = e.Percent
		}
	case Completed:
		n.last = 100
	}
}

// LastPercent returns the most recent known percent.
func (n *Normalizer) LastPercent() (float64, bool) {
	if n.last < 0 {
		return 0, false
	}
	return n.last, true
}

// Reset forgets the tracked percent.
func (n *Normalizer) Reset() {
	n.last = -1
}
