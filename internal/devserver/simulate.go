package devserver

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mvdown/internal/logging"
)

const (
	sampleTitle   = "mvdown sample track"
	sampleArtist  = "mvdown devserver"
	simulatedSize = 5 << 20
	simulatedRate = 2.5 * (1 << 20)
)

var progressSteps = []float64{10, 35, 60, 85, 100}

// run plays the scripted frames for j and writes its output file.
func (s *Server) run(j *job) {
	defer s.wg.Done()
	defer j.finish()

	logger := s.logger.With(logging.String(logging.FieldJobID, j.id))
	fail := strings.Contains(j.url, "fail")
	drop := strings.Contains(j.url, "drop")

	j.append(map[string]any{"status": "starting", "message": "Preparing download"})
	for _, pct := range progressSteps {
		if !s.pause() {
			return
		}
		downloaded := int64(simulatedSize * pct / 100)
		remaining := float64(simulatedSize-downloaded) / simulatedRate
		j.append(map[string]any{
			"status":           "downloading",
			"percent":          fmt.Sprintf("%.1f%%", pct),
			"downloaded_bytes": downloaded,
			"total_bytes":      simulatedSize,
			"speed":            simulatedRate,
			"eta":              int(remaining),
		})
		switch {
		case fail && pct >= 35:
			logger.Info("simulated failure")
			j.append(map[string]any{"status": "error", "error": "Simulated failure: extractor crashed"})
			return
		case drop && pct >= 60:
			logger.Info("simulated stream drop")
			return
		}
	}

	if !s.pause() {
		return
	}
	j.append(map[string]any{"status": "processing", "message": "Converting"})

	name, err := s.writeOutput(j)
	if err != nil {
		logger.Warn("write simulated output failed", logging.Error(err))
		j.append(map[string]any{"status": "error", "error": err.Error()})
		return
	}
	logger.Info("simulated download complete", logging.String("file", name))
	j.append(map[string]any{
		"status":       "done",
		"filename":     name,
		"download_url": "/downloads/" + name,
		"title":        sampleTitle,
	})
}

func (s *Server) pause() bool {
	if s.opts.Step <= 0 {
		return s.ctx.Err() == nil
	}
	timer := time.NewTimer(s.opts.Step)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func audioFormat(formatID string) bool {
	id := strings.ToLower(formatID)
	return strings.Contains(id, "audio") || id == "140" || id == "251" || id == "mp3"
}

func (s *Server) writeOutput(j *job) (string, error) {
	ext := "mp4"
	content := bytes.Repeat([]byte{0}, 4096)
	if audioFormat(j.formatID) {
		ext = "mp3"
		content = id3Sample(sampleTitle, sampleArtist)
	}
	name := fmt.Sprintf("sample-%s.%s", j.id[:8], ext)
	if err := os.WriteFile(filepath.Join(s.opts.Dir, name), content, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return name, nil
}

// id3Sample builds a minimal ID3v2.3 tagged MP3 body.
func id3Sample(title, artist string) []byte {
	textFrame := func(id, text string) []byte {
		var b bytes.Buffer
		b.WriteString(id)
		_ = binary.Write(&b, binary.BigEndian, uint32(len(text)+1))
		b.Write([]byte{0, 0, 0})
		b.WriteString(text)
		return b.Bytes()
	}
	frames := append(textFrame("TIT2", title), textFrame("TPE1", artist)...)
	size := len(frames)

	var out bytes.Buffer
	out.WriteString("ID3")
	out.Write([]byte{3, 0, 0})
	out.Write([]byte{byte(size >> 21 & 0x7f), byte(size >> 14 & 0x7f), byte(size >> 7 & 0x7f), byte(size & 0x7f)})
	out.Write(frames)
	out.Write(bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 256))
	return out.Bytes()
}
