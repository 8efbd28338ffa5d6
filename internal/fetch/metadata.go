package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Metadata is the embedded tag information of an audio file.
type Metadata struct {
	Title  string
	Artist string
	Album  string
	Track  int
	Format string
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".m4a": {}, ".flac": {}, ".ogg": {}, ".opus": {},
}

// IsAudio reports whether path has an audio extension.
func IsAudio(path string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ReadMetadata extracts tags from an audio file. Missing titles fall back to
// the file name.
func ReadMetadata(path string) (*Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}
	track, _ := meta.Track()
	out := &Metadata{
		Title:  strings.TrimSpace(meta.Title()),
		Artist: strings.TrimSpace(meta.Artist()),
		Album:  strings.TrimSpace(meta.Album()),
		Track:  track,
		Format: string(meta.Format()),
	}
	if out.Title == "" {
		out.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return out, nil
}

// Summary renders "Artist - Title (Album)" with absent parts omitted.
func (m *Metadata) Summary() string {
	if m == nil {
		return ""
	}
	text := m.Title
	if m.Artist != "" {
		text = m.Artist + " - " + text
	}
	if m.Album != "" {
		text += " (" + m.Album + ")"
	}
	return text
}
