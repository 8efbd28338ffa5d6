package backend

import "strings"

// FormatRequest is the body of POST /api/formats.
type FormatRequest struct {
	URL string `json:"url"`
}

// Format is one downloadable encoding advertised by the backend.
type Format struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	ABR        float64 `json:"abr,omitempty"`
	Filesize   int64   `json:"filesize,omitempty"`
	FormatNote string  `json:"format_note,omitempty"`
}

// FormatResponse lists the formats available for a media URL.
type FormatResponse struct {
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	VideoFormats []Format `json:"video_formats"`
	AudioFormats []Format `json:"audio_formats"`
	IsPlaylist   bool     `json:"is_playlist,omitempty"`
}

// DownloadRequest is the body of POST /api/download.
type DownloadRequest struct {
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
}

// DownloadResponse acknowledges a submitted job. Older servers advertise an
// SSE endpoint, newer ones a WebSocket endpoint; either may be empty.
type DownloadResponse struct {
	DownloadID   string `json:"download_id"`
	SSEURL       string `json:"sse_url,omitempty"`
	WebSocketURL string `json:"websocket_url,omitempty"`
	Message      string `json:"message,omitempty"`
}

// StreamURL returns the advertised endpoint for the named transport, falling
// back to whichever endpoint the server did advertise.
func (r DownloadResponse) StreamURL(kind string) string {
	sse := strings.TrimSpace(r.SSEURL)
	ws := strings.TrimSpace(r.WebSocketURL)
	switch strings.ToLower(kind) {
	case "websocket", "ws":
		if ws != "" {
			return ws
		}
		return ""
	case "sse":
		return sse
	default:
		if ws != "" {
			return ws
		}
		return sse
	}
}

// FileItem describes a finished file stored on the server.
type FileItem struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	Type        string `json:"type"`
	MimeType    string `json:"mimetype,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Extension   string `json:"extension,omitempty"`
}

// DeleteResponse is returned by DELETE /api/files/{name}.
type DeleteResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Filename   string `json:"filename"`
	FreedBytes int64  `json:"freed_bytes"`
}

// DeleteAllResponse is returned by DELETE /api/files.
type DeleteAllResponse struct {
	Success      bool  `json:"success"`
	DeletedCount int   `json:"deleted_count"`
	FreedBytes   int64 `json:"freed_bytes"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string  `json:"status"`
	Cookies         string  `json:"cookies,omitempty"`
	DownloadDir     string  `json:"download_dir,omitempty"`
	FreeSpaceGB     float64 `json:"free_space_gb"`
	FilesCount      int     `json:"files_count"`
	ActiveDownloads int     `json:"active_downloads"`
}
