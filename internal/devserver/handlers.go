package devserver

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"mvdown/internal/backend"
)

func detail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": message})
}

func validMediaURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func (s *Server) health(c *gin.Context) {
	resp := backend.HealthResponse{
		Status:          "healthy",
		Cookies:         "not configured",
		DownloadDir:     s.opts.Dir,
		ActiveDownloads: s.activeJobs(),
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(s.opts.Dir, &stat); err == nil {
		resp.FreeSpaceGB = float64(stat.Bavail) * float64(stat.Bsize) / 1e9
	}
	if files, err := s.files(); err == nil {
		resp.FilesCount = len(files)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) formats(c *gin.Context) {
	var req backend.FormatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		detail(c, http.StatusBadRequest, "url is required")
		return
	}
	if !validMediaURL(req.URL) || strings.Contains(req.URL, "fail") {
		detail(c, http.StatusUnprocessableEntity, "Unsupported URL: "+req.URL)
		return
	}
	c.JSON(http.StatusOK, backend.FormatResponse{
		Title: sampleTitle,
		URL:   req.URL,
		VideoFormats: []backend.Format{
			{FormatID: "best-video", Ext: "mp4", Resolution: "best", FormatNote: "Best available"},
			{FormatID: "137", Ext: "mp4", Resolution: "1920x1080", Filesize: 48 << 20, FormatNote: "1080p"},
			{FormatID: "22", Ext: "mp4", Resolution: "1280x720", Filesize: 21 << 20, FormatNote: "720p"},
		},
		AudioFormats: []backend.Format{
			{FormatID: "best-audio", Ext: "mp3", ABR: 320, FormatNote: "Best available"},
			{FormatID: "140", Ext: "m4a", ABR: 128, Filesize: 3 << 20, FormatNote: "medium"},
		},
	})
}

func (s *Server) download(c *gin.Context) {
	var req backend.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		detail(c, http.StatusBadRequest, "url is required")
		return
	}
	if !validMediaURL(req.URL) {
		detail(c, http.StatusBadRequest, "Invalid URL")
		return
	}
	if strings.TrimSpace(req.FormatID) == "" {
		detail(c, http.StatusBadRequest, "format_id is required")
		return
	}

	id := uuid.NewString()
	j := newJob(id, req.URL, req.FormatID)
	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(j)

	c.JSON(http.StatusOK, backend.DownloadResponse{
		DownloadID:   id,
		SSEURL:       "/api/progress/" + id,
		WebSocketURL: "/ws/" + id,
		Message:      "Download started",
	})
}

func (s *Server) files() ([]backend.FileItem, error) {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		return nil, err
	}
	items := make([]backend.FileItem, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(entry.Name())), ".")
		items = append(items, backend.FileItem{
			Name:        entry.Name(),
			Size:        info.Size(),
			Type:        mediaType(ext),
			MimeType:    mime.TypeByExtension("." + ext),
			DownloadURL: "/downloads/" + url.PathEscape(entry.Name()),
			Extension:   ext,
		})
	}
	sort.Slice(items, func(i, k int) bool { return items[i].Name < items[k].Name })
	return items, nil
}

func mediaType(ext string) string {
	switch ext {
	case "mp3", "m4a", "flac", "ogg", "opus", "wav":
		return "audio"
	case "mp4", "mkv", "webm", "mov":
		return "video"
	case "zip":
		return "archive"
	default:
		return "other"
	}
}

func (s *Server) listFiles(c *gin.Context) {
	items, err := s.files()
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": items})
}

// resolveFile maps a request name to a path inside the storage directory.
func (s *Server) resolveFile(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", false
	}
	return filepath.Join(s.opts.Dir, name), true
}

func (s *Server) deleteFile(c *gin.Context) {
	name := c.Param("name")
	path, ok := s.resolveFile(name)
	if !ok {
		detail(c, http.StatusBadRequest, "Invalid file name")
		return
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		detail(c, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if err := os.Remove(path); err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, backend.DeleteResponse{
		Success:    true,
		Message:    "File deleted",
		Filename:   name,
		FreedBytes: info.Size(),
	})
}

func (s *Server) deleteAllFiles(c *gin.Context) {
	items, err := s.files()
	if err != nil {
		detail(c, http.StatusInternalServerError, err.Error())
		return
	}
	resp := backend.DeleteAllResponse{Success: true}
	for _, item := range items {
		if err := os.Remove(filepath.Join(s.opts.Dir, item.Name)); err != nil {
			resp.Success = false
			continue
		}
		resp.DeletedCount++
		resp.FreedBytes += item.Size
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) serveFile(c *gin.Context) {
	path, ok := s.resolveFile(c.Param("name"))
	if !ok {
		detail(c, http.StatusBadRequest, "Invalid file name")
		return
	}
	if _, err := os.Stat(path); err != nil {
		detail(c, http.StatusNotFound, "File not found")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}
