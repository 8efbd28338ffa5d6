package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mvdown/internal/config"
)

const userAgent = "mvdown/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventDownloadStarted   Event = "download_started"
	EventDownloadProgress  Event = "download_progress"
	EventDownloadCompleted Event = "download_completed"
	EventDownloadFailed    Event = "download_failed"
	EventStreamClosed      Event = "stream_closed"
	EventTest              Event = "test"
)

// Payload carries event-specific values such as "title", "percent" or
// "error".
type Payload map[string]any

// Service defines the notification surface used by the presenter and CLI.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		progress:  cfg.Notifications.Progress,
		completed: cfg.Notifications.Completed,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	progress  bool
	completed bool
	errors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil {
		return nil
	}
	if !n.enabled(event) {
		return nil
	}
	p, ok := buildPayload(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, p)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventDownloadStarted, EventDownloadProgress:
		return n.progress
	case EventDownloadCompleted:
		return n.completed
	case EventDownloadFailed, EventStreamClosed:
		return n.errors
	default:
		return true
	}
}

func buildPayload(event Event, data Payload) (payload, bool) {
	title := stringValue(data, "title")
	if title == "" {
		title = stringValue(data, "url")
	}
	switch event {
	case EventDownloadStarted:
		return payload{
			title:    "mvdown - Download Started",
			message:  fmt.Sprintf("⬇️ Downloading: %s", fallback(title, "media")),
			tags:     []string{"mvdown", "download", "started"},
			priority: "low",
		}, true
	case EventDownloadProgress:
		message := stringValue(data, "status")
		if percent, ok := data["percent"].(float64); ok {
			message = fmt.Sprintf("%s %.0f%%", fallback(message, "Downloading"), percent)
		}
		if title != "" {
			message = fmt.Sprintf("%s\n%s", title, message)
		}
		return payload{
			title:    "mvdown - Downloading",
			message:  fallback(message, "Download in progress"),
			tags:     []string{"mvdown", "download", "progress"},
			priority: "min",
		}, true
	case EventDownloadCompleted:
		filename := fallback(stringValue(data, "filename"), "unknown")
		message := fmt.Sprintf("✅ Ready: %s", filename)
		if title != "" && title != filename {
			message = fmt.Sprintf("✅ Ready: %s\nFile: %s", title, filename)
		}
		return payload{
			title:   "mvdown - Download Complete",
			message: message,
			tags:    []string{"mvdown", "download", "completed"},
			click:   stringValue(data, "downloadURL"),
		}, true
	case EventDownloadFailed:
		return payload{
			title:    "mvdown - Download Failed",
			message:  fmt.Sprintf("❌ %s", fallback(stringValue(data, "error"), "Unknown error")),
			tags:     []string{"mvdown", "error", "alert"},
			priority: "high",
		}, true
	case EventStreamClosed:
		message := "⚠️ Lost contact with the server before the download finished"
		if id := stringValue(data, "jobID"); id != "" {
			message = fmt.Sprintf("%s\nRe-attach with: mvdown watch %s", message, id)
		}
		return payload{
			title:   "mvdown - Connection Lost",
			message: message,
			tags:    []string{"mvdown", "stream", "closed"},
		}, true
	case EventTest:
		return payload{
			title:    "mvdown - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"mvdown", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if data.click != "" {
		req.Header.Set("Click", data.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func stringValue(data Payload, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
