package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mvdown/internal/config"
	"mvdown/internal/notifications"
	"mvdown/internal/testsupport"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventDownloadCompleted, notifications.Payload{"filename": "x.mp3"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected nil config to yield noop notifier, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
		expectClick    string
	}{
		{
			name:           "started",
			event:          notifications.EventDownloadStarted,
			payload:        notifications.Payload{"url": "https://example.com/watch?v=1"},
			expectTitle:    "mvdown - Download Started",
			expectMessage:  "⬇️ Downloading: https://example.com/watch?v=1",
			expectTags:     "mvdown,download,started",
			expectPriority: "low",
		},
		{
			name:           "progress",
			event:          notifications.EventDownloadProgress,
			payload:        notifications.Payload{"title": "Song", "status": "Downloading", "percent": 42.4},
			expectTitle:    "mvdown - Downloading",
			expectMessage:  "Song\nDownloading 42%",
			expectTags:     "mvdown,download,progress",
			expectPriority: "min",
		},
		{
			name:          "completed",
			event:         notifications.EventDownloadCompleted,
			payload:       notifications.Payload{"filename": "x.mp3", "downloadURL": "http://srv/downloads/x.mp3"},
			expectTitle:   "mvdown - Download Complete",
			expectMessage: "✅ Ready: x.mp3",
			expectTags:    "mvdown,download,completed",
			expectClick:   "http://srv/downloads/x.mp3",
		},
		{
			name:           "failed",
			event:          notifications.EventDownloadFailed,
			payload:        notifications.Payload{"error": "disk full"},
			expectTitle:    "mvdown - Download Failed",
			expectMessage:  "❌ disk full",
			expectTags:     "mvdown,error,alert",
			expectPriority: "high",
		},
		{
			name:          "stream closed",
			event:         notifications.EventStreamClosed,
			payload:       notifications.Payload{"jobID": "abc"},
			expectTitle:   "mvdown - Connection Lost",
			expectMessage: "⚠️ Lost contact with the server before the download finished\nRe-attach with: mvdown watch abc",
			expectTags:    "mvdown,stream,closed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				click    string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					w.WriteHeader(http.StatusMethodNotAllowed)
					return
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				captured.click = r.Header.Get("Click")
				body, _ := io.ReadAll(r.Body)
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))
			svc := notifications.NewService(cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
			if captured.click != tc.expectClick {
				t.Fatalf("expected click %q, got %q", tc.expectClick, captured.click)
			}
		})
	}
}

func TestNtfyServiceHonorsCategorySwitches(t *testing.T) {
	calls := make(chan string, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- r.Header.Get("Title")
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))
	cfg.Notifications.Progress = false
	cfg.Notifications.Errors = false
	svc := notifications.NewService(cfg)

	for _, event := range []notifications.Event{
		notifications.EventDownloadStarted,
		notifications.EventDownloadProgress,
		notifications.EventDownloadFailed,
		notifications.EventStreamClosed,
		notifications.Event("unknown"),
	} {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"error": "x"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
	if err := svc.Publish(context.Background(), notifications.EventDownloadCompleted, notifications.Payload{"filename": "a"}); err != nil {
		t.Fatalf("completed: %v", err)
	}
	close(calls)

	var titles []string
	for title := range calls {
		titles = append(titles, title)
	}
	if len(titles) != 1 || titles[0] != "mvdown - Download Complete" {
		t.Fatalf("expected only the completion notification, got %v", titles)
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is reserved", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))
	err := notifications.NewService(cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "topic is reserved") {
		t.Fatalf("expected ntfy status error, got %v", err)
	}
}
