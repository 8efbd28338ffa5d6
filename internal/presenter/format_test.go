package presenter

import (
	"testing"
	"time"
)

func TestFormatETA(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{59*time.Second + 400*time.Millisecond, "59s"},
		{90 * time.Second, "1m 30s"},
		{60 * time.Second, "1m 0s"},
		{3599 * time.Second, "59m 59s"},
		{3600 * time.Second, "1h 0m"},
		{2*time.Hour + 5*time.Minute + 30*time.Second, "2h 5m"},
		{-time.Second, "--"},
	}
	for _, tt := range tests {
		if got := FormatETA(tt.in); got != tt.want {
			t.Errorf("FormatETA(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1024 * 1024, "1.00 MB/s"},
		{2.5 * 1024 * 1024, "2.50 MB/s"},
		{512 * 1024, "0.50 MB/s"},
		{0, "--"},
		{-3, "--"},
	}
	for _, tt := range tests {
		if got := FormatSpeed(tt.in); got != tt.want {
			t.Errorf("FormatSpeed(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSizeAndTransferred(t *testing.T) {
	if got := FormatSize(0); got != "0 B" {
		t.Fatalf("FormatSize(0) = %q", got)
	}
	if got := FormatSize(5 * 1024 * 1024); got != "5.0 MiB" {
		t.Fatalf("FormatSize(5MiB) = %q", got)
	}
	if got := FormatSize(-1); got != "--" {
		t.Fatalf("FormatSize(-1) = %q", got)
	}
	if got := FormatTransferred(12*1024*1024, 30*1024*1024); got != "12.0 MB / 30.0 MB" {
		t.Fatalf("FormatTransferred = %q", got)
	}
	if got := FormatTransferred(10, 0); got != "Calculating..." {
		t.Fatalf("FormatTransferred without total = %q", got)
	}
}

func TestStatusTitle(t *testing.T) {
	tests := map[string]string{
		"starting":        "Initializing Download",
		"connected":       "Initializing Download",
		"Downloading":     "Downloading",
		"processing":      "Processing",
		"zipping":         "Creating Archive",
		"closed":          "Connection Closed",
		"unknown":         "Processing",
		"":                "Processing",
		"post_processing": "Post Processing",
	}
	for in, want := range tests {
		if got := StatusTitle(in); got != want {
			t.Errorf("StatusTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusDetail(t *testing.T) {
	if got := StatusDetail("zipping", ""); got != "Compressing files into archive..." {
		t.Fatalf("StatusDetail(zipping) = %q", got)
	}
	if got := StatusDetail("zipping", " 3 of 5 files "); got != "3 of 5 files" {
		t.Fatalf("message should win, got %q", got)
	}
	if got := StatusDetail("mystery", ""); got != "" {
		t.Fatalf("unknown status should have no detail, got %q", got)
	}
}
