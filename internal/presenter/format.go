package presenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	mebibyte    = 1024 * 1024
	placeholder = "--"
)

// FormatETA renders a remaining time as "45s", "1m 30s" or "2h 5m". Negative
// durations render as "--".
func FormatETA(d time.Duration) string {
	if d < 0 {
		return placeholder
	}
	seconds := int64(d.Round(time.Second) / time.Second)
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

// FormatSpeed renders bytes per second as megabytes per second with two
// decimals. Zero and negative speeds render as "--".
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return placeholder
	}
	return fmt.Sprintf("%.2f MB/s", bytesPerSecond/mebibyte)
}

// FormatSize renders a byte count with binary units, e.g. "4.2 MiB".
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return placeholder
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatTransferred renders "12.0 MB / 30.0 MB", or "Calculating..." while
// the total is unknown.
func FormatTransferred(downloaded, total int64) string {
	if total <= 0 || downloaded < 0 {
		return "Calculating..."
	}
	return fmt.Sprintf("%.1f MB / %.1f MB", float64(downloaded)/mebibyte, float64(total)/mebibyte)
}

// StatusTitle maps a backend status to the headline shown to the user.
func StatusTitle(status string) string {
	switch normalized := strings.ToLower(strings.TrimSpace(status)); normalized {
	case "starting", "connected":
		return "Initializing Download"
	case "downloading":
		return "Downloading"
	case "processing", "", "unknown":
		return "Processing"
	case "zipping":
		return "Creating Archive"
	case "closed":
		return "Connection Closed"
	case "completed":
		return "Download Complete"
	case "failed":
		return "Download Failed"
	default:
		return cases.Title(language.English).String(strings.ReplaceAll(normalized, "_", " "))
	}
}

// StatusDetail is the secondary line under the headline. A backend message
// always wins.
func StatusDetail(status, message string) string {
	if message = strings.TrimSpace(message); message != "" {
		return message
	}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "starting", "connected":
		return "Connecting to server..."
	case "downloading":
		return "Please wait while we download your file"
	case "processing":
		return "Finalizing your download..."
	case "zipping":
		return "Compressing files into archive..."
	case "closed":
		return "The connection was closed"
	default:
		return ""
	}
}
