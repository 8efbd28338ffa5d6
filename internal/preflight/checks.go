package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mvdown/internal/backend"
	"mvdown/internal/config"
)

// CheckBackend verifies that the backend answers GET /health and reports
// itself healthy. It uses a 5-second timeout and a single attempt.
func CheckBackend(ctx context.Context, client HealthChecker) Result {
	const name = "Backend"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := client.Health(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: summarizeBackendError(client.BaseURL(), err)}
	}
	status := strings.ToLower(strings.TrimSpace(health.Status))
	detail := fmt.Sprintf("%s (%s, %d active, %.1f GB free)", client.BaseURL(), fallback(status, "unknown"), health.ActiveDownloads, health.FreeSpaceGB)
	switch status {
	case "healthy", "ok":
		return Result{Name: name, Passed: true, Detail: detail}
	default:
		return Result{Name: name, Detail: detail}
	}
}

func summarizeBackendError(base string, err error) string {
	var apiErr *backend.APIError
	switch {
	case backend.IsUnavailable(err):
		return fmt.Sprintf("%s (unreachable)", base)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("%s (health check returned %d)", base, apiErr.Status)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s (timed out)", base)
	default:
		return fmt.Sprintf("%s (error: %v)", base, err)
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckNotifications reports whether ntfy notifications are configured. It
// does not publish anything; use "mvdown health --notify" for a live test.
func CheckNotifications(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	var enabled []string
	if cfg.Notifications.Progress {
		enabled = append(enabled, "progress")
	}
	if cfg.Notifications.Completed {
		enabled = append(enabled, "completed")
	}
	if cfg.Notifications.Errors {
		enabled = append(enabled, "errors")
	}
	if len(enabled) == 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (all categories off)", topic)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", topic, strings.Join(enabled, ", "))}
}

func fallback(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
