package preflight

import (
	"context"

	"mvdown/internal/backend"
	"mvdown/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// HealthChecker is the backend surface used by CheckBackend.
type HealthChecker interface {
	Health(ctx context.Context) (backend.HealthResponse, error)
	BaseURL() string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, client HealthChecker) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Backend (always checked)
	if client != nil {
		results = append(results, CheckBackend(ctx, client))
	}

	results = append(results, CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir))
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))

	// Log directory (when configured)
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	results = append(results, CheckNotifications(cfg))
	return results
}
