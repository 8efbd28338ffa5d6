package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mvdown/internal/config"
)

// LogFileName is the file written inside paths.log_dir.
const LogFileName = "mvdown.log"

// Options describes logger construction parameters. Records go to Writer when
// set, otherwise to the file at Path, otherwise to stderr.
type Options struct {
	Level     string
	Format    string
	Path      string
	Writer    io.Writer
	AddSource bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	handler, err := newHandler(opts)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}

func newHandler(opts Options) (slog.Handler, error) {
	level := ParseLevel(opts.Level)
	addSource := opts.AddSource || level <= slog.LevelDebug

	var build func(io.Writer, slog.Leveler, bool) slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		build = newPrettyHandler
	case "json":
		build = newJSONHandler
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	w, err := destination(opts)
	if err != nil {
		return nil, err
	}
	return build(w, level, addSource), nil
}

func destination(opts Options) (io.Writer, error) {
	if opts.Writer != nil {
		return opts.Writer, nil
	}
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

// NewFromConfig creates the CLI logger. Console output goes to stderr at warn
// level unless verbose is set, in which case the configured level applies. When
// a log directory is configured every record at the configured level is also
// appended to mvdown.log as JSON.
func NewFromConfig(cfg *config.Config, verbose bool) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info"})
	}

	consoleLevel := "warn"
	if verbose {
		consoleLevel = cfg.Logging.Level
	}
	console, err := newHandler(Options{Level: consoleLevel, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Paths.LogDir) == "" {
		return slog.New(console), nil
	}

	file, err := newHandler(Options{
		Level:  cfg.Logging.Level,
		Format: "json",
		Path:   filepath.Join(cfg.Paths.LogDir, LogFileName),
	})
	if err != nil {
		return nil, err
	}
	return slog.New(TeeHandler(console, file)), nil
}

// ParseLevel maps a configured level name to a slog level; unknown names
// fall back to info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	name := strings.TrimSpace(level)
	if strings.EqualFold(name, "warning") {
		name = "warn"
	}
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}
