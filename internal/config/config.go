package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

const envPrefix = "MVDOWN"

// Server describes the remote download backend.
type Server struct {
	URL            string `toml:"url"`
	RequestTimeout int    `toml:"request_timeout"`
	SubmitTimeout  int    `toml:"submit_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// Stream contains settings for the progress event connection.
type Stream struct {
	Transport        string `toml:"transport"`
	HandshakeTimeout int    `toml:"handshake_timeout"`
}

// Paths contains local directories used by the CLI.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	Progress           bool   `toml:"progress"`
	Completed          bool   `toml:"completed"`
	Errors             bool   `toml:"errors"`
	MinIntervalSeconds int    `toml:"min_interval_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mvdown.
//
// Configuration sections by subsystem:
//   - Server: backend base URL and HTTP timeouts
//   - Stream: progress transport selection
//   - Paths: download, state, and log directories
//   - Notifications: ntfy background notifications
//   - Logging: log format and level
type Config struct {
	Server        Server        `toml:"server"`
	Stream        Stream        `toml:"stream"`
	Paths         Paths         `toml:"paths"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// envOverrides lists the settings that may be replaced from the environment.
type envOverrides struct {
	ServerURL     string `envconfig:"SERVER_URL"`
	Transport     string `envconfig:"TRANSPORT"`
	SubmitTimeout int    `envconfig:"SUBMIT_TIMEOUT"`
	DownloadDir   string `envconfig:"DOWNLOAD_DIR"`
	NtfyTopic     string `envconfig:"NTFY_TOPIC"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	LogFormat     string `envconfig:"LOG_FORMAT"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mvdown/config.toml")
}

// Load locates, parses, and validates a configuration file. Environment
// overrides are applied after the file is decoded. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if env.ServerURL != "" {
		c.Server.URL = env.ServerURL
	}
	if env.Transport != "" {
		c.Stream.Transport = env.Transport
	}
	if env.SubmitTimeout > 0 {
		c.Server.SubmitTimeout = env.SubmitTimeout
	}
	if env.DownloadDir != "" {
		c.Paths.DownloadDir = env.DownloadDir
	}
	if env.NtfyTopic != "" {
		c.Notifications.NtfyTopic = env.NtfyTopic
	}
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		c.Logging.Format = env.LogFormat
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mvdown.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the download, state, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequestTimeout returns the bounded timeout for short API calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// SubmitTimeout returns the bounded timeout for POST /api/download.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Server.SubmitTimeout) * time.Second
}

// HandshakeTimeout returns the WebSocket handshake timeout.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Stream.HandshakeTimeout) * time.Second
}

// NotifyInterval returns the minimum spacing between background progress notifications.
func (c *Config) NotifyInterval() time.Duration {
	return time.Duration(c.Notifications.MinIntervalSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// ErrConfigExists is returned by WriteSample when the target is already
// present and overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// WriteSample writes the annotated sample configuration and returns the
// absolute path written. An empty path selects DefaultConfigPath.
func WriteSample(path string, overwrite bool) (string, error) {
	var err error
	if path = strings.TrimSpace(path); path == "" {
		path, err = DefaultConfigPath()
	} else {
		path, err = expandPath(path)
	}
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return path, fmt.Errorf("%w at %s (use --overwrite to replace it)", ErrConfigExists, path)
	}
	if err != nil {
		return "", fmt.Errorf("write sample config: %w", err)
	}
	if _, err := file.WriteString(sampleConfig); err != nil {
		file.Close()
		return "", fmt.Errorf("write sample config: %w", err)
	}
	return path, file.Close()
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
