package testsupport

import (
	"path/filepath"
	"testing"

	"mvdown/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Server.URL = "http://127.0.0.1:1"
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Notifications.MinIntervalSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithServerURL points the config at a test backend.
func WithServerURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.URL = url
	}
}

// WithTransport selects the stream transport.
func WithTransport(kind string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Stream.Transport = kind
	}
}

// WithNtfyTopic enables notifications against the given endpoint.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithoutLogDir disables the JSON log file.
func WithoutLogDir() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.LogDir = ""
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
