package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"mvdown/internal/backend"
	"mvdown/internal/config"
	"mvdown/internal/logging"
	"mvdown/internal/transport"
)

type globalFlags struct {
	config    string
	server    string
	transport string
	verbose   bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if server := strings.TrimSpace(c.flags.server); server != "" {
			cfg.Server.URL = strings.TrimRight(server, "/")
		}
		if kind := strings.TrimSpace(c.flags.transport); kind != "" {
			cfg.Stream.Transport = strings.ToLower(kind)
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg, c.flags.verbose)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) client() (*backend.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := backend.NewFromConfig(cfg, c.loggerValue())
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	return client, nil
}

func (c *commandContext) transport() (transport.Transport, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return transport.New(cfg.Stream.Transport, cfg.Server.URL,
		transport.WithHandshakeTimeout(cfg.HandshakeTimeout()),
		transport.WithUserAgent(cfg.Server.UserAgent),
		transport.WithLogger(c.loggerValue()),
	)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
