package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	c.normalizeServer()
	c.normalizeStream()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeServer() {
	url := strings.TrimSpace(c.Server.URL)
	if url == "" {
		url = defaultServerURL
	}
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	c.Server.URL = strings.TrimRight(url, "/")
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = defaultRequestTimeout
	}
	if c.Server.SubmitTimeout <= 0 {
		c.Server.SubmitTimeout = defaultSubmitTimeout
	}
	c.Server.UserAgent = strings.TrimSpace(c.Server.UserAgent)
	if c.Server.UserAgent == "" {
		c.Server.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeStream() {
	transport := strings.ToLower(strings.TrimSpace(c.Stream.Transport))
	switch transport {
	case "":
		transport = defaultTransport
	case "ws":
		transport = TransportWebSocket
	case "sse", "eventsource":
		transport = TransportSSE
	}
	c.Stream.Transport = transport
	if c.Stream.HandshakeTimeout <= 0 {
		c.Stream.HandshakeTimeout = defaultHandshakeTimeout
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DownloadDir) == "" {
		c.Paths.DownloadDir = defaultDownloadDir
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
	if c.Notifications.MinIntervalSeconds < 0 {
		c.Notifications.MinIntervalSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
