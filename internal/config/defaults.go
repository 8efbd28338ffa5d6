package config

const (
	defaultServerURL          = "http://192.168.1.100:8000"
	defaultRequestTimeout     = 15
	defaultSubmitTimeout      = 30
	defaultUserAgent          = "mvdown/0.1.0"
	defaultTransport          = TransportSSE
	defaultHandshakeTimeout   = 10
	defaultDownloadDir        = "~/Downloads/mvdown"
	defaultStateDir           = "~/.local/state/mvdown"
	defaultLogDir             = "~/.local/share/mvdown/logs"
	defaultNtfyRequestTimeout = 10
	defaultNotifyInterval     = 15
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Transport names accepted by stream.transport.
const (
	TransportAuto      = "auto"
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			URL:            defaultServerURL,
			RequestTimeout: defaultRequestTimeout,
			SubmitTimeout:  defaultSubmitTimeout,
			UserAgent:      defaultUserAgent,
		},
		Stream: Stream{
			Transport:        defaultTransport,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			StateDir:    defaultStateDir,
			LogDir:      defaultLogDir,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNtfyRequestTimeout,
			Progress:           true,
			Completed:          true,
			Errors:             true,
			MinIntervalSeconds: defaultNotifyInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
