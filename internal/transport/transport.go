package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mvdown/internal/logging"
	"mvdown/internal/services"
)

// Kind names a wire format.
type Kind string

const (
	KindSSE       Kind = "sse"
	KindWebSocket Kind = "websocket"
	KindAuto      Kind = "auto"
)

// SignalKind distinguishes stream signals.
type SignalKind int

const (
	// SignalFrame carries one raw payload.
	SignalFrame SignalKind = iota
	// SignalClosed reports an orderly close by the server.
	SignalClosed
	// SignalFailed reports a mid-stream I/O error.
	SignalFailed
)

func (k SignalKind) String() string {
	switch k {
	case SignalFrame:
		return "frame"
	case SignalClosed:
		return "closed"
	case SignalFailed:
		return "failed"
	default:
		return fmt.Sprintf("signal(%d)", int(k))
	}
}

// Signal is one item delivered on the channel returned by Open.
type Signal struct {
	Kind SignalKind
	// Event is the SSE event field that preceded the payload, if any.
	Event string
	Data  []byte
	Err   error
}

// Target identifies the stream to open. URL is optional; when set it
// overrides the default endpoint for the job and may be relative to the
// backend base URL.
type Target struct {
	JobID string
	URL   string
}

// Transport is a single-connection progress stream.
type Transport interface {
	Open(ctx context.Context, target Target) (<-chan Signal, error)
	Close() error
	Kind() Kind
}

// New builds the transport named by kind against the backend base URL.
func New(kind string, baseURL string, opts ...Option) (Transport, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindSSE, "":
		return NewSSE(baseURL, opts...)
	case KindWebSocket, "ws":
		return NewWebSocket(baseURL, opts...)
	case KindAuto:
		return NewAuto(baseURL, KindWebSocket, opts...)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "transport", "select", fmt.Sprintf("unknown transport %q", kind), nil)
	}
}

// Option customizes transport construction.
type Option func(*options)

type options struct {
	client           *http.Client
	handshakeTimeout time.Duration
	userAgent        string
	logger           *slog.Logger
}

func buildOptions(opts []Option) options {
	o := options{handshakeTimeout: 10 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.client == nil {
		// No timeout: the stream stays open until the job ends or the caller cancels.
		o.client = &http.Client{}
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	return o
}

// WithHTTPClient sets the client used for SSE requests. It must not carry an
// overall timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

// WithHandshakeTimeout bounds the WebSocket opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header on stream requests.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = strings.TrimSpace(ua) }
}

// WithLogger sets the logger; the component attribute is added by the transport.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func parseBase(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transport", "parse base url", "base url is empty", nil)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "transport", "parse base url", raw, err)
	}
	base.RawQuery = ""
	base.Fragment = ""
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base, nil
}

// resolve joins a relative endpoint onto the base URL, keeping any path prefix
// the backend is mounted under.
func resolve(base *url.URL, target Target, defaultPath string) (*url.URL, error) {
	ref := strings.TrimSpace(target.URL)
	if ref == "" {
		if strings.TrimSpace(target.JobID) == "" {
			return nil, services.Wrap(services.ErrValidation, "transport", "resolve", "job id is empty", nil)
		}
		ref = defaultPath + url.PathEscape(target.JobID)
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "transport", "resolve", ref, err)
	}
	if parsed.IsAbs() {
		return parsed, nil
	}
	parsed.Path = strings.TrimPrefix(parsed.Path, "/")
	if parsed.RawPath != "" {
		parsed.RawPath = strings.TrimPrefix(parsed.RawPath, "/")
	}
	return base.ResolveReference(parsed), nil
}

// session is one connection, pending while Open is still connecting. stop
// cancels it and waits until either the reader or the failed Open has let go.
type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *session) stop() {
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

// slot holds the single session of a transport. The mutex is never held
// across network I/O, so Close can cancel a connect in progress.
type slot struct {
	mu     sync.Mutex
	active *session
}

// claim registers a pending session, replacing and stopping any previous one.
func (sl *slot) claim(ctx context.Context) (*session, context.Context) {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel, done: make(chan struct{})}
	sl.mu.Lock()
	prev := sl.active
	sl.active = s
	sl.mu.Unlock()
	prev.stop()
	return s, streamCtx
}

// commit reports whether s is still the current session after connecting.
// After a true result the caller must start the reader, which closes s.done.
func (sl *slot) commit(s *session) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.active == s
}

// abandon releases a session whose connect failed or was superseded.
func (sl *slot) abandon(s *session) {
	sl.mu.Lock()
	if sl.active == s {
		sl.active = nil
	}
	sl.mu.Unlock()
	s.cancel()
	close(s.done)
}

// release stops the current session, pending or live.
func (sl *slot) release() {
	sl.mu.Lock()
	s := sl.active
	sl.active = nil
	sl.mu.Unlock()
	s.stop()
}

func closedWhileConnecting(component, endpoint string) error {
	return services.Wrap(services.ErrTransport, component, "connect", endpoint+": closed while connecting", context.Canceled)
}

// emit delivers sig unless ctx is cancelled first.
func emit(ctx context.Context, out chan<- Signal, sig Signal) bool {
	select {
	case out <- sig:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish reports the end of a stream. Nothing is sent once the session has
// been cancelled so a local Close never looks like a server close.
func finish(ctx context.Context, out chan<- Signal, err error, clean bool) {
	if ctx.Err() != nil {
		return
	}
	if clean {
		emit(ctx, out, Signal{Kind: SignalClosed})
		return
	}
	emit(ctx, out, Signal{Kind: SignalFailed, Err: err})
}
