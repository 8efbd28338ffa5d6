package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"mvdown/internal/logging"
	"mvdown/internal/services"
)

const closeGrace = time.Second

// WebSocket streams progress frames from {ws|wss}://{base}/ws/{id}.
type WebSocket struct {
	base   *url.URL
	opts   options
	dialer *websocket.Dialer
	logger *slog.Logger

	slot slot
}

// NewWebSocket constructs a WebSocket transport for the backend at baseURL.
func NewWebSocket(baseURL string, opts ...Option) (*WebSocket, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &WebSocket{
		base: base,
		opts: o,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: o.handshakeTimeout,
		},
		logger: logging.NewComponentLogger(o.logger, "websocket"),
	}, nil
}

// Kind implements Transport.
func (t *WebSocket) Kind() Kind { return KindWebSocket }

// Open dials and starts the reader. A previous stream is closed first.
func (t *WebSocket) Open(ctx context.Context, target Target) (<-chan Signal, error) {
	endpoint, err := resolve(t.base, target, "ws/")
	if err != nil {
		return nil, err
	}
	endpoint = toWebSocketScheme(endpoint)

	header := http.Header{}
	if t.opts.userAgent != "" {
		header.Set("User-Agent", t.opts.userAgent)
	}
	s, streamCtx := t.slot.claim(ctx)
	conn, resp, err := t.dialer.DialContext(streamCtx, endpoint.String(), header)
	if err != nil {
		t.slot.abandon(s)
		if streamCtx.Err() != nil && ctx.Err() == nil {
			return nil, closedWhileConnecting("websocket", endpoint.String())
		}
		detail := endpoint.String()
		if resp != nil {
			detail = fmt.Sprintf("%s returned %d", endpoint.Path, resp.StatusCode)
		}
		return nil, services.Wrap(services.ErrTransport, "websocket", "connect", detail, err)
	}
	if !t.slot.commit(s) {
		conn.Close()
		t.slot.abandon(s)
		return nil, closedWhileConnecting("websocket", endpoint.String())
	}

	// Cancellation must unblock ReadMessage, which does not observe ctx.
	context.AfterFunc(streamCtx, func() {
		deadline := time.Now().Add(closeGrace)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	})

	out := make(chan Signal)
	t.logger.Debug("websocket stream opened", logging.String(logging.FieldJobID, target.JobID), logging.String("endpoint", endpoint.String()))
	go t.read(streamCtx, conn, out, s)
	return out, nil
}

func (t *WebSocket) read(ctx context.Context, conn *websocket.Conn, out chan<- Signal, s *session) {
	defer close(s.done)
	defer close(out)
	defer s.cancel()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			clean := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			if !clean && ctx.Err() == nil {
				t.logger.Debug("websocket stream failed", logging.Error(err))
				err = services.Wrap(services.ErrTransport, "websocket", "read", "", err)
			}
			finish(ctx, out, err, clean)
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		if !emit(ctx, out, Signal{Kind: SignalFrame, Data: data}) {
			return
		}
	}
}

// Close sends a close frame, drops the connection, and waits for the reader.
// A dial still in progress is aborted. It is safe to call repeatedly.
func (t *WebSocket) Close() error {
	t.slot.release()
	return nil
}

func toWebSocketScheme(u *url.URL) *url.URL {
	out := *u
	switch out.Scheme {
	case "https":
		out.Scheme = "wss"
	case "http":
		out.Scheme = "ws"
	}
	return &out
}
