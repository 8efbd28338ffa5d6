package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"mvdown/internal/logging"
	"mvdown/internal/services"
)

const maxSSELine = 1 << 20

// SSE streams progress frames from GET {base}/api/progress/{id}.
type SSE struct {
	base   *url.URL
	opts   options
	logger *slog.Logger

	slot slot
}

// NewSSE constructs an SSE transport for the backend at baseURL.
func NewSSE(baseURL string, opts ...Option) (*SSE, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &SSE{
		base:   base,
		opts:   o,
		logger: logging.NewComponentLogger(o.logger, "sse"),
	}, nil
}

// Kind implements Transport.
func (t *SSE) Kind() Kind { return KindSSE }

// Open connects and starts the reader. A previous stream is closed first.
func (t *SSE) Open(ctx context.Context, target Target) (<-chan Signal, error) {
	endpoint, err := resolve(t.base, target, "api/progress/")
	if err != nil {
		return nil, err
	}

	s, streamCtx := t.slot.claim(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		t.slot.abandon(s)
		return nil, services.Wrap(services.ErrTransport, "sse", "connect", endpoint.String(), err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if t.opts.userAgent != "" {
		req.Header.Set("User-Agent", t.opts.userAgent)
	}

	resp, err := t.opts.client.Do(req)
	if err != nil {
		t.slot.abandon(s)
		if streamCtx.Err() != nil && ctx.Err() == nil {
			return nil, closedWhileConnecting("sse", endpoint.String())
		}
		return nil, services.Wrap(services.ErrTransport, "sse", "connect", endpoint.String(), err)
	}
	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		t.slot.abandon(s)
		return nil, services.Wrap(services.ErrTransport, "sse", "connect",
			fmt.Sprintf("%s returned %d: %s", endpoint.Path, resp.StatusCode, strings.TrimSpace(string(excerpt))), nil)
	}
	if !t.slot.commit(s) {
		resp.Body.Close()
		t.slot.abandon(s)
		return nil, closedWhileConnecting("sse", endpoint.String())
	}

	out := make(chan Signal)
	t.logger.Debug("sse stream opened", logging.String(logging.FieldJobID, target.JobID), logging.String("endpoint", endpoint.String()))
	go t.read(streamCtx, resp.Body, out, s)
	return out, nil
}

func (t *SSE) read(ctx context.Context, body io.ReadCloser, out chan<- Signal, s *session) {
	defer close(s.done)
	defer close(out)
	defer body.Close()
	defer s.cancel()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	var eventName string
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		switch {
		case line == "":
			eventName = ""
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if strings.TrimSpace(data) == "" {
				continue
			}
			if !emit(ctx, out, Signal{Kind: SignalFrame, Event: eventName, Data: []byte(data)}) {
				return
			}
		}
	}
	err := scanner.Err()
	if err != nil && ctx.Err() == nil {
		t.logger.Debug("sse stream failed", logging.Error(err))
		err = services.Wrap(services.ErrTransport, "sse", "read", "", err)
	}
	finish(ctx, out, err, err == nil)
}

// Close ends the current stream, or aborts one still connecting. It is safe
// to call repeatedly and from any goroutine.
func (t *SSE) Close() error {
	t.slot.release()
	return nil
}
