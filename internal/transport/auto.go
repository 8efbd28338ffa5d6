package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"mvdown/internal/logging"
	"mvdown/internal/services"
)

// Auto picks a wire format per Open. An explicit target URL decides by its
// scheme; otherwise the preferred kind is tried first and the other one is used
// when the preferred transport cannot connect.
type Auto struct {
	sse    *SSE
	ws     *WebSocket
	prefer Kind
	logger *slog.Logger

	mu      sync.Mutex
	current Transport
	gen     uint64
}

// NewAuto builds an Auto transport that tries prefer first.
func NewAuto(baseURL string, prefer Kind, opts ...Option) (*Auto, error) {
	sse, err := NewSSE(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	ws, err := NewWebSocket(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	if prefer != KindSSE {
		prefer = KindWebSocket
	}
	return &Auto{sse: sse, ws: ws, prefer: prefer, logger: logging.NewComponentLogger(buildOptions(opts).logger, "transport")}, nil
}

// Kind reports the kind of the live stream, or KindAuto when idle.
func (a *Auto) Kind() Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return KindAuto
	}
	return a.current.Kind()
}

// Open implements Transport. The lock is released while candidates connect,
// so Close or a newer Open can abort this one.
func (a *Auto) Open(ctx context.Context, target Target) (<-chan Signal, error) {
	a.mu.Lock()
	a.gen++
	gen := a.gen
	prev := a.current
	a.current = nil
	a.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	var errs []error
	for i, candidate := range a.order(target) {
		attempt := target
		if i > 0 {
			// An explicit URL belongs to the first candidate only.
			attempt.URL = ""
		}
		ch, err := candidate.Open(ctx, attempt)
		if err == nil {
			a.mu.Lock()
			if a.gen == gen {
				a.current = candidate
				a.mu.Unlock()
				return ch, nil
			}
			a.mu.Unlock()
			_ = candidate.Close()
			return nil, closedWhileConnecting("transport", string(candidate.Kind()))
		}
		errs = append(errs, err)
		if ctx.Err() != nil || errors.Is(err, services.ErrValidation) || a.superseded(gen) {
			break
		}
		logging.WarnWithContext(a.logger, "stream connect failed, trying fallback", "transport_fallback",
			logging.String(logging.FieldJobID, target.JobID),
			logging.String(logging.FieldTransport, string(candidate.Kind())),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the backend exposes both /api/progress and /ws endpoints"),
		)
	}
	return nil, errors.Join(errs...)
}

func (a *Auto) superseded(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gen != gen
}

func (a *Auto) order(target Target) []Transport {
	if ref := strings.TrimSpace(target.URL); ref != "" {
		if u, err := url.Parse(ref); err == nil {
			switch u.Scheme {
			case "ws", "wss":
				return []Transport{a.ws, a.sse}
			case "http", "https":
				return []Transport{a.sse, a.ws}
			}
			if strings.Contains(u.Path, "/ws/") || strings.HasPrefix(u.Path, "ws/") {
				return []Transport{a.ws, a.sse}
			}
			return []Transport{a.sse, a.ws}
		}
	}
	if a.prefer == KindSSE {
		return []Transport{a.sse, a.ws}
	}
	return []Transport{a.ws, a.sse}
}

// Close ends the live stream, if any, and aborts an Open still connecting.
func (a *Auto) Close() error {
	a.mu.Lock()
	a.gen++
	a.current = nil
	a.mu.Unlock()
	return errors.Join(a.ws.Close(), a.sse.Close())
}
