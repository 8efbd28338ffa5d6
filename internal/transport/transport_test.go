package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvdown/internal/services"
)

func collect(t *testing.T, ch <-chan Signal) []Signal {
	t.Helper()
	var out []Signal
	timeout := time.After(5 * time.Second)
	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, sig)
		case <-timeout:
			t.Fatalf("timed out collecting signals, got %d so far", len(out))
			return out
		}
	}
}

func next(t *testing.T, ch <-chan Signal) Signal {
	t.Helper()
	select {
	case sig, ok := <-ch:
		require.True(t, ok, "channel closed early")
		return sig
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signal")
		return Signal{}
	}
}

func writeSSE(w http.ResponseWriter, lines ...string) {
	for _, line := range lines {
		fmt.Fprint(w, line+"\n")
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func sseHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
}

func TestSSEDeliversFramesThenClosed(t *testing.T) {
	seen := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- [2]string{r.Header.Get("Accept"), r.URL.Path}
		sseHeaders(w)
		writeSSE(w,
			": keepalive",
			"event: connected",
			`data: {"event":"connected"}`,
			"",
			"event: progress",
			`data: {"status":"downloading","percent":"10%"}`,
			"",
			"data:",
			"id: 7",
			`data: {"status":"done","filename":"x.mp3"}`,
			"",
		)
	}))
	defer srv.Close()

	tr, err := NewSSE(srv.URL)
	require.NoError(t, err)
	ch, err := tr.Open(context.Background(), Target{JobID: "abc"})
	require.NoError(t, err)
	defer tr.Close()

	signals := collect(t, ch)
	require.Len(t, signals, 4)
	req := <-seen
	assert.Equal(t, "text/event-stream", req[0])
	assert.Equal(t, "/api/progress/abc", req[1])
	assert.Equal(t, SignalFrame, signals[0].Kind)
	assert.Equal(t, "connected", signals[0].Event)
	assert.Equal(t, `{"status":"downloading","percent":"10%"}`, string(signals[1].Data))
	assert.Equal(t, "progress", signals[1].Event)
	assert.Equal(t, "", signals[2].Event)
	assert.Equal(t, `{"status":"done","filename":"x.mp3"}`, string(signals[2].Data))
	assert.Equal(t, SignalClosed, signals[3].Kind)
}

func TestSSEConnectFailureIsReturnedFromOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "download not found", http.StatusNotFound)
	}))
	tr, err := NewSSE(srv.URL)
	require.NoError(t, err)

	_, err = tr.Open(context.Background(), Target{JobID: "missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrTransport))
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "download not found")

	srv.Close()
	_, err = tr.Open(context.Background(), Target{JobID: "abc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrTransport))
}

func TestSSEMidStreamErrorIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeSSE(w, `data: {"status":"downloading","percent":5}`)
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	tr, err := NewSSE(srv.URL)
	require.NoError(t, err)
	ch, err := tr.Open(context.Background(), Target{JobID: "abc"})
	require.NoError(t, err)
	defer tr.Close()

	signals := collect(t, ch)
	require.Len(t, signals, 2)
	assert.Equal(t, SignalFrame, signals[0].Kind)
	assert.Equal(t, SignalFailed, signals[1].Kind)
	assert.True(t, errors.Is(signals[1].Err, services.ErrTransport))
}

func TestSSECloseIsIdempotentAndSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeSSE(w, `data: {"status":"downloading","percent":1}`)
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr, err := NewSSE(srv.URL)
	require.NoError(t, err)
	ch, err := tr.Open(context.Background(), Target{JobID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, SignalFrame, next(t, ch).Kind)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, ok := <-ch
	assert.False(t, ok, "no signal may follow a local close")
}

func TestSSEOpenReplacesPreviousStream(t *testing.T) {
	var active atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		active.Add(1)
		defer active.Add(-1)
		sseHeaders(w)
		writeSSE(w, fmt.Sprintf(`data: {"job":%q}`, r.URL.Path))
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr, err := NewSSE(srv.URL)
	require.NoError(t, err)
	first, err := tr.Open(context.Background(), Target{JobID: "one"})
	require.NoError(t, err)
	next(t, first)

	second, err := tr.Open(context.Background(), Target{JobID: "two"})
	require.NoError(t, err)
	defer tr.Close()

	_, ok := <-first
	assert.False(t, ok, "first stream must be closed before the second opens")
	assert.Contains(t, string(next(t, second).Data), "/api/progress/two")
	require.Eventually(t, func() bool { return active.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSSEParentCancelEndsStreamWithoutSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeSSE(w, `data: {}`)
		<-r.Context().Done()
	}))
	defer srv.Close()

	tr, err := NewSSE(srv.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := tr.Open(ctx, Target{JobID: "abc"})
	require.NoError(t, err)
	next(t, ch)
	cancel()
	assert.Empty(t, collect(t, ch))
	require.NoError(t, tr.Close())
}

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func TestWebSocketDeliversFramesThenClosed(t *testing.T) {
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"downloading","percent":20}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"done","filename":"a.mp4"}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	tr, err := NewWebSocket(srv.URL)
	require.NoError(t, err)
	ch, err := tr.Open(context.Background(), Target{JobID: "abc"})
	require.NoError(t, err)
	defer tr.Close()

	signals := collect(t, ch)
	require.Len(t, signals, 3)
	assert.Equal(t, "/ws/abc", <-paths)
	assert.Equal(t, `{"status":"downloading","percent":20}`, string(signals[0].Data))
	assert.Equal(t, SignalFrame, signals[1].Kind)
	assert.Equal(t, SignalClosed, signals[2].Kind)
}

func TestWebSocketAbnormalDropIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"status":"downloading"}`))
		conn.NetConn().Close()
	}))
	defer srv.Close()

	tr, err := NewWebSocket(srv.URL)
	require.NoError(t, err)
	ch, err := tr.Open(context.Background(), Target{JobID: "abc"})
	require.NoError(t, err)
	defer tr.Close()

	signals := collect(t, ch)
	require.Len(t, signals, 2)
	assert.Equal(t, SignalFailed, signals[1].Kind)
	assert.True(t, errors.Is(signals[1].Err, services.ErrTransport))
}

func TestWebSocketCloseSendsCloseFrame(t *testing.T) {
	closeCode := make(chan int, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					closeCode <- ce.Code
				} else {
					closeCode <- -1
				}
				return
			}
		}
	}))
	defer srv.Close()

	tr, err := NewWebSocket(srv.URL)
	require.NoError(t, err)
	ch, err := tr.Open(context.Background(), Target{JobID: "abc"})
	require.NoError(t, err)
	next(t, ch)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	_, ok := <-ch
	assert.False(t, ok)

	select {
	case code := <-closeCode:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(5 * time.Second):
		t.Fatal("server never observed the close")
	}
}

func TestWebSocketHandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr, err := NewWebSocket(srv.URL)
	require.NoError(t, err)
	_, err = tr.Open(context.Background(), Target{JobID: "abc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrTransport))
	assert.Contains(t, err.Error(), "404")
}

func TestAutoFallsBackToSSE(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/progress/{id}", func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		writeSSE(w, `data: {"status":"starting"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr, err := NewAuto(srv.URL, KindWebSocket)
	require.NoError(t, err)
	assert.Equal(t, KindAuto, tr.Kind())

	ch, err := tr.Open(context.Background(), Target{JobID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, KindSSE, tr.Kind())

	signals := collect(t, ch)
	require.Len(t, signals, 2)
	assert.Equal(t, SignalClosed, signals[1].Kind)
	require.NoError(t, tr.Close())
	assert.Equal(t, KindAuto, tr.Kind())
}

func TestAutoReportsBothFailures(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr, err := NewAuto(srv.URL, KindSSE)
	require.NoError(t, err)
	_, err = tr.Open(context.Background(), Target{JobID: "abc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrTransport))
	assert.Contains(t, err.Error(), "/api/progress/abc")
	assert.Contains(t, err.Error(), "/ws/abc")
}

func TestResolveEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		target Target
		def    string
		want   string
	}{
		{"default path", "http://host:8000", Target{JobID: "abc"}, "api/progress/", "http://host:8000/api/progress/abc"},
		{"base with prefix", "http://host/mv/", Target{JobID: "abc"}, "ws/", "http://host/mv/ws/abc"},
		{"advertised relative", "http://host:8000", Target{JobID: "abc", URL: "/api/progress/abc?since=3"}, "api/progress/", "http://host:8000/api/progress/abc?since=3"},
		{"advertised absolute", "http://host:8000", Target{JobID: "abc", URL: "wss://edge.example/ws/abc"}, "ws/", "wss://edge.example/ws/abc"},
		{"escaped id", "host:8000", Target{JobID: "a b"}, "api/progress/", "http://host:8000/api/progress/a%20b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, err := parseBase(tt.base)
			require.NoError(t, err)
			got, err := resolve(base, tt.target, tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	base, err := parseBase("http://host")
	require.NoError(t, err)
	_, err = resolve(base, Target{}, "ws/")
	assert.True(t, errors.Is(err, services.ErrValidation))
}

func TestNewSelectsKind(t *testing.T) {
	for kind, want := range map[string]Kind{"sse": KindSSE, "": KindSSE, "websocket": KindWebSocket, "WS": KindWebSocket, "auto": KindAuto} {
		tr, err := New(kind, "http://host")
		require.NoError(t, err, kind)
		assert.Equal(t, want, tr.Kind(), kind)
	}
	_, err := New("pigeon", "http://host")
	assert.True(t, errors.Is(err, services.ErrConfiguration))
	assert.Equal(t, "failed", SignalFailed.String())
}

// stallingServer accepts requests but never writes response headers.
func stallingServer(t *testing.T) (*httptest.Server, <-chan string) {
	t.Helper()
	arrived := make(chan string, 4)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- r.URL.Path
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv, arrived
}

func requireCloseAbortsConnect(t *testing.T, tr Transport, arrived <-chan string, wantPath string) {
	t.Helper()
	opened := make(chan error, 1)
	go func() {
		_, err := tr.Open(context.Background(), Target{JobID: "abc"})
		opened <- err
	}()

	select {
	case path := <-arrived:
		require.Equal(t, wantPath, path)
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}

	closed := make(chan error, 1)
	go func() { closed <- tr.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked while Open was connecting")
	}

	select {
	case err := <-opened:
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrTransport))
		assert.Contains(t, err.Error(), "closed while connecting")
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not return after Close")
	}
	require.NoError(t, tr.Close())
}

func TestSSECloseAbortsPendingConnect(t *testing.T) {
	srv, arrived := stallingServer(t)
	tr, err := NewSSE(srv.URL)
	require.NoError(t, err)
	requireCloseAbortsConnect(t, tr, arrived, "/api/progress/abc")
}

func TestWebSocketCloseAbortsPendingHandshake(t *testing.T) {
	srv, arrived := stallingServer(t)
	tr, err := NewWebSocket(srv.URL, WithHandshakeTimeout(time.Minute))
	require.NoError(t, err)
	requireCloseAbortsConnect(t, tr, arrived, "/ws/abc")
}

func TestAutoCloseAbortsPendingConnectWithoutFallback(t *testing.T) {
	srv, arrived := stallingServer(t)
	tr, err := NewAuto(srv.URL, KindSSE, WithHandshakeTimeout(time.Minute))
	require.NoError(t, err)
	requireCloseAbortsConnect(t, tr, arrived, "/api/progress/abc")

	select {
	case path := <-arrived:
		t.Fatalf("unexpected fallback request to %s after Close", path)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, KindAuto, tr.Kind())
}

func TestSSEOpenSupersedesPendingConnect(t *testing.T) {
	var stalled atomic.Bool
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if stalled.CompareAndSwap(false, true) {
			select {
			case <-r.Context().Done():
			case <-release:
			}
			return
		}
		sseHeaders(w)
		writeSSE(w, `data: {"status":"done","filename":"x.mp3"}`)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	tr, err := NewSSE(srv.URL)
	require.NoError(t, err)
	first := make(chan error, 1)
	go func() {
		_, err := tr.Open(context.Background(), Target{JobID: "first"})
		first <- err
	}()
	require.Eventually(t, stalled.Load, 5*time.Second, 10*time.Millisecond)

	ch, err := tr.Open(context.Background(), Target{JobID: "second"})
	require.NoError(t, err)
	select {
	case err := <-first:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded Open did not return")
	}

	signals := collect(t, ch)
	require.Len(t, signals, 2)
	assert.Equal(t, SignalFrame, signals[0].Kind)
	assert.Equal(t, SignalClosed, signals[1].Kind)
	require.NoError(t, tr.Close())
}
