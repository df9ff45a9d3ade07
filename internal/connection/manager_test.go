package connection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/kapchan/internal/hooks"
	"github.com/soyeahso/kapchan/internal/logging"
	"github.com/soyeahso/kapchan/internal/protocol"
	"github.com/soyeahso/kapchan/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type harness struct {
	m      *Manager
	reg    *service.Registry
	hooks  *hooks.Manager
	dialer *fakeDialer
	clock  *fakeClock
	creds  *fakeCredentials
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logging.New(nil, "silent")
	h := &harness{
		reg:    service.NewRegistry(log),
		hooks:  hooks.NewManager(log),
		dialer: &fakeDialer{},
		clock:  &fakeClock{},
		creds:  &fakeCredentials{token: "tok-1"},
	}
	cfg := Config{
		URL:         "ws://kapchan.test/ws",
		BackoffBase: time.Second,
		BackoffMax:  625 * time.Second,
		Multiplier:  5,
	}
	h.m = New(cfg, h.reg, log, WithDialer(h.dialer), WithCredentials(h.creds), WithHooks(h.hooks))
	h.m.afterFunc = h.clock.AfterFunc
	t.Cleanup(func() { h.m.Close() })
	return h
}

func request(method protocol.MethodID, body string) protocol.Request {
	return protocol.Request{Method: method, Body: body}
}

func bodies(t *testing.T, frames []string) []string {
	t.Helper()
	out := make([]string, 0, len(frames))
	for _, raw := range frames {
		f, err := protocol.Decode([]byte(raw))
		require.NoError(t, err)
		require.NotNil(t, f.Request)
		out = append(out, f.Request.Body)
	}
	return out
}

func encode(t *testing.T, f protocol.Frame) string {
	t.Helper()
	data, err := protocol.Encode(f)
	require.NoError(t, err)
	return string(data)
}

func TestManager_QueuedFramesFlushInOrderOnOpen(t *testing.T) {
	h := newHarness(t)

	h.m.Send(protocol.ChatService, request(1, "a"), nil)
	h.m.Send(protocol.ChatService, request(1, "b"), nil)
	h.m.Send(protocol.BoardService, request(2, "c"), nil)
	assert.Equal(t, 3, h.m.Queued())
	assert.Equal(t, Uninitialized, h.m.State())

	require.NoError(t, h.m.Open(context.Background()))
	assert.Equal(t, Ready, h.m.State())

	h.m.Send(protocol.ChatService, request(1, "d"), nil)

	sock := h.dialer.socket(0)
	require.Eventually(t, func() bool { return len(sock.sent()) == 4 }, waitFor, tick)
	assert.Equal(t, []string{"a", "b", "c", "d"}, bodies(t, sock.sent()))
	assert.Equal(t, 0, h.m.Queued())
}

func TestManager_SendWhenReadyWritesImmediately(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.Open(context.Background()))

	id := h.m.Send(protocol.UserService, request(1, `{"username":"anon"}`), nil)
	assert.NotEmpty(t, id)

	sock := h.dialer.socket(0)
	require.Eventually(t, func() bool { return len(sock.sent()) == 1 }, waitFor, tick)
	assert.Equal(t, 0, h.m.Queued())
	sent := sock.sent()
	f, err := protocol.Decode([]byte(sent[0]))
	require.NoError(t, err)
	assert.Equal(t, protocol.UserService, f.Service)
	assert.Equal(t, id, f.RequestID)
}

func TestManager_DialCarriesBearerToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.Open(context.Background()))
	assert.Equal(t, "Bearer tok-1", h.dialer.header(0).Get("Authorization"))
	assert.True(t, strings.HasPrefix(h.dialer.header(0).Get("User-Agent"), "kapchan/"))
}

func TestManager_ResponseReachesSendCallback(t *testing.T) {
	h := newHarness(t)
	h.reg.Register(protocol.BoardService, service.Forward)
	require.NoError(t, h.m.Open(context.Background()))

	got := make(chan protocol.Response, 1)
	id := h.m.Send(protocol.BoardService, request(2, ""), func(resp protocol.Response) { got <- resp })

	h.dialer.socket(0).deliver(encode(t, protocol.NewResponse(protocol.BoardService, 2, protocol.Success, "[]").WithRequestID(id)))

	select {
	case resp := <-got:
		assert.Equal(t, protocol.Success, resp.Code)
		assert.Equal(t, "[]", resp.Body)
	case <-time.After(waitFor):
		t.Fatal("callback not invoked")
	}
	assert.Equal(t, 0, h.reg.Pending())
}

func TestManager_UndecodableFrameKeepsSocketOpen(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var codes []protocol.ResponseCode
	h.reg.Register(protocol.UserService, service.HandlerFunc(func(resp protocol.Response, _ service.Callback) {
		mu.Lock()
		codes = append(codes, resp.Code)
		mu.Unlock()
	}))
	require.NoError(t, h.m.Open(context.Background()))

	sock := h.dialer.socket(0)
	sock.deliver(`{"s":"one","r":{}}`)
	sock.deliver(`not json`)
	sock.deliver(encode(t, protocol.NewResponse(protocol.UserService, 4, protocol.NotFound, "...")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(codes) == 1
	}, waitFor, tick)
	assert.Equal(t, []protocol.ResponseCode{protocol.NotFound}, codes)
	assert.False(t, sock.isClosed())
	assert.Equal(t, Ready, h.m.State())
	assert.Empty(t, h.clock.scheduled())
}

func TestManager_SessionInvalidCloseDiscardsCredential(t *testing.T) {
	h := newHarness(t)

	invalidated := make(chan struct{}, 1)
	h.hooks.On(hooks.EventSessionInvalidated, "test", func(_ context.Context, _ hooks.Payload) error {
		invalidated <- struct{}{}
		return nil
	})
	require.NoError(t, h.m.Open(context.Background()))

	h.dialer.socket(0).drop(&websocket.CloseError{Code: 4000, Text: SessionInvalidReason})

	select {
	case <-invalidated:
	case <-time.After(waitFor):
		t.Fatal("session_invalidated not emitted")
	}
	require.Eventually(t, func() bool { return len(h.clock.scheduled()) == 1 }, waitFor, tick)
	assert.Equal(t, Closed, h.m.State())
	assert.Equal(t, 1, h.creds.discards())
	assert.Equal(t, []time.Duration{time.Second}, h.clock.scheduled())

	// The next attempt goes out without the discarded credential.
	h.clock.fire()
	require.Equal(t, 2, h.dialer.dials())
	assert.Empty(t, h.dialer.header(1).Get("Authorization"))
	assert.Equal(t, Ready, h.m.State())
}

func TestManager_OrdinaryCloseKeepsCredential(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"empty reason", &websocket.CloseError{Code: websocket.CloseGoingAway}, ""},
		{"other reason", &websocket.CloseError{Code: 4000, Text: "7"}, "7"},
		{"transport error", io.ErrUnexpectedEOF, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			closed := make(chan hooks.Payload, 1)
			h.hooks.On(hooks.EventConnectionClosed, "test", func(_ context.Context, p hooks.Payload) error {
				closed <- p
				return nil
			})
			require.NoError(t, h.m.Open(context.Background()))

			h.dialer.socket(0).drop(tt.err)

			select {
			case p := <-closed:
				assert.Equal(t, tt.reason, p.String("reason"))
			case <-time.After(waitFor):
				t.Fatal("connection_closed not emitted")
			}
			assert.Equal(t, 0, h.creds.discards())
			assert.Equal(t, []time.Duration{time.Second}, h.clock.scheduled())
			assert.True(t, h.dialer.socket(0).isClosed())

			h.clock.fire()
			assert.Equal(t, "Bearer tok-1", h.dialer.header(1).Get("Authorization"))
		})
	}
}

func TestManager_SendWhileClosedIsQueuedForNextSocket(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.Open(context.Background()))

	h.dialer.socket(0).drop(io.EOF)
	require.Eventually(t, func() bool { return h.m.State() == Closed }, waitFor, tick)

	h.m.Send(protocol.ChatService, request(1, "while-down"), nil)
	assert.Equal(t, 1, h.m.Queued())
	assert.Empty(t, h.dialer.socket(0).sent())

	h.clock.fire()
	next := h.dialer.socket(1)
	require.Eventually(t, func() bool { return len(next.sent()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"while-down"}, bodies(t, next.sent()))
	assert.Equal(t, 0, h.m.Queued())
}

func TestManager_WriteFailureMidFlushResendsOnNextSocket(t *testing.T) {
	h := newHarness(t)
	writeErr := errors.New("broken pipe")
	h.hooks.On(hooks.EventConnectionOpen, "test", func(_ context.Context, _ hooks.Payload) error {
		if h.dialer.dials() == 1 {
			h.dialer.socket(0).failAfter(1, writeErr)
		}
		return nil
	})

	for _, body := range []string{"a", "b", "c"} {
		h.m.Send(protocol.ChatService, request(1, body), nil)
	}
	require.NoError(t, h.m.Open(context.Background()))

	first := h.dialer.socket(0)
	require.Eventually(t, func() bool { return len(h.clock.scheduled()) == 1 }, waitFor, tick)
	assert.True(t, first.isClosed())
	assert.Equal(t, Closed, h.m.State())
	assert.Equal(t, []time.Duration{time.Second}, h.clock.scheduled())
	assert.Equal(t, []string{"a"}, bodies(t, first.sent()))
	assert.Equal(t, 2, h.m.Queued())

	h.clock.fire()
	second := h.dialer.socket(1)
	require.Eventually(t, func() bool { return len(second.sent()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"b", "c"}, bodies(t, second.sent()))
	assert.Equal(t, []string{"a"}, bodies(t, first.sent()))
	assert.Equal(t, 0, h.m.Queued())
	assert.Equal(t, Ready, h.m.State())
}

func TestManager_WriteFailureWhileReadyReconnects(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.Open(context.Background()))

	first := h.dialer.socket(0)
	first.failAfter(0, errors.New("connection reset by peer"))
	h.m.Send(protocol.UserService, request(1, "x"), nil)

	require.Eventually(t, func() bool { return len(h.clock.scheduled()) == 1 }, waitFor, tick)
	assert.True(t, first.isClosed())
	assert.Equal(t, Closed, h.m.State())
	assert.Empty(t, first.sent())
	assert.Equal(t, 1, h.m.Queued())

	h.clock.fire()
	second := h.dialer.socket(1)
	require.Eventually(t, func() bool { return len(second.sent()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"x"}, bodies(t, second.sent()))
	assert.Equal(t, 0, h.m.Queued())
}

func TestManager_StalledWriteDoesNotBlockSend(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.Open(context.Background()))

	sock := h.dialer.socket(0)
	release := sock.hold()
	defer release()

	returned := make(chan struct{})
	go func() {
		h.m.Send(protocol.ChatService, request(1, "a"), nil)
		h.m.Send(protocol.ChatService, request(1, "b"), nil)
		assert.Equal(t, Ready, h.m.State())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(waitFor):
		t.Fatal("Send blocked behind a stalled write")
	}
	assert.Empty(t, sock.sent())

	release()
	require.Eventually(t, func() bool { return len(sock.sent()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"a", "b"}, bodies(t, sock.sent()))
}

func TestManager_ReconnectNotificationPrecedesFlush(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var order []string
	h.hooks.On(hooks.EventConnectionOpen, "test", func(_ context.Context, _ hooks.Payload) error {
		mu.Lock()
		order = append(order, "hook")
		mu.Unlock()
		return nil
	})
	h.m.OnReconnect(func() {
		mu.Lock()
		order = append(order, "subscriber")
		mu.Unlock()
		assert.Equal(t, Uninitialized, h.m.State())
		assert.Equal(t, 1, h.m.Queued())
		h.m.Send(protocol.ChatService, request(2, "resync"), nil)
	})

	h.m.Send(protocol.ChatService, request(1, "old"), nil)
	require.NoError(t, h.m.Open(context.Background()))

	mu.Lock()
	assert.Equal(t, []string{"hook", "subscriber"}, order)
	mu.Unlock()
	sock := h.dialer.socket(0)
	require.Eventually(t, func() bool { return len(sock.sent()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"old", "resync"}, bodies(t, sock.sent()))
}

func TestManager_BackoffGrowsAcrossFailedDialsAndResetsOnOpen(t *testing.T) {
	h := newHarness(t)
	dialErr := errors.New("connection refused")
	h.dialer.fail = []error{dialErr, dialErr, dialErr}

	require.NoError(t, h.m.Open(context.Background()))
	assert.Equal(t, Closed, h.m.State())

	h.clock.fire()
	h.clock.fire()
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 25 * time.Second}, h.clock.scheduled())

	h.clock.fire()
	assert.Equal(t, Ready, h.m.State())

	h.dialer.socket(0).drop(io.EOF)
	require.Eventually(t, func() bool { return len(h.clock.scheduled()) == 4 }, waitFor, tick)
	assert.Equal(t, time.Second, h.clock.scheduled()[3])
}

func TestManager_InboundMessageResetsBackoff(t *testing.T) {
	h := newHarness(t)
	h.reg.Register(protocol.ChatService, service.HandlerFunc(func(protocol.Response, service.Callback) {}))
	require.NoError(t, h.m.Open(context.Background()))

	h.m.mu.Lock()
	h.m.backoff.Next()
	h.m.backoff.Next()
	h.m.mu.Unlock()

	h.dialer.socket(0).deliver(encode(t, protocol.NewResponse(protocol.ChatService, 3, protocol.Success, "{}")))

	require.Eventually(t, func() bool {
		h.m.mu.Lock()
		defer h.m.mu.Unlock()
		return h.m.backoff.Current() == time.Second
	}, waitFor, tick)
}

func TestManager_CloseStopsReconnecting(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.m.Open(context.Background()))
	assert.ErrorIs(t, h.m.Open(context.Background()), ErrAlreadyOpen)

	h.reg.Register(protocol.BoardService, service.Forward)
	h.m.Send(protocol.BoardService, request(2, ""), func(protocol.Response) {
		t.Error("callback ran after Close")
	})
	require.Equal(t, 1, h.reg.Pending())

	sock := h.dialer.socket(0)
	require.NoError(t, h.m.Close())
	assert.True(t, sock.isClosed())
	assert.Equal(t, Closed, h.m.State())
	assert.Equal(t, 0, h.reg.Pending())

	// The read loop exits without scheduling anything.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.clock.scheduled())
	assert.Equal(t, 1, h.dialer.dials())
	assert.ErrorIs(t, h.m.Open(context.Background()), ErrManagerClosed)
}

func TestManager_ContextCancelClosesManager(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.m.Open(ctx))

	cancel()
	require.Eventually(t, func() bool { return h.dialer.socket(0).isClosed() }, waitFor, tick)
	assert.Equal(t, Closed, h.m.State())
}

func TestCloseReason(t *testing.T) {
	assert.Equal(t, "1", CloseReason(&websocket.CloseError{Code: 4000, Text: "1"}))
	assert.Equal(t, "", CloseReason(io.EOF))
	assert.Equal(t, "", CloseReason(nil))
}

// --- real websocket round trip ---

func TestManager_WebsocketRoundTrip(t *testing.T) {
	var gotAuth, gotOrigin string
	var mu sync.Mutex

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotOrigin = r.Header.Get("Origin")
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.Decode(msg)
		if err != nil {
			return
		}
		reply, _ := protocol.Encode(protocol.NewResponse(f.Service, f.Method(), protocol.Success, "[]").WithRequestID(f.RequestID))
		conn.WriteMessage(websocket.TextMessage, reply)
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(4001, SessionInvalidReason), time.Now().Add(time.Second))
		conn.ReadMessage()
	}))
	defer srv.Close()

	log := logging.New(nil, "silent")
	reg := service.NewRegistry(log)
	reg.Register(protocol.BoardService, service.Forward)
	creds := &fakeCredentials{token: "tok-ws"}
	clock := &fakeClock{}

	cfg := Config{
		URL:          "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Origin:       "http://kapchan.test",
		WriteTimeout: time.Second,
		BackoffBase:  time.Second,
		BackoffMax:   time.Minute,
		Multiplier:   5,
	}
	m := New(cfg, reg, log, WithCredentials(creds))
	m.afterFunc = clock.AfterFunc
	defer m.Close()

	got := make(chan string, 1)
	m.Send(protocol.BoardService, request(2, ""), func(resp protocol.Response) { got <- resp.Body })
	require.NoError(t, m.Open(context.Background()))

	select {
	case body := <-got:
		assert.Equal(t, "[]", body)
	case <-time.After(waitFor):
		t.Fatal("no response over websocket")
	}

	require.Eventually(t, func() bool { return creds.discards() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return len(clock.scheduled()) == 1 }, waitFor, tick)
	assert.Equal(t, Closed, m.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer tok-ws", gotAuth)
	assert.Equal(t, "http://kapchan.test", gotOrigin)
}
