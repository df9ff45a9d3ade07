// Package connection owns the single websocket shared by every kapchan
// service. It reconnects with backoff, queues outbound frames while the
// socket is down, and hands inbound frames to the service registry.
package connection

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/kapchan/internal/config"
	"github.com/soyeahso/kapchan/internal/hooks"
	"github.com/soyeahso/kapchan/internal/logging"
	"github.com/soyeahso/kapchan/internal/protocol"
	"github.com/soyeahso/kapchan/internal/service"
	"github.com/soyeahso/kapchan/internal/version"
)

// SessionInvalidReason is the close frame text the server uses when the
// presented session is no longer valid.
const SessionInvalidReason = "1"

var (
	// ErrAlreadyOpen is returned by Open when called more than once.
	ErrAlreadyOpen = errors.New("connection manager already open")
	// ErrManagerClosed is returned by Open after Close.
	ErrManagerClosed = errors.New("connection manager closed")
)

// Credentials is the session artifact collaborator.
type Credentials interface {
	CurrentSessionArtifact() (string, bool)
	DiscardSessionArtifact()
}

// Config holds the connection settings.
type Config struct {
	URL          string
	Origin       string
	WriteTimeout time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	Multiplier   float64
}

// FromConfig builds a connection Config from the client configuration.
func FromConfig(cfg *config.Config) Config {
	return Config{
		URL:          cfg.Server.URL,
		Origin:       cfg.Server.Origin,
		WriteTimeout: cfg.Server.WriteTimeout(),
		BackoffBase:  cfg.Reconnect.Base(),
		BackoffMax:   cfg.Reconnect.Max(),
		Multiplier:   cfg.Reconnect.Multiplier,
	}
}

type stopper interface {
	Stop() bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithCredentials sets the session store consulted on dial and cleared on
// session invalidation.
func WithCredentials(c Credentials) Option {
	return func(m *Manager) { m.creds = c }
}

// WithHooks sets the hook manager lifecycle events are emitted to.
func WithHooks(h *hooks.Manager) Option {
	return func(m *Manager) { m.hooks = h }
}

// WithDialer replaces the default websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// Manager is the connection manager. Create it with New, start it with Open
// and stop it with Close.
type Manager struct {
	cfg       Config
	reg       *service.Registry
	creds     Credentials
	hooks     *hooks.Manager
	dialer    Dialer
	log       *logging.Logger
	afterFunc func(time.Duration, func()) stopper

	// writeMu is held by a write pump from taking a frame off the queue
	// until the frame is written or put back, so frames leave in order even
	// while an old pump is still finishing a write.
	writeMu sync.Mutex

	mu       sync.Mutex
	state    State
	sock     Socket
	wake     chan struct{} // signals the current write pump
	done     chan struct{} // closed when the current socket is dropped
	gen      uint64
	queue    [][]byte // outbound frames not yet written, oldest first
	backoff  *Backoff
	timer    stopper
	started  bool
	shutdown bool
	ctx      context.Context
	cancel   context.CancelFunc
	onOpen   []func()
}

// New creates a connection manager. No socket is opened until Open.
func New(cfg Config, reg *service.Registry, log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		reg:     reg,
		log:     log.Sub("connection"),
		state:   Uninitialized,
		backoff: NewBackoff(cfg.BackoffBase, cfg.BackoffMax, cfg.Multiplier),
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = WebsocketDialer{Origin: cfg.Origin, WriteTimeout: cfg.WriteTimeout}
	}
	return m
}

// Open makes the first connection attempt and returns once it has either
// opened or failed. A failed attempt is retried with backoff; Open itself
// only fails when the manager was already opened or closed. Cancelling ctx
// closes the manager.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyOpen
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	context.AfterFunc(m.ctx, func() { m.Close() })
	m.connect()
	return nil
}

// Close stops reconnecting and closes the current socket. Frames still in
// the queue are kept but never sent, and callbacks still waiting for an
// answer are dropped.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	m.state = Closed
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	sock := m.detachLocked()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	dropped := m.reg.Forget()
	m.log.Info().Int("droppedWaiters", dropped).Msg("connection manager closed")
	if sock != nil {
		return sock.Close()
	}
	return nil
}

// OnReconnect registers fn to run every time a socket opens, after the
// connection_open hook and before queued frames are flushed. Frames sent
// from fn are queued behind the older ones.
func (m *Manager) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOpen = append(m.onOpen, fn)
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Queued returns the number of frames not yet written to a socket.
func (m *Manager) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Send queues a request for a service and returns the request id carried by
// the frame. cb, when non-nil, receives the answer. Send never blocks: a
// ready socket's write pump picks the frame up, otherwise it waits in the
// queue for the next socket.
func (m *Manager) Send(id protocol.ServiceID, req protocol.Request, cb service.Callback) string {
	requestID := uuid.NewString()
	m.reg.Expect(requestID, id, req.Method, cb)

	data, err := protocol.Encode(protocol.Frame{Service: id, Request: &req, RequestID: requestID})
	if err != nil {
		m.log.Error().Err(err).Stringer("service", id).Msg("encode request")
		return requestID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, data)
	if m.state == Ready {
		m.signalLocked()
		return requestID
	}
	m.log.Debug().Stringer("service", id).Int("queued", len(m.queue)).Msg("socket not ready, request queued")
	return requestID
}

// signalLocked wakes the current write pump without blocking.
func (m *Manager) signalLocked() {
	if m.wake == nil {
		return
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// detachLocked forgets the current socket and stops its write pump. The
// caller closes the returned socket outside the lock.
func (m *Manager) detachLocked() Socket {
	sock := m.sock
	m.sock = nil
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.wake = nil
	return sock
}

// connect starts a new attempt with a fresh socket.
func (m *Manager) connect() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.state = Uninitialized
	m.timer = nil
	ctx := m.ctx
	m.mu.Unlock()

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if m.creds != nil {
		if token, ok := m.creds.CurrentSessionArtifact(); ok {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	m.log.Debug().Str("url", m.cfg.URL).Uint64("attempt", gen).Msg("dialing")
	sock, err := m.dialer.Dial(ctx, m.cfg.URL, header)
	if err != nil {
		m.log.Warn().Err(err).Str("url", m.cfg.URL).Msg("dial failed")
		m.handleClose(gen, err)
		return
	}

	m.mu.Lock()
	if m.shutdown || gen != m.gen {
		m.mu.Unlock()
		sock.Close()
		return
	}
	m.sock = sock
	m.wake = make(chan struct{}, 1)
	m.done = make(chan struct{})
	wake, done := m.wake, m.done
	m.backoff.Reset()
	m.mu.Unlock()

	m.log.Info().Str("url", m.cfg.URL).Msg("connected")
	go m.writePump(gen, sock, wake, done)
	m.handleOpen(ctx, gen)
	go m.readLoop(gen, sock)
}

// handleOpen notifies subscribers, then marks the socket ready and lets the
// write pump flush the queue.
func (m *Manager) handleOpen(ctx context.Context, gen uint64) {
	m.hooks.Emit(ctx, hooks.EventConnectionOpen, map[string]any{
		"url":     m.cfg.URL,
		"attempt": gen,
	})

	m.mu.Lock()
	subs := make([]func(), len(m.onOpen))
	copy(subs, m.onOpen)
	m.mu.Unlock()
	for _, fn := range subs {
		m.runSubscriber(fn)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown || gen != m.gen || m.sock == nil {
		return
	}
	m.state = Ready
	if len(m.queue) > 0 {
		m.log.Debug().Int("frames", len(m.queue)).Msg("flushing queued requests")
		m.signalLocked()
	}
}

// writePump writes queued frames to sock, oldest first, until the socket is
// dropped. A failed write puts the frame back at the head of the queue and
// closes sock; the read loop then fails and the close path reconnects.
func (m *Manager) writePump(gen uint64, sock Socket, wake, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-wake:
		}

		for {
			m.writeMu.Lock()
			data, ok := m.nextFrame(gen)
			if !ok {
				m.writeMu.Unlock()
				break
			}
			if err := sock.WriteMessage(data); err != nil {
				m.mu.Lock()
				m.queue = append([][]byte{data}, m.queue...)
				queued := len(m.queue)
				m.mu.Unlock()
				m.writeMu.Unlock()

				m.log.Warn().Err(err).Int("queued", queued).Msg("write failed, dropping socket")
				sock.Close()
				return
			}
			m.writeMu.Unlock()
		}
	}
}

// nextFrame pops the oldest queued frame if gen is still the ready socket.
func (m *Manager) nextFrame(gen uint64) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown || gen != m.gen || m.state != Ready || len(m.queue) == 0 {
		return nil, false
	}
	data := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return data, true
}

func (m *Manager) runSubscriber(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("reconnect subscriber panicked")
		}
	}()
	fn()
}

func (m *Manager) readLoop(gen uint64, sock Socket) {
	for {
		data, err := sock.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		if !m.current(gen) {
			return
		}
		m.handleMessage(data)
	}
}

func (m *Manager) handleMessage(data []byte) {
	f, err := protocol.Decode(data)
	if err != nil {
		m.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping undecodable frame")
		return
	}

	m.mu.Lock()
	m.backoff.Reset()
	m.mu.Unlock()

	m.reg.Dispatch(f)
}

// handleClose runs once per attempt, for a failed dial or a socket that
// stopped reading.
func (m *Manager) handleClose(gen uint64, err error) {
	if !m.current(gen) {
		return
	}
	reason := CloseReason(err)
	invalid := reason == SessionInvalidReason
	if invalid && m.creds != nil {
		m.creds.DiscardSessionArtifact()
	}

	m.mu.Lock()
	if m.shutdown || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state = Closed
	sock := m.detachLocked()
	delay := m.backoff.Next()
	m.timer = m.afterFunc(delay, m.connect)
	ctx := m.ctx
	m.mu.Unlock()

	if sock != nil {
		sock.Close()
	}

	m.log.Info().
		Err(err).
		Str("reason", reason).
		Dur("retryIn", delay).
		Msg("connection closed")

	if invalid {
		m.log.Warn().Msg("session invalidated by server, credential discarded")
		m.hooks.Emit(ctx, hooks.EventSessionInvalidated, nil)
	}
	m.hooks.Emit(ctx, hooks.EventConnectionClosed, map[string]any{
		"reason":  reason,
		"retryIn": delay.String(),
	})
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.shutdown && gen == m.gen
}
