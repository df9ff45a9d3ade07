package connection

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

var errFakeClosed = errors.New("use of closed fake socket")

type fakeSocket struct {
	inbox chan []byte
	drops chan error
	done  chan struct{}

	mu        sync.Mutex
	written   []string
	closed    bool
	failWrite error
	failIn    int           // writes still allowed before failWrite applies
	gate      chan struct{} // when set, writes wait for it to close
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbox: make(chan []byte, 16),
		drops: make(chan error, 1),
		done:  make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case data := <-s.inbox:
		return data, nil
	case err := <-s.drops:
		return nil, err
	case <-s.done:
		return nil, errFakeClosed
	}
}

func (s *fakeSocket) WriteMessage(data []byte) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-s.done:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite != nil {
		if s.failIn == 0 {
			return s.failWrite
		}
		s.failIn--
	}
	if s.closed {
		return ErrSocketClosed
	}
	s.written = append(s.written, string(data))
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// failAfter lets n more writes through, then fails every write with err.
func (s *fakeSocket) failAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failIn = n
	s.failWrite = err
}

// hold stalls writes until the returned func is called.
func (s *fakeSocket) hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// deliver queues an inbound message.
func (s *fakeSocket) deliver(data string) { s.inbox <- []byte(data) }

// drop simulates the server closing the socket.
func (s *fakeSocket) drop(err error) { s.drops <- err }

func (s *fakeSocket) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.written))
	copy(out, s.written)
	return out
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeDialer struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	headers []http.Header
	fail    []error // consumed one per dial before any socket is handed out
}

func (d *fakeDialer) Dial(_ context.Context, _ string, header http.Header) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.headers = append(d.headers, header.Clone())
	if len(d.fail) > 0 {
		err := d.fail[0]
		d.fail = d.fail[1:]
		return nil, err
	}
	s := newFakeSocket()
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.sockets) {
		return nil
	}
	return d.sockets[i]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.headers)
}

func (d *fakeDialer) header(i int) http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.headers[i]
}

// fakeClock captures scheduled reconnects instead of running them.
type fakeClock struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

type fakeTimer struct{}

func (fakeTimer) Stop() bool { return true }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.fns = append(c.fns, f)
	return fakeTimer{}
}

func (c *fakeClock) scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.delays))
	copy(out, c.delays)
	return out
}

// fire runs the most recently scheduled reconnect.
func (c *fakeClock) fire() {
	c.mu.Lock()
	f := c.fns[len(c.fns)-1]
	c.mu.Unlock()
	f()
}

type fakeCredentials struct {
	mu        sync.Mutex
	token     string
	discarded int
}

func (c *fakeCredentials) CurrentSessionArtifact() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.token != ""
}

func (c *fakeCredentials) DiscardSessionArtifact() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.discarded++
}

func (c *fakeCredentials) discards() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discarded
}
