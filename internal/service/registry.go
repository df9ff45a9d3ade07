// Package service routes decoded response frames to per-service handlers.
package service

import (
	"sync"

	"github.com/soyeahso/kapchan/internal/logging"
	"github.com/soyeahso/kapchan/internal/protocol"
)

// Callback receives the response a request (or push handler) resolved to.
type Callback func(resp protocol.Response)

// Handler is the standing handler for one service. It is called for every
// response addressed to the service. answer delivers a result to whoever is
// waiting on this response, if anyone; handlers call it at most once for
// responses they consider answerable.
type Handler interface {
	HandleResponse(resp protocol.Response, answer Callback)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(resp protocol.Response, answer Callback)

func (f HandlerFunc) HandleResponse(resp protocol.Response, answer Callback) {
	f(resp, answer)
}

// Forward is a Handler that answers every response unchanged.
var Forward Handler = HandlerFunc(func(resp protocol.Response, answer Callback) {
	answer(resp)
})

// MaxPending bounds the correlation table. Once full, the oldest waiter is
// dropped to make room.
const MaxPending = 256

type pendingCall struct {
	id      string
	service protocol.ServiceID
	method  protocol.MethodID
	cb      Callback
}

// Registry maps service ids to handlers and tracks who is waiting on which
// response.
type Registry struct {
	mu        sync.Mutex
	handlers  map[protocol.ServiceID]Handler
	callbacks map[protocol.ServiceID]Callback
	pending   []pendingCall // oldest first
	log       *logging.Logger
}

// NewRegistry creates an empty service registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		handlers:  make(map[protocol.ServiceID]Handler),
		callbacks: make(map[protocol.ServiceID]Callback),
		log:       log.Sub("registry"),
	}
}

// Register installs the standing handler for a service, replacing any
// previous one.
func (r *Registry) Register(id protocol.ServiceID, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[id]; exists {
		r.log.Debug().Stringer("service", id).Msg("replacing service handler")
	}
	r.handlers[id] = h
}

// RegisterCallback fills the service's one-shot callback slot. A callback
// that is still waiting is overwritten.
func (r *Registry) RegisterCallback(id protocol.ServiceID, cb Callback) {
	if cb == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[id]; exists {
		r.log.Debug().Stringer("service", id).Msg("overwriting unanswered callback")
	}
	r.callbacks[id] = cb
}

// Expect records that requestID (sent to service/method) wants cb invoked
// with its answer.
func (r *Registry) Expect(requestID string, id protocol.ServiceID, method protocol.MethodID, cb Callback) {
	if cb == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) >= MaxPending {
		oldest := r.pending[0]
		r.log.Warn().
			Str("requestId", oldest.id).
			Stringer("service", oldest.service).
			Int("method", int(oldest.method)).
			Msg("too many unanswered requests, dropping oldest waiter")
		r.pending[0] = pendingCall{}
		r.pending = r.pending[1:]
	}
	r.pending = append(r.pending, pendingCall{id: requestID, service: id, method: method, cb: cb})
}

// Forget drops every waiting request and returns how many there were. Their
// callbacks are never invoked.
func (r *Registry) Forget() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.pending)
	r.pending = nil
	return n
}

// Pending returns the number of requests still waiting for an answer.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Handles reports whether a standing handler is registered for the service.
func (r *Registry) Handles(id protocol.ServiceID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[id]
	return ok
}

// Dispatch routes one inbound frame. Frames without a response payload and
// frames for services without a handler are logged and dropped.
func (r *Registry) Dispatch(f protocol.Frame) {
	if f.Response == nil {
		r.log.Warn().Stringer("service", f.Service).Int("method", int(f.Method())).Msg("dropping request-shaped frame from server")
		return
	}

	r.mu.Lock()
	h, ok := r.handlers[f.Service]
	if !ok {
		r.mu.Unlock()
		r.log.Warn().Stringer("service", f.Service).Int("method", int(f.Response.Method)).Msg("no handler for service, dropping frame")
		return
	}
	target := r.takePendingLocked(f)
	r.mu.Unlock()

	resp := *f.Response
	answered := false
	answer := func(result protocol.Response) {
		if answered {
			return
		}
		answered = true
		if target != nil {
			target(result)
			return
		}
		if cb := r.takeCallback(f.Service); cb != nil {
			cb(result)
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error().
				Interface("panic", p).
				Stringer("service", f.Service).
				Int("method", int(resp.Method)).
				Msg("service handler panicked")
		}
	}()
	h.HandleResponse(resp, answer)
}

// takePendingLocked removes the waiter this frame answers. Frames that echo a
// request id only match that id; frames without one match the oldest waiter
// for the same service and method.
func (r *Registry) takePendingLocked(f protocol.Frame) Callback {
	idx := -1
	if f.RequestID != "" {
		for i, p := range r.pending {
			if p.id == f.RequestID {
				idx = i
				break
			}
		}
	} else {
		for i, p := range r.pending {
			if p.service == f.Service && p.method == f.Response.Method {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return nil
	}
	cb := r.pending[idx].cb
	r.pending = append(r.pending[:idx], r.pending[idx+1:]...)
	return cb
}

func (r *Registry) takeCallback(id protocol.ServiceID) Callback {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb := r.callbacks[id]
	delete(r.callbacks, id)
	return cb
}
