package changestream

import (
	"context"
	"sync"
)

// Handler receives one Event. It returns nothing; a Handler that panics is
// recovered and delivery to the remaining subscribers continues.
type Handler func(ctx context.Context, event Event)

// Emitter fans an Event out to every subscriber registered for its
// namespace, or to every subscriber registered for the wildcard namespace.
type Emitter interface {
	Subscribe(db, coll string, handler Handler) (unsubscribe func())
	Emit(ctx context.Context, event Event)
}

// key identifies a subscription scope: a specific namespace {db, coll}, a
// whole database {db, ""}, or everything {"", ""}.
type key struct {
	db, coll string
}

// InProcessEmitter is the Emitter every backend in this process shares.
// There is no external transport: a process that wants change events
// delivered over the wire subscribes its own wire-layer handler.
type InProcessEmitter struct {
	mu   sync.RWMutex
	subs map[key]map[int]Handler
	next int
}

// NewInProcessEmitter builds an empty InProcessEmitter.
func NewInProcessEmitter() *InProcessEmitter {
	return &InProcessEmitter{subs: make(map[key]map[int]Handler)}
}

// Subscribe registers handler for db/coll. An empty coll subscribes to
// every collection in db; an empty db and an empty coll together subscribe
// to every namespace. An empty db with a non-empty coll matches no event.
func (e *InProcessEmitter) Subscribe(db, coll string, handler Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := key{db, coll}
	if e.subs[k] == nil {
		e.subs[k] = make(map[int]Handler)
	}
	id := e.next
	e.next++
	e.subs[k][id] = handler

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs[k], id)
	}
}

// Emit delivers event to every subscription scope that matches its
// namespace, isolating each handler with panic recovery so one bad
// subscriber can't take down a write path.
func (e *InProcessEmitter) Emit(ctx context.Context, event Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, 4)
	for _, k := range []key{
		{event.NS.DB, event.NS.Collection},
		{event.NS.DB, ""},
		{"", ""},
	} {
		for _, h := range e.subs[k] {
			handlers = append(handlers, h)
		}
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		invoke(ctx, h, event)
	}
}

func invoke(ctx context.Context, h Handler, event Event) {
	defer func() { recover() }()
	h(ctx, event)
}

// NoOpEmitter discards every event. Useful when change-stream delivery is
// disabled.
type NoOpEmitter struct{}

func (NoOpEmitter) Subscribe(db, coll string, handler Handler) func() { return func() {} }
func (NoOpEmitter) Emit(ctx context.Context, event Event)             {}
