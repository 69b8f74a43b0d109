package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the per-subscriber queue used when NewBus gets zero.
const DefaultQueueSize = 64

// Logger defines the logging interface used by the bus.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers int
}

type envelope struct {
	ev   Event
	done *sync.WaitGroup
}

type subscriber struct {
	typ      Type
	handler  Handler
	queue    chan envelope
	quit     chan struct{}
	finished chan struct{}
	once     sync.Once

	// senders counts PublishWait calls that may still send to queue after
	// the bus lock is released.
	senders sync.WaitGroup
}

// Bus is a fire-and-forget event bus with per-subscriber bounded queues.
//
// Thread Safety: All methods are safe for concurrent use. Close must not be
// called from inside a handler.
type Bus struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscriber
	nextID    uint64
	queueSize int
	closed    bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64

	logMu  sync.RWMutex
	logger Logger
}

// NewBus creates a bus whose subscribers each buffer up to queueSize events.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		subs:      make(map[uint64]*subscriber),
		queueSize: queueSize,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	b.logMu.Lock()
	defer b.logMu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	b.logger = logger
}

// Subscribe registers handler for events of type t and starts its dispatch
// goroutine. The returned function unsubscribes; it is safe to call more than
// once and from inside the handler. Events already queued are still handled.
func (b *Bus) Subscribe(t Type, handler Handler) (func(), error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	b.nextID++
	id := b.nextID
	sub := &subscriber{
		typ:      t,
		handler:  handler,
		queue:    make(chan envelope, b.queueSize),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	b.subs[id] = sub

	go b.dispatch(sub)

	return func() { b.unsubscribe(id) }, nil
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		sub.stop()
	}
}

// stop releases blocked PublishWait senders, waits for them and closes the
// queue. Callers must have removed sub from the map under the write lock
// first so no new sender can reach it.
func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.quit)
		s.senders.Wait()
		close(s.queue)
	})
}

// Publish hands ev to every subscriber of its type without blocking.
// Subscribers whose queue is full miss the event; the drop is counted.
// Publishing on a closed bus is a no-op.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.published.Add(1)

	for _, sub := range b.subs {
		if sub.typ != ev.Type() {
			continue
		}
		select {
		case sub.queue <- envelope{ev: ev}:
		default:
			b.dropped.Add(1)
			b.log().Debug("event dropped, subscriber queue full", "type", string(ev.Type()))
		}
	}
}

// PublishWait enqueues ev for every subscriber of its type and waits until
// each has handled it. Unlike Publish it blocks on full queues. It returns
// ctx.Err() if the context ends first; handlers already reached still run.
func (b *Bus) PublishWait(ctx context.Context, ev Event) error {
	if ev == nil {
		return nil
	}

	var wg sync.WaitGroup

	if err := b.enqueueWait(ctx, ev, &wg); err != nil {
		return err
	}

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s handlers: %w", ev.Type(), ctx.Err())
	}
}

func (b *Bus) enqueueWait(ctx context.Context, ev Event, wg *sync.WaitGroup) error {
	targets, err := b.waitTargets(ev.Type())
	if err != nil {
		return err
	}

	// Sends may block on full queues and run outside the bus lock.
	var ctxErr error
	for _, sub := range targets {
		if ctxErr != nil {
			sub.senders.Done()
			continue
		}
		wg.Add(1)
		select {
		case sub.queue <- envelope{ev: ev, done: wg}:
		case <-sub.quit:
			wg.Done()
		case <-ctx.Done():
			wg.Done()
			ctxErr = fmt.Errorf("enqueueing %s: %w", ev.Type(), ctx.Err())
		}
		sub.senders.Done()
	}
	return ctxErr
}

// waitTargets snapshots the subscribers of t and registers the caller as a
// sender on each.
func (b *Bus) waitTargets(t Type) ([]*subscriber, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	b.published.Add(1)

	var targets []*subscriber
	for _, sub := range b.subs {
		if sub.typ != t {
			continue
		}
		sub.senders.Add(1)
		targets = append(targets, sub)
	}
	return targets, nil
}

func (b *Bus) dispatch(sub *subscriber) {
	defer close(sub.finished)

	for env := range sub.queue {
		b.handle(sub, env)
	}
}

func (b *Bus) handle(sub *subscriber, env envelope) {
	defer func() {
		if env.done != nil {
			env.done.Done()
		}
		if r := recover(); r != nil {
			b.log().Error("panic in event handler recovered",
				"type", string(env.ev.Type()),
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()

	sub.handler(env.ev)
	b.delivered.Add(1)
}

func (b *Bus) log() Logger {
	b.logMu.RLock()
	defer b.logMu.RUnlock()
	return b.logger
}

// Close stops accepting new events, lets every subscriber drain its queue and
// waits for the dispatch goroutines to exit. It is safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	for _, sub := range subs {
		<-sub.finished
	}
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: n,
	}
}
