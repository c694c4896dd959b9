// Package eventbus is the desk's in-process publish/subscribe hub. Audit
// sinks, notifiers and metrics listen here instead of being called from
// the turn path.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"helpdesk-ai/internal/domain"
)

// DefaultHandlerTimeout bounds a single subscriber invocation.
const DefaultHandlerTimeout = 30 * time.Second

type subscriber struct {
	id uint64
	// empty for catch-all subscribers
	eventType domain.EventType
	handler   domain.EventHandler
}

// Bus dispatches each event to its subscribers on separate goroutines.
// Subscribers receive a context detached from the publisher's
// cancellation, bounded by the handler timeout.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscriber
	nextID  atomic.Uint64
	timeout time.Duration
	logger  *slog.Logger

	inflight  sync.WaitGroup
	closed    atomic.Bool
	published atomic.Int64
	panics    atomic.Int64
}

// Option configures a Bus.
type Option func(*Bus)

// WithHandlerTimeout overrides DefaultHandlerTimeout.
func WithHandlerTimeout(d time.Duration) Option {
	return func(b *Bus) { b.timeout = d }
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{timeout: DefaultHandlerTimeout, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish implements domain.EventBus. Events published after Close are
// dropped.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		b.logger.Debug("event dropped after close", "event", event.Type)
		return
	}
	b.published.Add(1)

	b.mu.RLock()
	var targets []subscriber
	for _, s := range b.subs {
		if s.eventType == "" || s.eventType == event.Type {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	base := context.WithoutCancel(ctx)
	for _, s := range targets {
		b.inflight.Add(1)
		go b.run(base, event, s)
	}
}

func (b *Bus) run(ctx context.Context, event domain.Event, s subscriber) {
	defer b.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.logger.Error("event subscriber panicked",
				"event", event.Type,
				"subscriber", s.id,
				"panic", r,
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	s.handler(ctx, event)
}

// Subscribe implements domain.EventBus.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll implements domain.EventBus.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(eventType domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.subs = append(b.subs, subscriber{id: id, eventType: eventType, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Stats reports how many events were published and how many subscriber
// invocations panicked.
func (b *Bus) Stats() (published, panics int64) {
	return b.published.Load(), b.panics.Load()
}

// Close implements domain.EventBus. It is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.inflight.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
