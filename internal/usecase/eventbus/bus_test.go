package eventbus

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"helpdesk-ai/internal/domain"
)

func newTestBus(opts ...Option) *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func ticketEvent() domain.Event {
	return domain.NewEvent(domain.EventTicketCreated, "s1", domain.TicketCreatedPayload{UserID: "u"})
}

func TestTypedSubscriberOnlySeesItsType(t *testing.T) {
	bus := newTestBus()
	var tickets, threats atomic.Int32
	bus.Subscribe(domain.EventTicketCreated, func(context.Context, domain.Event) { tickets.Add(1) })
	bus.Subscribe(domain.EventThreatDetected, func(context.Context, domain.Event) { threats.Add(1) })

	bus.Publish(context.Background(), ticketEvent())
	bus.Close()

	if tickets.Load() != 1 || threats.Load() != 0 {
		t.Errorf("tickets=%d threats=%d", tickets.Load(), threats.Load())
	}
}

func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := newTestBus()
	var got atomic.Int32
	bus.SubscribeAll(func(context.Context, domain.Event) { got.Add(1) })

	bus.Publish(context.Background(), ticketEvent())
	bus.Publish(context.Background(), domain.NewEvent(domain.EventTurnRouted, "s1", nil))
	bus.Close()

	if got.Load() != 2 {
		t.Errorf("got %d, want 2", got.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()
	var got atomic.Int32
	unsub := bus.Subscribe(domain.EventTicketCreated, func(context.Context, domain.Event) { got.Add(1) })
	unsub()
	unsub()

	bus.Publish(context.Background(), ticketEvent())
	bus.Close()
	if got.Load() != 0 {
		t.Errorf("got %d after unsubscribe", got.Load())
	}
}

func TestPanicIsRecovered(t *testing.T) {
	bus := newTestBus()
	var ok atomic.Bool
	bus.SubscribeAll(func(context.Context, domain.Event) { panic("boom") })
	bus.SubscribeAll(func(context.Context, domain.Event) { ok.Store(true) })

	bus.Publish(context.Background(), ticketEvent())
	bus.Close()

	if !ok.Load() {
		t.Error("healthy subscriber did not run")
	}
	if published, panics := bus.Stats(); published != 1 || panics != 1 {
		t.Errorf("stats = %d, %d", published, panics)
	}
}

func TestSubscriberOutlivesPublisherContext(t *testing.T) {
	bus := newTestBus()
	errc := make(chan error, 1)
	bus.SubscribeAll(func(ctx context.Context, _ domain.Event) {
		time.Sleep(10 * time.Millisecond)
		errc <- ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, ticketEvent())
	cancel()
	bus.Close()

	if err := <-errc; err != nil {
		t.Errorf("subscriber ctx err = %v", err)
	}
}

func TestHandlerTimeout(t *testing.T) {
	bus := newTestBus(WithHandlerTimeout(5 * time.Millisecond))
	errc := make(chan error, 1)
	bus.SubscribeAll(func(ctx context.Context, _ domain.Event) {
		<-ctx.Done()
		errc <- ctx.Err()
	})
	bus.Publish(context.Background(), ticketEvent())
	bus.Close()

	if err := <-errc; err != context.DeadlineExceeded {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	bus := newTestBus()
	var got atomic.Int32
	bus.SubscribeAll(func(context.Context, domain.Event) { got.Add(1) })
	bus.Close()
	bus.Close()

	bus.Publish(context.Background(), ticketEvent())
	if got.Load() != 0 {
		t.Error("event delivered after close")
	}
}
