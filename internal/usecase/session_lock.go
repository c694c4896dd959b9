package usecase

import (
	"context"
	"fmt"
	"sync"
)

// SessionLocker serializes turns per session so one session never has
// two turns in flight. Different sessions proceed in parallel.
type SessionLocker struct {
	mu    sync.Mutex
	slots map[string]*turnSlot
}

type turnSlot struct {
	ch      chan struct{}
	waiters int
}

// NewSessionLocker creates an empty locker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{slots: make(map[string]*turnSlot)}
}

// Lock blocks until the session is free or ctx is done. The returned
// release func must be called exactly once.
func (sl *SessionLocker) Lock(ctx context.Context, sessionID string) (release func(), err error) {
	sl.mu.Lock()
	slot, ok := sl.slots[sessionID]
	if !ok {
		slot = &turnSlot{ch: make(chan struct{}, 1)}
		sl.slots[sessionID] = slot
	}
	slot.waiters++
	sl.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				sl.done(sessionID, slot)
			})
		}, nil
	case <-ctx.Done():
		sl.done(sessionID, slot)
		return nil, fmt.Errorf("session %s busy: %w", sessionID, ctx.Err())
	}
}

func (sl *SessionLocker) done(sessionID string, slot *turnSlot) {
	sl.mu.Lock()
	slot.waiters--
	if slot.waiters == 0 {
		delete(sl.slots, sessionID)
	}
	sl.mu.Unlock()
}

// ActiveCount returns the number of sessions holding or waiting for a turn.
func (sl *SessionLocker) ActiveCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.slots)
}
