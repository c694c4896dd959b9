package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSessionLockerReleaseCleansUp(t *testing.T) {
	sl := NewSessionLocker()

	release, err := sl.Lock(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if sl.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", sl.ActiveCount())
	}
	release()
	release() // second call is a no-op
	if sl.ActiveCount() != 0 {
		t.Errorf("ActiveCount after release = %d, want 0", sl.ActiveCount())
	}
}

func TestSessionLockerSerializesSameSession(t *testing.T) {
	sl := NewSessionLocker()

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := sl.Lock(context.Background(), "shared")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inFlight, 1)
			for {
				m := atomic.LoadInt32(&maxInFlight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			release()
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("max concurrent turns = %d, want 1", maxInFlight)
	}
	if sl.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", sl.ActiveCount())
	}
}

func TestSessionLockerDifferentSessionsParallel(t *testing.T) {
	sl := NewSessionLocker()

	relA, err := sl.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer relA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	relB, err := sl.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock b should not wait for a: %v", err)
	}
	relB()
}

func TestSessionLockerContextCancel(t *testing.T) {
	sl := NewSessionLocker()

	release, err := sl.Lock(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := sl.Lock(ctx, "s1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}

	// The abandoned waiter must not hold the session.
	release()
	if sl.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", sl.ActiveCount())
	}
	again, err := sl.Lock(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Lock after cancel: %v", err)
	}
	again()
}
