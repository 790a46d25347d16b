package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestReservoir_BurstThenBlocks(t *testing.T) {
	r := NewReservoir(
		map[string]int{"p": 60},
		map[string]int{"p": 2},
		map[string]int{},
	)
	ctx := context.Background()

	if !r.Acquire(ctx, "p", 50*time.Millisecond) {
		t.Fatal("expected first acquire within burst to succeed")
	}
	if !r.Acquire(ctx, "p", 50*time.Millisecond) {
		t.Fatal("expected second acquire within burst to succeed")
	}
	if r.Acquire(ctx, "p", 50*time.Millisecond) {
		t.Fatal("expected third acquire to exhaust the burst and time out")
	}
}

func TestReservoir_UnconfiguredProviderIsUnlimited(t *testing.T) {
	r := NewReservoir(map[string]int{}, map[string]int{}, map[string]int{})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if !r.Acquire(ctx, "unknown", 10*time.Millisecond) {
			t.Fatalf("expected unconfigured provider to never block, failed on call %d", i)
		}
	}
}

func TestReservoir_RespectsContextCancellation(t *testing.T) {
	r := NewReservoir(map[string]int{"p": 1}, map[string]int{"p": 1}, map[string]int{})
	ctx := context.Background()
	if !r.Acquire(ctx, "p", 10*time.Millisecond) {
		t.Fatal("expected initial burst token to be available")
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if r.Acquire(cancelCtx, "p", time.Second) {
		t.Fatal("expected acquire to fail on an already-cancelled context")
	}
}

func TestReservoir_MaxInFlightLimitsConcurrency(t *testing.T) {
	r := NewReservoir(map[string]int{"p": 6000}, map[string]int{"p": 100}, map[string]int{"p": 1})
	ctx := context.Background()

	if !r.Acquire(ctx, "p", 50*time.Millisecond) {
		t.Fatal("expected first concurrent slot to be available")
	}

	done := make(chan bool, 1)
	go func() {
		done <- r.Acquire(ctx, "p", 50*time.Millisecond)
	}()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected second concurrent acquire to block on the in-flight semaphore")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("second acquire neither succeeded nor timed out")
	}

	r.Release("p")
	if !r.Acquire(ctx, "p", 50*time.Millisecond) {
		t.Fatal("expected acquire to succeed once the held slot is released")
	}
}
