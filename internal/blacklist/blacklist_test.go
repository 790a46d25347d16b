package blacklist

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu      sync.Mutex
	entries []Entry
	calls   int
}

func (f *fakeSource) ListBlacklist(ctx context.Context) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func TestBlacklist_LookupMissingReturnsFalse(t *testing.T) {
	bl := New(&fakeSource{})
	if _, ok := bl.Lookup("nobody"); ok {
		t.Fatal("expected lookup miss before any refresh")
	}
}

func TestBlacklist_RefreshLoadsEntries(t *testing.T) {
	src := &fakeSource{entries: []Entry{
		{CreatorAddress: "bad1", Label: "serial rugger", PriorRugCount: 3, AddedAt: time.Now()},
	}}
	bl := New(src)

	if err := bl.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, ok := bl.Lookup("bad1")
	if !ok {
		t.Fatal("expected bad1 to be present after refresh")
	}
	if entry.PriorRugCount != 3 {
		t.Fatalf("expected PriorRugCount=3, got %d", entry.PriorRugCount)
	}
	if bl.Size() != 1 {
		t.Fatalf("expected size 1, got %d", bl.Size())
	}
}

func TestBlacklist_RefreshReplacesStaleEntries(t *testing.T) {
	src := &fakeSource{entries: []Entry{{CreatorAddress: "old", PriorRugCount: 1}}}
	bl := New(src)
	if err := bl.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src.mu.Lock()
	src.entries = []Entry{{CreatorAddress: "new", PriorRugCount: 2}}
	src.mu.Unlock()

	if err := bl.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := bl.Lookup("old"); ok {
		t.Fatal("expected stale entry to be gone after a fresh refresh")
	}
	if _, ok := bl.Lookup("new"); !ok {
		t.Fatal("expected new entry to be present after refresh")
	}
}
