package pipeline

import (
	"testing"
	"time"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

func TestChainQueue_HigherTierDispatchesFirst(t *testing.T) {
	q := newChainQueue()
	base := time.Now()

	// FREE arrives first; ENTERPRISE arrives while it is still queued and
	// must jump ahead at the next dispatch.
	q.push(models.ScanJob{RequestID: "free", Priority: models.TierFree.Priority(), EnqueuedAt: base})
	q.push(models.ScanJob{RequestID: "ent", Priority: models.TierEnterprise.Priority(), EnqueuedAt: base.Add(time.Millisecond)})

	first, ok := q.pop()
	if !ok || first.RequestID != "ent" {
		t.Fatalf("expected the enterprise job to dispatch first, got %q", first.RequestID)
	}
	second, ok := q.pop()
	if !ok || second.RequestID != "free" {
		t.Fatalf("expected the free job to dispatch second, got %q", second.RequestID)
	}
}

func TestChainQueue_FIFOWithinPriorityBand(t *testing.T) {
	q := newChainQueue()
	base := time.Now()

	for i := 0; i < 5; i++ {
		q.push(models.ScanJob{
			RequestID:  string(rune('a' + i)),
			Priority:   models.TierPremium.Priority(),
			EnqueuedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
	}

	for i := 0; i < 5; i++ {
		job, ok := q.pop()
		if !ok {
			t.Fatalf("queue drained early at %d", i)
		}
		if want := string(rune('a' + i)); job.RequestID != want {
			t.Fatalf("expected submission-order dispatch within a band: got %q at position %d, want %q", job.RequestID, i, want)
		}
	}
}

func TestChainQueue_CloseUnblocksWaiters(t *testing.T) {
	q := newChainQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected pop on a closed empty queue to report no job")
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not return after close")
	}
}
