package pipeline

import (
	"container/heap"

	"github.com/rawblock/token-risk-guard/pkg/models"
)

// queuedJob is one entry in the priority queue: lower Priority dispatches
// first, ties broken by earlier EnqueuedAt (FIFO within a tier).
type queuedJob struct {
	job   models.ScanJob
	index int
}

// priorityQueue implements container/heap.Interface over queuedJob.
type priorityQueue []*queuedJob

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].job.Priority != pq[j].job.Priority {
		return pq[i].job.Priority < pq[j].job.Priority
	}
	return pq[i].job.EnqueuedAt.Before(pq[j].job.EnqueuedAt)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queuedJob)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

var _ = heap.Interface(&priorityQueue{})
