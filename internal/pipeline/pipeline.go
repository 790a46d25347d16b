// Package pipeline implements the scan pipeline (C5): job intake with
// dedup, a tier-derived priority queue, a fixed-size worker pool per
// chain, retry-with-backoff, and the QUEUED -> RUNNING ->
// COMPLETED/FAILED state machine.
package pipeline

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/token-risk-guard/internal/risk"
	"github.com/rawblock/token-risk-guard/pkg/models"
)

// scanError classifies a runScan failure so handleFailure can decide
// whether it's worth retrying.
type scanErrorClass int

const (
	scanErrorTransient scanErrorClass = iota
	scanErrorDeadlineExceeded
	scanErrorUnscorable
)

// scanError wraps a runScan failure with the class handleFailure needs;
// an error that isn't a *scanError is treated as scanErrorTransient, the
// "unexpected exception" case.
type scanError struct {
	class scanErrorClass
	err   error
}

func (e *scanError) Error() string { return e.err.Error() }
func (e *scanError) Unwrap() error { return e.err }

const maxAttempts = 3 // first attempt + 2 retries

var retryBackoffs = []time.Duration{time.Second, 4 * time.Second}

// Store is the persistence contract the pipeline needs.
type Store interface {
	SaveJob(ctx context.Context, job models.ScanJob) error
	GetJob(ctx context.Context, requestID string) (models.ScanJob, bool, error)
	FindRecentJob(ctx context.Context, chain models.Chain, tokenAddress string, window time.Duration) (models.ScanJob, bool, error)
	SaveRiskScore(ctx context.Context, score models.RiskScore) error
	GetRiskScore(ctx context.Context, requestID string) (models.RiskScore, bool, error)
}

// Fetcher resolves on-chain/market facts for one token.
type Fetcher interface {
	Fetch(ctx context.Context, c models.Chain, tokenAddress string) *models.TokenFacts
}

// ScoreCache is the whole-scan result cache consulted before dispatching
// a job to a worker. Satisfied by *cache.ScoreCache; may be nil.
type ScoreCache interface {
	Get(ctx context.Context, c models.Chain, tokenAddress string) (models.RiskScore, bool)
	Put(ctx context.Context, score models.RiskScore)
}

// OnComplete is called with every RiskScore the pipeline finishes, used
// to drive the websocket live-feed broadcast.
type OnComplete func(models.RiskScore)

type chainQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   priorityQueue
	closed bool
}

func newChainQueue() *chainQueue {
	q := &chainQueue{}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(&q.heap)
	return q
}

func (q *chainQueue) push(job models.ScanJob) {
	q.mu.Lock()
	heap.Push(&q.heap, &queuedJob{job: job})
	q.mu.Unlock()
	q.cond.Signal()
}

func (q *chainQueue) pop() (models.ScanJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.heap.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.heap.Len() == 0 {
		return models.ScanJob{}, false
	}
	item := heap.Pop(&q.heap).(*queuedJob)
	return item.job, true
}

func (q *chainQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Pipeline dispatches ScanRequests to per-chain worker pools.
type Pipeline struct {
	store      Store
	fetcher    Fetcher
	scores     ScoreCache
	blacklist  risk.CreatorBlacklist
	onComplete OnComplete

	dedupWindow     time.Duration
	scanDeadline    time.Duration
	workersPerChain int

	queues map[models.Chain]*chainQueue
	wg     sync.WaitGroup
}

// New builds a Pipeline with one queue for each chain in chains; Start
// launches workersPerChain workers per chain. bl is consulted by the risk engine's CREATOR_PRIOR_RUG
// override once a scan's creator address is known; it may be nil, as may
// scores (disabling the whole-scan result cache).
func New(store Store, fetcher Fetcher, scores ScoreCache, bl risk.CreatorBlacklist, onComplete OnComplete, chains []models.Chain, workersPerChain int, dedupWindow, scanDeadline time.Duration) *Pipeline {
	p := &Pipeline{
		store: store, fetcher: fetcher, scores: scores, blacklist: bl, onComplete: onComplete,
		dedupWindow: dedupWindow, scanDeadline: scanDeadline, workersPerChain: workersPerChain,
		queues: make(map[models.Chain]*chainQueue),
	}
	for _, c := range chains {
		p.queues[c] = newChainQueue()
	}
	return p
}

// Start launches the worker pool. Call once after New.
func (p *Pipeline) Start(ctx context.Context) {
	for chain, q := range p.queues {
		for i := 0; i < p.workersPerChain; i++ {
			p.wg.Add(1)
			go p.worker(ctx, chain, q, i)
		}
	}
}

// Stop closes all queues and waits for in-flight workers to drain.
func (p *Pipeline) Stop() {
	for _, q := range p.queues {
		q.close()
	}
	p.wg.Wait()
}

// Submit enqueues a scan request. If an open (queued or running) job for
// the same (chain, tokenAddress) was enqueued within the dedup window,
// the existing job is returned instead of creating a duplicate; a fresh
// cached whole-scan result short-circuits dispatch entirely.
func (p *Pipeline) Submit(ctx context.Context, req models.ScanRequest) (models.ScanJob, error) {
	if existing, found, err := p.store.FindRecentJob(ctx, req.Chain, req.TokenAddress, p.dedupWindow); err != nil {
		return models.ScanJob{}, fmt.Errorf("pipeline: dedup lookup failed: %w", err)
	} else if found {
		return existing, nil
	}

	q, ok := p.queues[req.Chain]
	if !ok {
		return models.ScanJob{}, fmt.Errorf("pipeline: no worker pool configured for chain %s", req.Chain)
	}

	// A fresh whole-scan result makes the dispatch unnecessary: complete
	// the job immediately against the cached score.
	if p.scores != nil {
		if cached, hit := p.scores.Get(ctx, req.Chain, req.TokenAddress); hit {
			return p.completeFromCache(ctx, req, cached)
		}
	}

	job := models.ScanJob{
		RequestID:    req.RequestID,
		Chain:        req.Chain,
		TokenAddress: req.TokenAddress,
		UserID:       req.UserID,
		Tier:         req.Tier,
		Priority:     req.Tier.Priority(),
		State:        models.StateQueued,
		EnqueuedAt:   time.Now(),
	}
	if job.RequestID == "" {
		job.RequestID = uuid.New().String()
	}

	if err := p.store.SaveJob(ctx, job); err != nil {
		return models.ScanJob{}, fmt.Errorf("pipeline: failed to persist job: %w", err)
	}
	q.push(job)
	return job, nil
}

// completeFromCache records a new job as COMPLETED against an existing
// cached RiskScore, re-keyed to the new request ID.
func (p *Pipeline) completeFromCache(ctx context.Context, req models.ScanRequest, cached models.RiskScore) (models.ScanJob, error) {
	now := time.Now()
	job := models.ScanJob{
		RequestID:    req.RequestID,
		Chain:        req.Chain,
		TokenAddress: req.TokenAddress,
		UserID:       req.UserID,
		Tier:         req.Tier,
		Priority:     req.Tier.Priority(),
		State:        models.StateCompleted,
		Attempts:     0,
		EnqueuedAt:   now,
		StartedAt:    &now,
		CompletedAt:  &now,
	}
	if job.RequestID == "" {
		job.RequestID = uuid.New().String()
	}
	job.ResultRef = job.RequestID

	cached.RequestID = job.RequestID
	if err := p.store.SaveRiskScore(ctx, cached); err != nil {
		return models.ScanJob{}, fmt.Errorf("pipeline: failed to persist cached score: %w", err)
	}
	if err := p.store.SaveJob(ctx, job); err != nil {
		return models.ScanJob{}, fmt.Errorf("pipeline: failed to persist job: %w", err)
	}
	return job, nil
}

// GetStatus returns the current state of a job via a plain indexed
// lookup, not a queue scan.
func (p *Pipeline) GetStatus(ctx context.Context, requestID string) (models.ScanJob, bool, error) {
	return p.store.GetJob(ctx, requestID)
}

func (p *Pipeline) worker(ctx context.Context, chain models.Chain, q *chainQueue, id int) {
	defer p.wg.Done()
	for {
		job, ok := q.pop()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.process(ctx, job)
	}
}

func (p *Pipeline) process(ctx context.Context, job models.ScanJob) {
	now := time.Now()
	job.State = models.StateRunning
	job.Attempts++
	job.StartedAt = &now
	if err := p.store.SaveJob(ctx, job); err != nil {
		log.Printf("[Pipeline] failed to persist RUNNING state for %s: %v", job.RequestID, err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, p.scanDeadline)
	score, err := p.runScan(scanCtx, job)
	cancel()

	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	completed := time.Now()
	job.State = models.StateCompleted
	job.CompletedAt = &completed
	job.ResultRef = score.RequestID
	if err := p.store.SaveJob(ctx, job); err != nil {
		log.Printf("[Pipeline] failed to persist COMPLETED state for %s: %v", job.RequestID, err)
	}
	if err := p.store.SaveRiskScore(ctx, score); err != nil {
		log.Printf("[Pipeline] failed to persist risk score for %s: %v", job.RequestID, err)
	}
	if p.scores != nil {
		p.scores.Put(ctx, score)
	}
	if p.onComplete != nil {
		p.onComplete(score)
	}
}

func (p *Pipeline) runScan(ctx context.Context, job models.ScanJob) (models.RiskScore, error) {
	facts := p.fetcher.Fetch(ctx, job.Chain, job.TokenAddress)

	// Hitting the fetch budget is not itself fatal: the engine runs on
	// whatever facts arrived, with everything else tagged MISSING. Only
	// when too little arrived to score does the deadline decide the
	// failure reason.
	metrics := risk.Analyze(job.Chain, facts)
	score, scorable := risk.Aggregate(metrics)
	if !scorable {
		if ctx.Err() != nil || facts.FetchDeadlineExceeded {
			return models.RiskScore{}, &scanError{class: scanErrorDeadlineExceeded,
				err: fmt.Errorf("pipeline: scan deadline exceeded before enough data arrived")}
		}
		return models.RiskScore{}, &scanError{class: scanErrorUnscorable,
			err: fmt.Errorf("pipeline: too few usable metrics to produce a score")}
	}

	overrides := risk.DetectOverrides(facts, metrics, p.blacklist)
	category := risk.Classify(score, scorable, overrides)

	return models.RiskScore{
		SchemaVersion: models.CurrentSchemaVersion,
		RequestID:     job.RequestID,
		Chain:         job.Chain,
		TokenAddress:  job.TokenAddress,
		FinalScore:    score,
		Scorable:      scorable,
		Category:      category,
		Metrics:       metrics,
		Overrides:     overrides,
		EvaluatedAt:   time.Now(),
	}, nil
}

// handleFailure decides whether scanErr is worth retrying. Only a
// TRANSIENT fetcher condition or an unexpected exception (anything not
// classified as a *scanError) gets another attempt; DEADLINE_EXCEEDED and
// UNSCORABLE are terminal — the client may resubmit, but this job won't
// auto-retry into the same outcome.
func (p *Pipeline) handleFailure(ctx context.Context, job models.ScanJob, scanErr error) {
	job.LastError = scanErr.Error()

	terminal := false
	var se *scanError
	if errors.As(scanErr, &se) {
		switch se.class {
		case scanErrorDeadlineExceeded:
			job.LastError = "DEADLINE_EXCEEDED"
			terminal = true
		case scanErrorUnscorable:
			job.LastError = "UNSCORABLE"
			terminal = true
		}
	}

	if terminal || job.Attempts >= maxAttempts {
		job.State = models.StateFailed
		completed := time.Now()
		job.CompletedAt = &completed
		if err := p.store.SaveJob(ctx, job); err != nil {
			log.Printf("[Pipeline] failed to persist FAILED state for %s: %v", job.RequestID, err)
		}
		log.Printf("[Pipeline] job %s failed%s after %d attempts: %v", job.RequestID, terminalSuffix(terminal), job.Attempts, scanErr)
		return
	}

	job.State = models.StateQueued
	if err := p.store.SaveJob(ctx, job); err != nil {
		log.Printf("[Pipeline] failed to persist retry state for %s: %v", job.RequestID, err)
	}

	backoff := retryBackoffs[job.Attempts-1]
	log.Printf("[Pipeline] job %s failed (attempt %d), retrying in %s: %v", job.RequestID, job.Attempts, backoff, scanErr)

	q := p.queues[job.Chain]
	time.AfterFunc(backoff, func() {
		q.push(job)
	})
}

func terminalSuffix(terminal bool) string {
	if terminal {
		return " (terminal)"
	}
	return " permanently"
}
