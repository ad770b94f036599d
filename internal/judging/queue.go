package judging

import (
	"context"
	"sync"
	"time"
)

// RecomputeQueue refreshes judge rollups off the write path. A judge queued
// several times before the worker gets to it is recomputed once.
type RecomputeQueue struct {
	*env
	stats *StatsAggregator

	mu      sync.Mutex
	pending map[string]struct{}
	order   []string
	wake    chan struct{}
}

func newRecomputeQueue(e *env, stats *StatsAggregator) *RecomputeQueue {
	return &RecomputeQueue{
		env:     e,
		stats:   stats,
		pending: map[string]struct{}{},
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue never blocks.
func (q *RecomputeQueue) Enqueue(judgeID string) {
	if judgeID == "" {
		return
	}
	q.mu.Lock()
	if _, ok := q.pending[judgeID]; !ok {
		q.pending[judgeID] = struct{}{}
		q.order = append(q.order, judgeID)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len is the number of judges waiting for a recompute.
func (q *RecomputeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Run works the queue until ctx is done.
func (q *RecomputeQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.wake:
			_ = q.Flush(ctx)
		}
	}
}

// Flush recomputes everything queued so far and returns the first failure.
// Failures are logged either way; the judge is not requeued.
func (q *RecomputeQueue) Flush(ctx context.Context) error {
	var first error
	for {
		id, ok := q.pop()
		if !ok {
			return first
		}
		start := time.Now()
		err := q.stats.Recompute(ctx, id)
		q.obs.StatsRecomputed(time.Since(start), err)
		if err != nil {
			q.log.Warn("judge stats recompute failed", "judge_id", id, "err", err)
			if first == nil {
				first = err
			}
		}
	}
}

func (q *RecomputeQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return "", false
	}
	id := q.order[0]
	q.order = q.order[1:]
	delete(q.pending, id)
	return id, true
}
