/*
Rate limited alert delivery.

Alerts are append to an unbounded FIFO; the first Enqueue after idle
starts a single drain goroutine which sends one alert, sleeps MinDelay,
repeats until the queue is empty and exits. Delivery is fire-and-forget:
a sender error is logged and counted, never retried.
*/
package alerts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
	"whalewatch/internal/config"
	"whalewatch/internal/domain"

	"gitlab.com/nevasik7/alerting/logger"
)

type Queue struct {
	log      logger.Logger
	sender   Sender
	minDelay time.Duration

	mu       sync.Mutex
	items    []*domain.AlertRecord
	draining bool // protection from second drain goroutine
	closed   bool

	delivered atomic.Uint64
	dropped   atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewQueue(log logger.Logger, cfg *config.AlertsConfig, sender Sender) (*Queue, error) {
	if cfg == nil {
		return nil, errors.New("alerts config is required")
	}
	if sender == nil {
		return nil, errors.New("sender is required")
	}

	minDelay := cfg.MinDelay
	if minDelay <= 0 {
		minDelay = 2 * time.Second
	}

	return &Queue{
		log:      log,
		sender:   sender,
		minDelay: minDelay,
		items:    make([]*domain.AlertRecord, 0, 16),
		stopCh:   make(chan struct{}),
	}, nil
}

// Enqueue never blocks the caller; delivery pacing happens in the drainer
func (q *Queue) Enqueue(rec *domain.AlertRecord) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.dropped.Add(1)
		q.log.Warnf("Alert queue closed, dropping alert for %s", rec.Token.ID())
		return
	}

	rec.EnqueuedAt = time.Now()
	q.items = append(q.items, rec)
	depth := len(q.items)

	startDrain := !q.draining
	if startDrain {
		q.draining = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	q.log.Debugf("Alert enqueued for %s via %s, depth=%d", rec.Token.ID(), q.sender.Name(), depth)

	if startDrain {
		go q.drain()
	}
}

func (q *Queue) drain() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.closed || len(q.items) == 0 {
			// flag drops under the same lock that Enqueue checks,
			// so exactly one drainer can exist
			q.draining = false
			q.mu.Unlock()
			return
		}
		rec := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		if err := q.sender.Send(context.Background(), rec); err != nil {
			q.dropped.Add(1)
			q.log.Errorf("Failed to deliver alert for %s, error=%v", rec.Token.ID(), err)
		} else {
			q.delivered.Add(1)
		}

		// pause between sends even when more alerts are waiting
		select {
		case <-q.stopCh:
			return
		case <-time.After(q.minDelay):
		}
	}
}

func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Delivered() uint64 { return q.delivered.Load() }

func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Close stops the drainer; pending alerts are dropped, not flushed
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := len(q.items)
	q.items = nil
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()

	if pending > 0 {
		q.log.Warnf("Alert queue closed with %d undelivered alerts", pending)
	}
}
