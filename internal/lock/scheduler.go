package lock

import (
	"context"
	"log"
	"time"

	"fluxgate/internal/ledger"
)

// Scheduler owns the verification poll loop. A fixed-interval timer and the
// realtime push channel both funnel into the coordinator's single guarded
// refresh, so concurrent triggers converge on the same authoritative state.
// The timer is the resilience fallback if the push channel drops.
type Scheduler struct {
	coord    *Coordinator
	interval time.Duration
	push     chan struct{}
}

func NewScheduler(coord *Coordinator, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 12 * time.Second
	}
	return &Scheduler{
		coord:    coord,
		interval: interval,
		push:     make(chan struct{}, 1),
	}
}

// Notify multiplexes an external change notification into the poll loop.
// Non-blocking: a pending wakeup already covers the new event.
func (s *Scheduler) Notify() {
	select {
	case s.push <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Ticks while the submission is in flight;
// transient failures are logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, false)
		case <-s.push:
			s.poll(ctx, true)
		}
	}
}

func (s *Scheduler) poll(ctx context.Context, pushed bool) {
	cur := s.coord.Current()
	// Nothing to verify unless the record is in flight or a failed
	// authoritative refetch is still owed; push events always refresh so
	// administrative changes (deactivation) land promptly.
	if !pushed && !s.coord.needsRefetch() {
		if cur == nil || !cur.Status.InFlight() {
			return
		}
	}
	if _, err := s.coord.TryRefresh(ctx); err != nil {
		status := ledger.Status("")
		if cur != nil {
			status = cur.Status
		}
		log.Printf("lock: poll failed (status=%s): %v", status, err)
	}
}
